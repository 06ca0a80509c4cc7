package ethereum

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pbftbridge_engine_rpc_errors_total",
	Help: "Failed JSON-RPC calls against the execution engine.",
})
