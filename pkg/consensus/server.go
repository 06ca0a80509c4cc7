package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	abciserver "github.com/cometbft/cometbft/abci/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pbftlabs/pbftbridge/pkg/config"
)

// Server exposes the ABCI application to the BFT node over a socket and
// serves health and metrics endpoints over HTTP.
type Server struct {
	app *ABCIApplication
	srv interface {
		Start() error
		Stop() error
	}
	httpServer *http.Server
	listenAddr string
	healthAddr string
	logger     *slog.Logger
}

// NewServer creates a new server for the given application.
func NewServer(cfg *config.Config, app *ABCIApplication) *Server {
	addr := "0.0.0.0:26658"
	health := "0.0.0.0:8081"
	if cfg != nil {
		if cfg.Consensus.ListenAddr != "" {
			addr = cfg.Consensus.ListenAddr
		}
		if cfg.Producer.HealthAddr != "" {
			health = cfg.Producer.HealthAddr
		}
	}
	return &Server{
		app:        app,
		listenAddr: addr,
		healthAddr: health,
		logger:     slog.Default().With("component", "abci-server"),
	}
}

// Start starts the ABCI socket server and the health HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting ABCI socket server", "addr", s.listenAddr)

	if s.app == nil {
		return fmt.Errorf("no ABCI application available")
	}

	srv, err := abciserver.NewServer(s.listenAddr, "socket", s.app)
	if err != nil {
		return fmt.Errorf("failed to create ABCI socket server on %s: %w", s.listenAddr, err)
	}
	s.srv = srv

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	s.httpServer = &http.Server{
		Addr:              s.healthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		ln, err := net.Listen("tcp", s.healthAddr)
		if err != nil {
			s.logger.Error("Health server listen error", "err", err)
			return
		}
		s.logger.Info("Starting HTTP health server", "addr", s.healthAddr)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server error", "err", err)
		}
	}()

	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI socket server: %w", err)
	}
	return nil
}

// Stop stops the ABCI server and the health HTTP server.
func (s *Server) Stop() {
	if s.srv != nil {
		_ = s.srv.Stop()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
}
