package consensus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pbftlabs/pbftbridge/pkg/config"
	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

func TestFinalizeBlockEmitsCommitDecision(t *testing.T) {
	app := NewABCIApplication("test")

	hash := common.HexToHash("0xabc")
	resp, err := app.FinalizeBlock(context.Background(), &abcitypes.RequestFinalizeBlock{
		Hash:   hash.Bytes(),
		Height: 42,
		Txs:    [][]byte{[]byte("tx1")},
	})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if len(resp.TxResults) != 1 || resp.TxResults[0].Code != abcitypes.CodeTypeOK {
		t.Fatalf("unexpected tx results: %+v", resp.TxResults)
	}

	select {
	case d := <-app.Decisions():
		if d.Kind != DecisionCommit || d.BlockID != hash || d.Height != 42 {
			t.Fatalf("unexpected decision: %+v", d)
		}
	default:
		t.Fatal("no decision emitted")
	}
}

func TestFinalizeBlockDropsWhenStreamFull(t *testing.T) {
	app := NewABCIApplication("test")
	for i := 0; i < cap(app.decisions); i++ {
		app.emit(Decision{Kind: DecisionCommit})
	}

	// Must not block even though nobody is draining the stream.
	if _, err := app.FinalizeBlock(context.Background(), &abcitypes.RequestFinalizeBlock{
		Hash:   common.HexToHash("0x01").Bytes(),
		Height: 1,
	}); err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
}

func TestSubmitPayloadBroadcastsTransaction(t *testing.T) {
	var gotMethod string
	var gotTx string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		gotMethod = req.Method
		params, _ := req.Params.(map[string]interface{})
		gotTx, _ = params["tx"].(string)
		_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Consensus.Endpoint = server.URL
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}

	envelope := &engine.ExecutionPayloadEnvelope{
		ExecutionPayload: engine.ExecutionPayload{
			BlockHash:   common.HexToHash("0x02"),
			BlockNumber: 9,
		},
		BlockValue: (*hexutil.Big)(big.NewInt(1)),
	}
	if err := client.SubmitPayload(context.Background(), envelope); err != nil {
		t.Fatalf("SubmitPayload: %v", err)
	}
	if gotMethod != "broadcast_tx_sync" {
		t.Fatalf("method = %q, want broadcast_tx_sync", gotMethod)
	}

	raw, err := base64.StdEncoding.DecodeString(gotTx)
	if err != nil {
		t.Fatalf("tx not base64: %v", err)
	}
	var decoded engine.ExecutionPayloadEnvelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("tx not a payload envelope: %v", err)
	}
	if decoded.ExecutionPayload.BlockHash != envelope.ExecutionPayload.BlockHash {
		t.Fatalf("block hash = %s, want %s",
			decoded.ExecutionPayload.BlockHash.Hex(), envelope.ExecutionPayload.BlockHash.Hex())
	}
}

func TestBroadcastCommitSendsNotice(t *testing.T) {
	var gotTx string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		params, _ := req.Params.(map[string]interface{})
		gotTx, _ = params["tx"].(string)
		_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Consensus.Endpoint = server.URL
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}

	id := common.HexToHash("0xfeed")
	if err := client.BroadcastCommit(context.Background(), id); err != nil {
		t.Fatalf("BroadcastCommit: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(gotTx)
	if err != nil {
		t.Fatalf("tx not base64: %v", err)
	}
	var notice commitNotice
	if err := json.Unmarshal(raw, &notice); err != nil {
		t.Fatal(err)
	}
	if notice.Type != "commit" || notice.BlockID != id.Hex() {
		t.Fatalf("unexpected notice: %+v", notice)
	}
}
