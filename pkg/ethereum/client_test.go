package ethereum

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pbftlabs/pbftbridge/pkg/config"
	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	cfg.Engine.Endpoint = ts.URL
	cfg.Engine.EngineAPI = ts.URL
	cfg.Engine.JWTSecret = ""

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, ts
}

func TestCallAuthError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Call(context.Background(), "engine_forkchoiceUpdatedV2", nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: %d", authErr.StatusCode)
	}
}

func TestCallRPCError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-38002,"message":"invalid forkchoice state"}}`))
	})

	_, err := c.Call(context.Background(), "engine_forkchoiceUpdatedV2", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -38002 {
		t.Fatalf("unexpected code: %d", rpcErr.Code)
	}
}

func TestCallProtocolError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json at all"))
	})

	_, err := c.Call(context.Background(), "eth_getBlockByNumber", nil)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestCallTransportError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.Endpoint = "http://127.0.0.1:1" // nothing listens here
	cfg.Engine.JWTSecret = ""
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.Call(context.Background(), "eth_getBlockByNumber", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestEngineCallsCarryBearerToken(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "jwt.hex")
	if err := os.WriteFile(secretPath, []byte("aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"payloadStatus":{"status":"VALID"}}}`))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.Engine.Endpoint = ts.URL
	cfg.Engine.EngineAPI = ts.URL
	cfg.Engine.JWTSecret = secretPath
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.ForkchoiceUpdated(context.Background(), engine.ForkchoiceState{}, nil); err != nil {
		t.Fatalf("ForkchoiceUpdated: %v", err)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") || strings.Count(gotAuth, ".") != 2 {
		t.Fatalf("missing or malformed bearer token: %q", gotAuth)
	}
}

func TestGetBlockByNumberUnknownBlock(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})

	block, err := c.GetBlockByNumber(context.Background(), engine.LatestTag)
	if err != nil {
		t.Fatalf("GetBlockByNumber: %v", err)
	}
	if block != nil {
		t.Fatalf("expected nil block for null result, got %+v", block)
	}
}

func TestForkchoiceUpdatedDecodesPayloadID(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"payloadStatus":{"status":"VALID","latestValidHash":"0x00000000000000000000000000000000000000000000000000000000000000aa"},"payloadId":"0x0011223344556677"}}`))
	})

	result, err := c.ForkchoiceUpdated(context.Background(), engine.HeadState(common.Hash{0xaa}), nil)
	if err != nil {
		t.Fatalf("ForkchoiceUpdated: %v", err)
	}
	if !result.PayloadStatus.IsValid() {
		t.Fatalf("expected VALID status, got %s", result.PayloadStatus.Status)
	}
	if len(result.PayloadID) != 8 {
		t.Fatalf("unexpected payload id: %x", result.PayloadID)
	}
}
