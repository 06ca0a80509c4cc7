package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pbftlabs/pbftbridge/pkg/config"
	"github.com/pbftlabs/pbftbridge/pkg/engine"
	"github.com/pbftlabs/pbftbridge/pkg/jwt"
)

// Client is the typed JSON-RPC client for the execution engine. Engine API
// methods go to the authenticated endpoint with a fresh JWT per request;
// everything else goes to the plain endpoint.
type Client struct {
	config          *config.Config
	httpClient      *http.Client
	engineAPIClient *http.Client // Dedicated client for Engine API
	jwtSecret       string
	logger          *slog.Logger
}

// NewClient creates a new execution engine client.
func NewClient(cfg *config.Config) (*Client, error) {
	logger := slog.Default().With("component", "engine-client")

	if cfg.Engine.Endpoint == "" {
		return nil, fmt.Errorf("engine endpoint cannot be empty")
	}

	timeout := 10 * time.Second
	if cfg.Engine.Timeout > 0 {
		timeout = time.Duration(cfg.Engine.Timeout) * time.Second
	}

	var jwtSecret string
	if cfg.Engine.JWTSecret != "" {
		jwtBytes, err := os.ReadFile(cfg.Engine.JWTSecret)
		if err != nil {
			logger.Warn("Unable to read JWT secret file", "path", cfg.Engine.JWTSecret, "error", err)
		} else {
			jwtSecret = jwt.ParseHexKey(string(jwtBytes))
		}
	}

	logger.Info("Initializing engine client",
		"endpoint", cfg.Engine.Endpoint, "engineAPI", cfg.Engine.EngineAPI)

	return &Client{
		config:          cfg,
		httpClient:      &http.Client{Timeout: timeout},
		engineAPIClient: &http.Client{Timeout: timeout},
		jwtSecret:       jwtSecret,
		logger:          logger,
	}, nil
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call makes a JSON-RPC call to the engine. Errors are one of *AuthError,
// *TransportError, *ProtocolError or *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	raw, err := c.call(ctx, method, params)
	if err != nil {
		rpcErrors.Inc()
	}
	return raw, err
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	isEngineAPI := strings.HasPrefix(method, "engine_")

	requestBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, &ProtocolError{Method: method, Err: err}
	}

	endpoint := c.config.Engine.Endpoint
	client := c.httpClient
	if isEngineAPI && c.config.Engine.EngineAPI != "" {
		endpoint = c.config.Engine.EngineAPI
		client = c.engineAPIClient
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if isEngineAPI && c.jwtSecret != "" {
		token, err := jwt.GenerateToken(c.jwtSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("Calling engine", "method", method)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	default:
		return nil, &TransportError{Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var response jsonRPCResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		c.logger.Error("Undecodable engine response", "method", method, "body", string(respBody))
		return nil, &ProtocolError{Method: method, Err: err}
	}

	if response.Error != nil {
		return nil, &RPCError{Code: response.Error.Code, Message: response.Error.Message}
	}

	return response.Result, nil
}

// ForkchoiceUpdated sends engine_forkchoiceUpdatedV2. Attributes may be nil
// for a plain head update; with attributes set the engine starts a build job
// and the result carries its payload id.
func (c *Client) ForkchoiceUpdated(ctx context.Context, state engine.ForkchoiceState, attrs *engine.PayloadAttributes) (*engine.ForkchoiceUpdatedResult, error) {
	raw, err := c.Call(ctx, "engine_forkchoiceUpdatedV2", []interface{}{state, attrs})
	if err != nil {
		return nil, err
	}
	var result engine.ForkchoiceUpdatedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: "engine_forkchoiceUpdatedV2", Err: err}
	}
	return &result, nil
}

// NewPayload submits a payload for validation and import via engine_newPayloadV2.
func (c *Client) NewPayload(ctx context.Context, payload *engine.ExecutionPayload) (*engine.PayloadStatus, error) {
	raw, err := c.Call(ctx, "engine_newPayloadV2", []interface{}{payload})
	if err != nil {
		return nil, err
	}
	var status engine.PayloadStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, &ProtocolError{Method: "engine_newPayloadV2", Err: err}
	}
	return &status, nil
}

// GetPayload retrieves a built payload via engine_getPayloadV2.
func (c *Client) GetPayload(ctx context.Context, id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	raw, err := c.Call(ctx, "engine_getPayloadV2", []interface{}{id})
	if err != nil {
		return nil, err
	}
	var envelope engine.ExecutionPayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ProtocolError{Method: "engine_getPayloadV2", Err: err}
	}
	return &envelope, nil
}

// GetBlockByNumber resolves a block by tag ("latest", "0x0", ...). A nil block
// with nil error means the engine knows no such block.
func (c *Client) GetBlockByNumber(ctx context.Context, tag string) (*engine.ExecutionBlock, error) {
	raw, err := c.Call(ctx, "eth_getBlockByNumber", []interface{}{tag, false})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var block engine.ExecutionBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, &ProtocolError{Method: "eth_getBlockByNumber", Err: err}
	}
	return &block, nil
}

// WaitForChainTip polls the engine for its head block until one is available,
// retrying indefinitely on transport failure. The engine may still be starting
// when we come up, so unreachable is not fatal here.
func (c *Client) WaitForChainTip(ctx context.Context) (*engine.ExecutionBlock, error) {
	backoff := time.Second
	for {
		block, err := c.GetBlockByNumber(ctx, engine.LatestTag)
		if err == nil && block != nil {
			return block, nil
		}

		if err != nil {
			var transport *TransportError
			if !errors.As(err, &transport) {
				return nil, err
			}
			c.logger.Warn("Engine unreachable, retrying", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff += time.Second
		}
	}
}
