package consensus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pbftlabs/pbftbridge/pkg/config"
	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

// Client talks to the BFT node's RPC endpoint. Built payloads are submitted
// as transactions; the agreement protocol itself is the node's concern.
type Client struct {
	config     *config.Config
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewClient creates a new BFT node client.
func NewClient(cfg *config.Config) (*Client, error) {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   cfg.Consensus.Endpoint,
		logger:     slog.Default().With("component", "consensus-client"),
	}, nil
}

// RPCRequest represents an RPC request to the BFT node
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// RPCResponse represents an RPC response from the BFT node
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents an RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Call makes an RPC call to the BFT node.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	requestBody, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request [%s]: %w", c.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request [%s]: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request returned non-success status code: %d", resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error: code=%d, message=%s, data=%s",
			rpcResp.Error.Code, rpcResp.Error.Message, rpcResp.Error.Data)
	}

	return rpcResp.Result, nil
}

// GetStatus gets the status of the BFT node.
func (c *Client) GetStatus(ctx context.Context) (map[string]interface{}, error) {
	result, err := c.Call(ctx, "status", nil)
	if err != nil {
		return nil, err
	}

	var status map[string]interface{}
	if err := json.Unmarshal(result, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// SubmitPayload hands a built payload to the BFT node for agreement. The
// envelope travels as a transaction; the candidate block id is its hash.
func (c *Client) SubmitPayload(ctx context.Context, envelope *engine.ExecutionPayloadEnvelope) error {
	tx, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = c.Call(ctx, "broadcast_tx_sync", map[string]interface{}{
		"tx": base64.StdEncoding.EncodeToString(tx),
	})
	if err != nil {
		return fmt.Errorf("submit payload: %w", err)
	}

	c.logger.Info("Submitted payload for agreement",
		"block", envelope.ExecutionPayload.BlockHash.Hex(),
		"number", uint64(envelope.ExecutionPayload.BlockNumber))
	return nil
}

// commitNotice is the announce message gossiped after a decided commit.
type commitNotice struct {
	Type    string `json:"type"`
	BlockID string `json:"block_id"`
}

// BroadcastCommit announces an accepted commit to the network.
func (c *Client) BroadcastCommit(ctx context.Context, id common.Hash) error {
	tx, err := json.Marshal(commitNotice{Type: "commit", BlockID: id.Hex()})
	if err != nil {
		return err
	}

	_, err = c.Call(ctx, "broadcast_tx_sync", map[string]interface{}{
		"tx": base64.StdEncoding.EncodeToString(tx),
	})
	if err != nil {
		return fmt.Errorf("broadcast commit: %w", err)
	}
	return nil
}
