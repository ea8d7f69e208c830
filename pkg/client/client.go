// Package client is the embeddable SDK for calling a modelrund daemon's
// JSON-RPC surface: an http.Client with a timeout, tenant/agent headers
// on every request, and one method per capability dispatch.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the client's connection settings.
type Config struct {
	// GatewayURL is the modelrund daemon's base URL, e.g. "http://localhost:8080".
	GatewayURL string

	// TenantID is sent as X-Tenant-ID on every request.
	TenantID string

	// AgentID is sent as X-Agent-ID on every request. Auto-generated if empty.
	AgentID string

	// Timeout bounds each RPC call (default 30s).
	Timeout time.Duration
}

// Client dispatches capability operations against a modelrund daemon.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient builds a Client from cfg, applying defaults for Timeout and AgentID.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AgentID == "" {
		cfg.AgentID = fmt.Sprintf("client-%d", time.Now().UnixNano())
	}
	return &Client{config: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// rpcRequest/rpcResponse mirror internal/edge's JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string     `json:"method"`
	Params  rpcParams  `json:"params"`
}

type rpcParams struct {
	Capability  string          `json:"capability"`
	RegistryKey string          `json:"registry_key"`
	Op          string          `json:"op"`
	Args        json.RawMessage `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError mirrors internal/edge.RPCError, returned when a Dispatch call
// fails on the daemon side.
type RPCError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("modelrun: %s (code %d): %s", e.Type, e.Code, e.Message)
}

// Dispatch invokes one capability operation and unmarshals its result into out.
func (c *Client) Dispatch(ctx context.Context, capability, registryKey, op string, args interface{}, out interface{}) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("modelrun: failed to marshal args: %w", err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("%d", time.Now().UnixNano()),
		Method:  "dispatch",
		Params: rpcParams{
			Capability:  capability,
			RegistryKey: registryKey,
			Op:          op,
			Args:        argsJSON,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("modelrun: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GatewayURL+"/v1/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("modelrun: failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("modelrun: gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("modelrun: failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("modelrun: failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("modelrun: failed to decode result: %w", err)
		}
	}
	return nil
}

// Embed is a convenience wrapper over Dispatch for the text_embedding capability.
func (c *Client) Embed(ctx context.Context, registryKey, text string) ([]float32, error) {
	var vec []float32
	err := c.Dispatch(ctx, "text_embedding", registryKey, "embed", map[string]string{"text": text}, &vec)
	return vec, err
}

// DescribeImage is a convenience wrapper over Dispatch for the vision capability.
func (c *Client) DescribeImage(ctx context.Context, registryKey, path, prompt string) (string, error) {
	var description string
	err := c.Dispatch(ctx, "vision", registryKey, "describe_image",
		map[string]string{"path": path, "prompt": prompt}, &description)
	return description, err
}

// Healthz checks the daemon's liveness endpoint.
func (c *Client) Healthz(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.GatewayURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelrun: healthz returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.config.TenantID)
	req.Header.Set("X-Agent-ID", c.config.AgentID)
}
