package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/relayer/internal/core/domain"
)

var (
	// ErrConnectionFailed is returned when the endpoint could not be
	// reached within the configured retry budget. Unrecoverable at this
	// layer; propagates to the process boundary.
	ErrConnectionFailed = errors.New("source chain connection failed")

	// ErrInvalidBinding is returned for a bad contract address or event
	// descriptor. Misconfiguration, never retried.
	ErrInvalidBinding = errors.New("invalid contract binding")
)

const livenessTimeout = 5 * time.Second

// Connector owns the connection to the source chain's JSON-RPC endpoint.
type Connector struct {
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger

	mu      sync.RWMutex
	state   domain.ConnectionState
	chainID uint64
}

// Connect dials the endpoint, probing liveness with eth_chainId on each
// attempt and sleeping retryDelay between attempts. Exhausting maxRetries
// fails with ErrConnectionFailed.
func Connect(
	ctx context.Context,
	endpoint string,
	maxRetries int,
	retryDelay time.Duration,
	log *slog.Logger,
) (*Connector, error) {
	c := &Connector{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log:   log,
		state: domain.ConnectionConnecting,
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info("connecting to source chain",
			"endpoint", endpoint, "attempt", attempt, "max_attempts", maxRetries)

		chainID, err := c.fetchChainID(ctx)
		if err == nil {
			c.setState(domain.ConnectionConnected)
			c.mu.Lock()
			c.chainID = chainID
			c.mu.Unlock()
			log.Info("connected to source chain", "chain_id", chainID)
			return c, nil
		}

		lastErr = err
		log.Error("connection attempt failed", "attempt", attempt, "error", err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	c.setState(domain.ConnectionDisconnected)
	return nil, fmt.Errorf("%w: %d attempts to %s: %v", ErrConnectionFailed, maxRetries, endpoint, lastErr)
}

// IsConnected probes liveness with a bounded timeout. Callable at any time.
func (c *Connector) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), livenessTimeout)
	defer cancel()

	if _, err := c.fetchChainID(ctx); err != nil {
		c.setState(domain.ConnectionDisconnected)
		return false
	}
	c.setState(domain.ConnectionConnected)
	return true
}

// ChainID returns the chain id observed at connect time.
func (c *Connector) ChainID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainID
}

// State returns the connector's current connection state.
func (c *Connector) State() domain.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connector) setState(s domain.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connector) fetchChainID(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_chainId", []any{})
	if err != nil {
		return 0, err
	}
	hexID, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected eth_chainId result type %T", result)
	}
	return parseHexUint64(hexID)
}

func (c *Connector) blockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	hexNum, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected eth_blockNumber result type %T", result)
	}
	return parseHexUint64(hexNum)
}

// call makes a single JSON-RPC 2.0 call.
func (c *Connector) call(ctx context.Context, method string, params []any) (any, error) {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rpc call %s: status %d: %s", method, resp.StatusCode, body)
	}

	var rpcResp struct {
		Result any `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}
