// Package upstream forwards JSON-RPC calls that have no local handler to
// remote nodes over HTTP.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rpcdispatch/internal/jsonrpc"
)

// Upstream represents a single upstream RPC endpoint
type Upstream struct {
	name   string
	rpcURL string
	weight int

	httpClient *http.Client
	breaker    *breaker
	logger     zerolog.Logger
}

// Config for creating a new Upstream
type Config struct {
	Name             string
	RPCURL           string
	Weight           int
	RequestTimeout   time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	Logger           zerolog.Logger
}

// NewUpstream creates a new Upstream instance
func NewUpstream(cfg Config) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}

	return &Upstream{
		name:   cfg.Name,
		rpcURL: cfg.RPCURL,
		weight: weight,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		breaker: newBreaker(cfg.FailureThreshold, cfg.Cooldown),
		logger:  cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// Name returns the upstream name
func (u *Upstream) Name() string {
	return u.name
}

// Weight returns the weight for load balancing
func (u *Upstream) Weight() int {
	return u.weight
}

// IsAvailable reports whether the upstream may receive requests
func (u *Upstream) IsAvailable() bool {
	return u.breaker.allow()
}

// Execute sends a JSON-RPC request via HTTP
func (u *Upstream) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	resp, err := u.execute(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			u.breaker.failure()
		}
		return nil, err
	}
	u.breaker.success()
	return resp, nil
}

func (u *Upstream) execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.rpcURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	rpcResp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return rpcResp, nil
}

// Close releases idle connections
func (u *Upstream) Close() {
	u.httpClient.CloseIdleConnections()
}
