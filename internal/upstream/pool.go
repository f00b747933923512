package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/methods"
)

// ErrAllUpstreamsFailed is returned when no upstream produced a response
var ErrAllUpstreamsFailed = errors.New("all upstreams failed")

// ErrNoUpstreams is returned when the pool has no upstream to try
var ErrNoUpstreams = errors.New("no available upstreams")

// Pool balances requests across upstreams with weighted round-robin and
// fails over to the next upstream on transport errors.
type Pool struct {
	upstreams []*Upstream
	logger    zerolog.Logger

	mu            sync.Mutex
	currentIndex  int
	currentWeight int
}

// NewPool creates a Pool from upstream configurations
func NewPool(cfgs []Config, logger zerolog.Logger) *Pool {
	poolLogger := logger.With().Str("component", "upstream").Logger()

	upstreams := make([]*Upstream, 0, len(cfgs))
	for _, cfg := range cfgs {
		cfg.Logger = poolLogger
		upstreams = append(upstreams, NewUpstream(cfg))
	}

	return &Pool{
		upstreams:    upstreams,
		logger:       poolLogger,
		currentIndex: -1,
	}
}

// Len returns the number of configured upstreams
func (p *Pool) Len() int {
	return len(p.upstreams)
}

// Close closes idle connections of every upstream
func (p *Pool) Close() {
	for _, u := range p.upstreams {
		u.Close()
	}
}

// Next returns the next available upstream not in exclude, or nil
func (p *Pool) Next(exclude map[string]bool) *Upstream {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := make([]*Upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if exclude[u.Name()] || !u.IsAvailable() {
			continue
		}
		available = append(available, u)
	}

	switch len(available) {
	case 0:
		return nil
	case 1:
		return available[0]
	}

	step := available[0].Weight()
	maxWeight := 0
	for _, u := range available {
		step = gcd(step, u.Weight())
		if u.Weight() > maxWeight {
			maxWeight = u.Weight()
		}
	}

	for {
		p.currentIndex = (p.currentIndex + 1) % len(available)
		if p.currentIndex == 0 {
			p.currentWeight -= step
			if p.currentWeight <= 0 {
				p.currentWeight = maxWeight
			}
		}
		if u := available[p.currentIndex]; u.Weight() >= p.currentWeight {
			return u
		}
	}
}

// Execute sends the request to upstreams until one answers
func (p *Pool) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if len(p.upstreams) == 0 {
		return nil, ErrNoUpstreams
	}

	tried := make(map[string]bool, len(p.upstreams))
	var lastErr error

	for len(tried) < len(p.upstreams) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		u := p.Next(tried)
		if u == nil {
			break
		}
		tried[u.Name()] = true

		resp, err := u.Execute(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		p.logger.Debug().
			Err(err).
			Str("upstream", u.Name()).
			Str("method", req.Method).
			Msg("upstream request failed, trying next")
	}

	if lastErr == nil {
		return nil, ErrNoUpstreams
	}
	return nil, fmt.Errorf("%w: %v", ErrAllUpstreamsFailed, lastErr)
}

// Fallback returns a registry fallback that proxies unknown methods
func (p *Pool) Fallback() methods.FallbackHandler {
	return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
		resp, err := p.Execute(ctx, req)
		if err != nil {
			p.logger.Warn().Err(err).Str("method", req.Method).Msg("failed to proxy request")
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
		}
		return resp, nil
	}
}

// Call sends a single method call upstream and returns its raw result. A
// JSON-RPC error from the upstream is returned as *jsonrpc.Error.
func (p *Pool) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	req, err := jsonrpc.NewRequest(method, nil, jsonrpc.NewIDInt(1))
	if err != nil {
		return nil, err
	}
	req.Params = params

	resp, err := p.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.HasError() {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// MethodHandler returns a registry handler that proxies one method
func (p *Pool) MethodHandler(method string) methods.Handler {
	return func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return p.Call(ctx, method, params)
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
