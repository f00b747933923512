// Package methods holds the JSON-RPC method table shared by every dispatch.
package methods

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"rpcdispatch/internal/jsonrpc"
)

// Handler executes one JSON-RPC method call. Returning a *jsonrpc.Error
// sends that error to the client as-is; any other error is reported as an
// internal error.
type Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// FallbackHandler serves methods that have no local handler
type FallbackHandler func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

// Registry maps method names to handlers
type Registry struct {
	methods  map[string]Handler
	fallback FallbackHandler
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Handler),
	}
}

// Register adds a handler for a method
func (r *Registry) Register(method string, h Handler) error {
	if method == "" {
		return fmt.Errorf("method name is required")
	}
	if h == nil {
		return fmt.Errorf("method %s: handler is nil", method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[method]; exists {
		return fmt.Errorf("duplicate method: %s", method)
	}
	r.methods[method] = h
	return nil
}

// Wrap replaces the handler of a registered method with decorate(handler)
func (r *Registry) Wrap(method string, decorate func(Handler) Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.methods[method]
	if !ok {
		return false
	}
	r.methods[method] = decorate(h)
	return true
}

// SetFallback sets the handler used for methods with no local handler
func (r *Registry) SetFallback(fb FallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fb
}

// Lookup returns the handler for a method
func (r *Registry) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.methods[method]
	return h, ok
}

// Methods returns all registered method names, sorted
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modules returns the namespaces of registered methods (the part before the
// first underscore) with their version, as reported by rpc_modules.
func (r *Registry) Modules() map[string]string {
	modules := make(map[string]string)
	for _, name := range r.Methods() {
		if idx := strings.Index(name, "_"); idx > 0 {
			modules[name[:idx]] = "1.0"
		}
	}
	return modules
}

// Call executes a request and always returns a response for it. The
// response ID matches the request ID.
func (r *Registry) Call(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	h, ok := r.Lookup(req.Method)
	if !ok {
		r.mu.RLock()
		fb := r.fallback
		r.mu.RUnlock()

		if fb == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrMethodNotFound)
		}
		resp, err := fb(ctx, req)
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, toRPCError(err))
		}
		resp.ID = req.ID
		return resp
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, toRPCError(err))
	}
	return jsonrpc.NewResponseRaw(req.ID, result)
}

// toRPCError keeps JSON-RPC errors and maps everything else to an internal error
func toRPCError(err error) *jsonrpc.Error {
	if rpcErr, ok := err.(*jsonrpc.Error); ok {
		return rpcErr
	}
	return jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
}
