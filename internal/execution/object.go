package execution

import (
	"context"
	"fmt"
	"net/http"

	"rpcdispatch/internal/rpccontext"
)

// ObjectExecutor runs a single JSON-RPC call
type ObjectExecutor struct {
	rc   *rpccontext.Context
	deps Deps
}

// NewObjectExecutor binds an executor to a request carrying one object
func NewObjectExecutor(rc *rpccontext.Context, deps Deps) *ObjectExecutor {
	return &ObjectExecutor{rc: rc, deps: deps}
}

// MethodName returns the requested method, or UnknownMethod
func (e *ObjectExecutor) MethodName() string {
	if name := methodOf(e.rc.Object); name != "" {
		return name
	}
	return UnknownMethod
}

// Execute runs the call and writes its response. Only a failure to write
// the response is returned as an error.
func (e *ObjectExecutor) Execute(ctx context.Context) error {
	req, errResp := decode(e.rc.Object)
	if req == nil {
		body, err := errResp.Bytes()
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		return send(e.rc.Response, http.StatusBadRequest, body)
	}

	resp := e.deps.call(ctx, req)
	if req.IsNotification() {
		return send(e.rc.Response, http.StatusNoContent, nil)
	}

	body, err := resp.Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := send(e.rc.Response, http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
