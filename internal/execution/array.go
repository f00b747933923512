package execution

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/rpccontext"
)

// ArrayExecutor runs a JSON-RPC batch in order and writes one JSON array
type ArrayExecutor struct {
	rc   *rpccontext.Context
	deps Deps
}

// NewArrayExecutor binds an executor to a request carrying an array
func NewArrayExecutor(rc *rpccontext.Context, deps Deps) *ArrayExecutor {
	return &ArrayExecutor{rc: rc, deps: deps}
}

// MethodName returns the comma-joined method names of the batch
func (e *ArrayExecutor) MethodName() string {
	names := make([]string, 0, len(e.rc.Array))
	for _, raw := range e.rc.Array {
		if name := methodOf(raw); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return UnknownMethod
	}
	return strings.Join(names, ",")
}

// Execute runs every entry of the batch and writes the collected responses
func (e *ArrayExecutor) Execute(ctx context.Context) error {
	entries := e.rc.Array

	if len(entries) == 0 {
		return e.sendError(jsonrpc.ErrInvalidRequest)
	}
	if limit := e.deps.MaxBatchSize; limit > 0 && len(entries) > limit {
		return e.sendError(jsonrpc.ErrExceedsMaxBatchSize)
	}

	responses := make([][]byte, 0, len(entries))
	for _, raw := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, errResp := decode(raw)
		if req != nil {
			resp := e.deps.call(ctx, req)
			if req.IsNotification() {
				continue
			}
			errResp = resp
		}

		data, err := errResp.Bytes()
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		responses = append(responses, data)
	}

	if len(responses) == 0 {
		return send(e.rc.Response, http.StatusNoContent, nil)
	}
	return e.stream(responses)
}

// stream writes the batch response piece by piece
func (e *ArrayExecutor) stream(responses [][]byte) error {
	w, ok := e.rc.Response.Claim()
	if !ok {
		return nil
	}
	w.SetHeader("Content-Type", "application/json")

	if _, err := w.Write([]byte{'['}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	for i, data := range responses {
		if i > 0 {
			data = append([]byte{','}, data...)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if _, err := w.Write([]byte{']'}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return w.End()
}

func (e *ArrayExecutor) sendError(rpcErr *jsonrpc.Error) error {
	body, err := jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), rpcErr).Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return send(e.rc.Response, http.StatusBadRequest, body)
}
