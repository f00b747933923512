package dispatch

import (
	"fmt"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/rpccontext"
)

// ErrorResponder writes a dispatch-level error to a claimed response
type ErrorResponder interface {
	WriteError(w *rpccontext.Writer, id jsonrpc.ID, t jsonrpc.ErrorType) error
}

// JSONResponder writes a JSON-RPC error envelope with the HTTP status of
// the error type and ends the response.
type JSONResponder struct{}

// WriteError implements ErrorResponder
func (JSONResponder) WriteError(w *rpccontext.Writer, id jsonrpc.ID, t jsonrpc.ErrorType) error {
	body, err := jsonrpc.NewErrorResponse(id, t.RPCError()).Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal error response: %w", err)
	}

	w.SetHeader("Content-Type", "application/json")
	if err := w.WriteHeader(t.HTTPStatus()); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.End()
}
