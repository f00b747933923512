// Package execution runs the JSON-RPC calls carried by one request and
// writes their response to the request's sink.
package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/methods"
	"rpcdispatch/internal/rpccontext"
)

// UnknownMethod is reported when no method name could be decoded
const UnknownMethod = "unknown"

// CallObserver records the outcome of single method calls
type CallObserver interface {
	ObserveCall(method string, failed bool, elapsed time.Duration)
}

// Deps are the shared collaborators bound into every executor
type Deps struct {
	Registry     *methods.Registry
	Tracer       trace.Tracer
	Observer     CallObserver
	MaxBatchSize int
}

func (d Deps) tracer() trace.Tracer {
	if d.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return d.Tracer
}

// call runs one decoded request through the registry under its own span
func (d Deps) call(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ctx, span := d.tracer().Start(ctx, "rpc."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
		),
	)
	defer span.End()

	start := time.Now()
	resp := d.Registry.Call(ctx, req)
	elapsed := time.Since(start)

	if resp.HasError() {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", resp.Error.Code))
		span.SetStatus(codes.Error, resp.Error.Message)
	}
	if d.Observer != nil {
		d.Observer.ObserveCall(req.Method, resp.HasError(), elapsed)
	}
	return resp
}

// decode parses one request entry. A nil request means the entry is not a
// valid request; the returned response then carries the error to send.
func decode(raw json.RawMessage) (*jsonrpc.Request, *jsonrpc.Response) {
	data := jsonrpc.TrimWhitespace(raw)
	if len(data) == 0 || data[0] != '{' {
		return nil, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrInvalidRequest)
	}

	req, err := jsonrpc.ParseRequest(data)
	if err != nil {
		return nil, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error()))
	}
	return req, nil
}

// methodOf extracts the method name without fully decoding the entry
func methodOf(raw json.RawMessage) string {
	var head struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.Method
}

// send claims the sink and writes a complete JSON body. A lost claim means
// the dispatcher already answered; the body is dropped.
func send(resp *rpccontext.Response, status int, body []byte) error {
	w, ok := resp.Claim()
	if !ok {
		return nil
	}
	if len(body) > 0 {
		w.SetHeader("Content-Type", "application/json")
	}
	if err := w.WriteHeader(status); err != nil {
		return err
	}
	if status != http.StatusNoContent && len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return w.End()
}
