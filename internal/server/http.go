package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/rpccontext"
)

// errRateLimited is sent to clients over the configured request rate
var errRateLimited = jsonrpc.NewError(jsonrpc.CodeServerError, "rate limit exceeded")

// handleRPC reads the body, classifies it and hands it to the dispatcher.
// A body that cannot be read or exceeds the size limit leaves the context
// unparsed, so the dispatcher answers it with a parse error.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	rc := rpccontext.New(w, rpccontext.TransportHTTP)
	rc.RemoteAddr = r.RemoteAddr

	body, err := s.readBody(r)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("remoteAddr", r.RemoteAddr).
			Msg("rejected request body")
	} else {
		rc.Parse(body)
	}

	s.dispatcher.Dispatch(r.Context(), rc)

	// A half-written body must not reach the client as a complete reply
	if rc.Response.Aborted() {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	limit := s.cfg.MaxBodySize
	if limit <= 0 {
		return io.ReadAll(r.Body)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return body, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// rateLimitMiddleware rejects requests over the configured rate with 429
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allow(rpccontext.TransportHTTP) {
			writeJSONRPCError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request using the structured logger
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSONRPCError(w http.ResponseWriter, status int, rpcErr *jsonrpc.Error) {
	data, err := jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), rpcErr).Bytes()
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
