package rpccontext

import (
	"errors"
	"net/http"
	"sync"
)

var (
	// ErrResponseEnded is returned by Writer methods once the response has
	// been ended by its owner or sealed by the dispatcher.
	ErrResponseEnded = errors.New("response already ended")

	// ErrResponseTaken is returned by the Writer of an owner that lost the
	// response to Preempt.
	ErrResponseTaken = errors.New("response taken over")
)

// Response is the mutable response sink of one in-flight request.
//
// Exactly one Writer owns it at a time. The executor takes ownership with
// Claim; the dispatcher may take it back with Preempt as long as nothing has
// reached the underlying writer. All transitions happen under one mutex, so
// the owner's writes and Seal are totally ordered.
type Response struct {
	w http.ResponseWriter

	mu      sync.Mutex
	owner   *Writer
	started bool
	ended   bool
	aborted bool
	status  int
}

// NewResponse wraps an http.ResponseWriter
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Claim acquires exclusive write access to the response. It succeeds for
// exactly one caller over the lifetime of the response.
func (r *Response) Claim() (*Writer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != nil || r.ended {
		return nil, false
	}
	r.owner = &Writer{resp: r}
	return r.owner, true
}

// Preempt acquires write access whether or not the response is claimed,
// provided the current owner has not written anything yet. The previous
// owner's Writer fails with ErrResponseTaken from then on.
func (r *Response) Preempt() (*Writer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.ended {
		return nil, false
	}
	r.owner = &Writer{resp: r}
	return r.owner, true
}

// Claimed reports whether some party already owns the response
func (r *Response) Claimed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner != nil || r.ended
}

// Ended reports whether the response was ended or sealed
func (r *Response) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Status returns the HTTP status written, or 0 if nothing was written yet
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Aborted reports whether the response was sealed while owned but not
// ended. The transport must drop the connection rather than deliver an
// empty or truncated body.
func (r *Response) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// Seal ends the response for good. Nothing reaches the underlying writer
// after Seal returns, whoever holds the claim.
func (r *Response) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.ended = true
	if r.owner != nil {
		r.aborted = true
	}
}

// writeStatus writes the status line once. Callers hold r.mu.
func (r *Response) writeStatus(status int) {
	if r.started {
		return
	}
	r.started = true
	r.status = status
	r.w.WriteHeader(status)
}

// Writer is the write handle handed to the owner of a Response
type Writer struct {
	resp *Response
}

// check reports why w may not write. Callers hold the response mutex.
func (w *Writer) check() error {
	r := w.resp
	if r.owner != w {
		return ErrResponseTaken
	}
	if r.ended {
		return ErrResponseEnded
	}
	return nil
}

// SetHeader sets a response header. It is ignored once the status line has
// been written.
func (w *Writer) SetHeader(key, value string) {
	r := w.resp
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.check() != nil || r.started {
		return
	}
	r.w.Header().Set(key, value)
}

// WriteHeader writes the HTTP status. Only the first call has an effect.
func (w *Writer) WriteHeader(status int) error {
	r := w.resp
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := w.check(); err != nil {
		return err
	}
	r.writeStatus(status)
	return nil
}

// Write writes body bytes, implicitly writing status 200 first
func (w *Writer) Write(p []byte) (int, error) {
	r := w.resp
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := w.check(); err != nil {
		return 0, err
	}
	r.writeStatus(http.StatusOK)
	return r.w.Write(p)
}

// End completes the response and flushes it to the transport
func (w *Writer) End() error {
	r := w.resp
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := w.check(); err != nil {
		return err
	}
	r.writeStatus(http.StatusOK)
	r.ended = true
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
