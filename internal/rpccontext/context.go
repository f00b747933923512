// Package rpccontext holds the per-request state shared between the HTTP
// and WebSocket transports and the dispatcher: the parsed payload shape and
// the response sink.
package rpccontext

import (
	"encoding/json"
	"net/http"
	"time"

	"rpcdispatch/internal/jsonrpc"
)

// Transport names
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// Context is one in-flight JSON-RPC request. At most one payload shape is
// set: Object for a JSON object body, Array (with IsArray) for a JSON array
// body. Neither is set when the body could not be parsed.
type Context struct {
	Object  json.RawMessage
	Array   []json.RawMessage
	IsArray bool

	Transport  string
	RemoteAddr string
	ReceivedAt time.Time
	Response   *Response
}

// New creates a Context writing to w
func New(w http.ResponseWriter, transport string) *Context {
	return &Context{
		Transport:  transport,
		ReceivedAt: time.Now(),
		Response:   NewResponse(w),
	}
}

// Age returns the time since the request was received
func (c *Context) Age() time.Duration {
	if c.ReceivedAt.IsZero() {
		return 0
	}
	return time.Since(c.ReceivedAt)
}

// HasObject reports whether the body parsed as a single JSON object
func (c *Context) HasObject() bool {
	return c.Object != nil
}

// HasArray reports whether the body parsed as a JSON array
func (c *Context) HasArray() bool {
	return c.IsArray
}

// Parse classifies a raw body and sets the matching payload field. Bodies
// that are neither a well-formed JSON object nor a well-formed JSON array
// leave both fields unset.
func (c *Context) Parse(body []byte) {
	c.Object = nil
	c.Array = nil
	c.IsArray = false

	data := jsonrpc.TrimWhitespace(body)
	if len(data) == 0 {
		return
	}

	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return
		}
		c.Object = json.RawMessage(data)
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return
		}
		if entries == nil {
			entries = []json.RawMessage{}
		}
		c.Array = entries
		c.IsArray = true
	}
}
