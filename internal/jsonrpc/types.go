package jsonrpc

import (
	"encoding/json"
	"net/http"
)

// Version is the JSON-RPC version
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Server error codes range: -32000 to -32099
	CodeServerError         = -32000
	CodeExceedsMaxBatchSize = -32005
)

// ID represents a JSON-RPC request/response ID
// It can be a string, number, or null
type ID struct {
	value interface{}
}

// NewIDString creates an ID from a string
func NewIDString(s string) ID {
	return ID{value: s}
}

// NewIDInt creates an ID from an integer
func NewIDInt(n int64) ID {
	return ID{value: n}
}

// NewIDNull creates a null ID
func NewIDNull() ID {
	return ID{value: nil}
}

// IsNull returns true if the ID is null
func (id ID) IsNull() bool {
	return id.value == nil
}

// Value returns the underlying value
func (id ID) Value() interface{} {
	return id.value
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.value)
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Common errors
var (
	ErrParse               = NewError(CodeParseError, "Parse error")
	ErrInvalidRequest      = NewError(CodeInvalidRequest, "Invalid Request")
	ErrMethodNotFound      = NewError(CodeMethodNotFound, "Method not found")
	ErrInvalidParams       = NewError(CodeInvalidParams, "Invalid params")
	ErrInternal            = NewError(CodeInternalError, "Internal error")
	ErrExceedsMaxBatchSize = NewError(CodeExceedsMaxBatchSize, "Number of requests exceeds max batch size")
)

// ErrorType classifies a dispatch-level failure. Each type carries the
// JSON-RPC error envelope and the HTTP status written for it.
type ErrorType int

const (
	ParseError ErrorType = iota
	TimeoutError
	InternalError
)

// String returns the classification name
func (t ErrorType) String() string {
	switch t {
	case ParseError:
		return "PARSE_ERROR"
	case TimeoutError:
		return "TIMEOUT_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// RPCError returns the JSON-RPC error object for the classification
func (t ErrorType) RPCError() *Error {
	switch t {
	case ParseError:
		return ErrParse
	case TimeoutError:
		return NewError(CodeInternalError, "Timeout expired")
	default:
		return ErrInternal
	}
}

// HTTPStatus returns the HTTP status written alongside the error envelope
func (t ErrorType) HTTPStatus() int {
	switch t {
	case ParseError:
		return http.StatusBadRequest
	case TimeoutError:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
