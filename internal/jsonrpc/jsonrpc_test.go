package jsonrpc

import (
	"net/http"
	"testing"
)

func TestParseRequest_Notification(t *testing.T) {
	tests := []struct {
		body   string
		notify bool
	}{
		{`{"jsonrpc":"2.0","method":"a"}`, true},
		{`{"jsonrpc":"2.0","method":"a","id":1}`, false},
		{`{"jsonrpc":"2.0","method":"a","id":null}`, false},
		{`{"jsonrpc":"2.0","method":"a","id":"x"}`, false},
	}
	for _, tt := range tests {
		req, err := ParseRequest([]byte(tt.body))
		if err != nil {
			t.Fatalf("ParseRequest(%s): %v", tt.body, err)
		}
		if req.IsNotification() != tt.notify {
			t.Errorf("IsNotification(%s) = %v, want %v", tt.body, req.IsNotification(), tt.notify)
		}
	}
}

func TestParseRequest_InvalidID(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"a","id":{`)); err == nil {
		t.Error("ParseRequest err = nil, want error")
	}
}

func TestRequest_Validate(t *testing.T) {
	req := &Request{JSONRPC: "1.0", Method: "a"}
	if err := req.Validate(); err == nil {
		t.Error("Validate(version 1.0) err = nil")
	}
	req = &Request{JSONRPC: Version}
	if err := req.Validate(); err == nil {
		t.Error("Validate(no method) err = nil")
	}
	req = &Request{JSONRPC: Version, Method: "a"}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestRequest_Bytes(t *testing.T) {
	req, err := NewRequest("eth_getBalance", []string{"0x1", "latest"}, NewIDInt(5))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	data, err := req.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := `{"jsonrpc":"2.0","method":"eth_getBalance","params":["0x1","latest"],"id":5}`
	if string(data) != want {
		t.Errorf("Bytes() = %s, want %s", data, want)
	}
}

func TestNewResponseRaw_EmptyResult(t *testing.T) {
	data, _ := NewResponseRaw(NewIDString("a"), nil).Bytes()
	want := `{"jsonrpc":"2.0","result":null,"id":"a"}`
	if string(data) != want {
		t.Errorf("Bytes() = %s, want %s", data, want)
	}
}

func TestParseBatchResponse(t *testing.T) {
	responses, err := ParseBatchResponse([]byte(` [{"jsonrpc":"2.0","result":1,"id":1},{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":2}]`))
	if err != nil {
		t.Fatalf("ParseBatchResponse: %v", err)
	}
	if len(responses) != 2 || !responses[0].IsSuccess() || !responses[1].HasError() {
		t.Errorf("responses = %+v", responses)
	}

	single, err := ParseBatchResponse([]byte(`{"jsonrpc":"2.0","result":true,"id":1}`))
	if err != nil || len(single) != 1 {
		t.Errorf("single = %v, %v", single, err)
	}

	if _, err := ParseBatchResponse([]byte("  ")); err == nil {
		t.Error("ParseBatchResponse(blank) err = nil")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		typ     ErrorType
		name    string
		code    int
		message string
		status  int
	}{
		{ParseError, "PARSE_ERROR", CodeParseError, "Parse error", http.StatusBadRequest},
		{TimeoutError, "TIMEOUT_ERROR", CodeInternalError, "Timeout expired", http.StatusRequestTimeout},
		{InternalError, "INTERNAL_ERROR", CodeInternalError, "Internal error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if tt.typ.String() != tt.name {
			t.Errorf("String() = %s, want %s", tt.typ.String(), tt.name)
		}
		rpcErr := tt.typ.RPCError()
		if rpcErr.Code != tt.code || rpcErr.Message != tt.message {
			t.Errorf("%s RPCError() = %d %q, want %d %q", tt.name, rpcErr.Code, rpcErr.Message, tt.code, tt.message)
		}
		if tt.typ.HTTPStatus() != tt.status {
			t.Errorf("%s HTTPStatus() = %d, want %d", tt.name, tt.typ.HTTPStatus(), tt.status)
		}
	}
}

func TestTrimWhitespace(t *testing.T) {
	if got := string(TrimWhitespace([]byte("\n\t {}"))); got != "{}" {
		t.Errorf("TrimWhitespace = %q, want {}", got)
	}
	if got := TrimWhitespace([]byte(" \r\n")); len(got) != 0 {
		t.Errorf("TrimWhitespace(blank) = %q, want empty", got)
	}
}
