package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rpcdispatch/internal/config"
	"rpcdispatch/internal/dispatch"
	"rpcdispatch/internal/execution"
	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/methods"
	"rpcdispatch/internal/metrics"
	"rpcdispatch/internal/rpccontext"
)

func testConfig() *config.Config {
	return &config.Config{
		Host:        "127.0.0.1",
		MaxBodySize: 1024,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, timeout time.Duration) (*Server, *metrics.Metrics) {
	t.Helper()

	reg := methods.NewRegistry()
	reg.Register("test_echo", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return params, nil
	})
	reg.Register("test_block", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	m := metrics.New()
	runner := dispatch.NewRunner(
		dispatch.NewFactory(execution.Deps{Registry: reg, Observer: m, MaxBatchSize: 10}),
		dispatch.RunnerConfig{Timeout: timeout, Observer: m, Logger: zerolog.Nop()},
	)
	return New(cfg, runner, m, zerolog.Nop()), m
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func TestRPC_Object(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	status, body := post(t, ts.URL, `{"jsonrpc":"2.0","method":"test_echo","params":[1],"id":7}`)
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	want := `{"jsonrpc":"2.0","result":[1],"id":7}`
	if body != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestRPC_Batch(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	status, body := post(t, ts.URL, `[{"jsonrpc":"2.0","method":"test_echo","params":["a"],"id":1},{"jsonrpc":"2.0","method":"nope","id":2}]`)
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}

	responses, err := jsonrpc.ParseBatchResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseBatchResponse() error = %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("len(responses) = %d, want 2", len(responses))
	}
	if responses[1].Error == nil || responses[1].Error.Code != jsonrpc.CodeMethodNotFound {
		t.Errorf("responses[1].Error = %v, want method not found", responses[1].Error)
	}
}

func TestRPC_ParseErrors(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"jsonrpc":`},
		{"scalar", `42`},
		{"empty", ``},
		{"too large", `{"jsonrpc":"2.0","method":"test_echo","params":["` + strings.Repeat("x", 2048) + `"],"id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, ts.URL, tt.body)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
			}
			want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`
			if body != want {
				t.Errorf("body = %s, want %s", body, want)
			}
		})
	}
}

func TestRPC_Timeout(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), 50*time.Millisecond)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	status, body := post(t, ts.URL, `{"jsonrpc":"2.0","method":"test_block","id":1}`)
	if status != http.StatusRequestTimeout {
		t.Errorf("status = %d, want %d", status, http.StatusRequestTimeout)
	}
	if !strings.Contains(body, "Timeout expired") {
		t.Errorf("body = %s, want timeout error", body)
	}
}

func TestRPC_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

type abortingDispatcher struct{}

func (abortingDispatcher) Dispatch(ctx context.Context, rc *rpccontext.Context) dispatch.Outcome {
	w, _ := rc.Response.Claim()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`[{"jsonrpc":"2.0","result":1,"id":1}`))
	rc.Response.Seal()
	return dispatch.Timeout
}

func TestRPC_AbortedResponse(t *testing.T) {
	s := New(testConfig(), abortingDispatcher{}, metrics.New(), zerolog.Nop())
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", strings.NewReader(`[]`))
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("expected truncated response to fail")
	}
}

func TestRPC_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	s, _ := newTestServer(t, cfg, time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	req := `{"jsonrpc":"2.0","method":"test_echo","id":1}`
	if status, _ := post(t, ts.URL, req); status != http.StatusOK {
		t.Errorf("first status = %d, want %d", status, http.StatusOK)
	}
	status, body := post(t, ts.URL, req)
	if status != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", status, http.StatusTooManyRequests)
	}
	if !strings.Contains(body, "rate limit exceeded") {
		t.Errorf("body = %s, want rate limit error", body)
	}

	// Health checks are not limited
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.RPCHandler())
	defer ts.Close()

	post(t, ts.URL, `{"jsonrpc":"2.0","method":"test_echo","id":1}`)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != `{"status":"ok"}` {
		t.Errorf("healthz body = %s, want status ok", data)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, want := range []string{
		`rpcdispatch_dispatch_total{outcome="success"} 1`,
		`rpcdispatch_method_calls_total`,
		`rpcdispatch_http_requests_total`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) string {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	return string(data)
}

func TestWS_Dispatch(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.WSHandler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	got := roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_echo","params":[2],"id":1}`)
	if want := `{"jsonrpc":"2.0","result":[2],"id":1}`; got != want {
		t.Errorf("object reply = %s, want %s", got, want)
	}

	got = roundTrip(t, conn, `[{"jsonrpc":"2.0","method":"test_echo","params":[3],"id":2}]`)
	if want := `[{"jsonrpc":"2.0","result":[3],"id":2}]`; got != want {
		t.Errorf("batch reply = %s, want %s", got, want)
	}

	got = roundTrip(t, conn, `not json`)
	if want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`; got != want {
		t.Errorf("parse error reply = %s, want %s", got, want)
	}

	// A notification produces no frame, so the next reply belongs to id 4
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"test_echo"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	got = roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_echo","params":[4],"id":4}`)
	if want := `{"jsonrpc":"2.0","result":[4],"id":4}`; got != want {
		t.Errorf("reply after notification = %s, want %s", got, want)
	}
}

func TestWS_Timeout(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), 50*time.Millisecond)
	ts := httptest.NewServer(s.WSHandler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	got := roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_block","id":1}`)
	if !strings.Contains(got, "Timeout expired") {
		t.Errorf("reply = %s, want timeout error", got)
	}
}

func TestWS_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	s, _ := newTestServer(t, cfg, time.Second)
	ts := httptest.NewServer(s.WSHandler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_echo","id":1}`)
	got := roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_echo","id":2}`)
	if !strings.Contains(got, "rate limit exceeded") {
		t.Errorf("reply = %s, want rate limit error", got)
	}
}

func TestStop_ClosesWSClients(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), time.Second)
	ts := httptest.NewServer(s.WSHandler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	// The first reply proves the connection is registered
	roundTrip(t, conn, `{"jsonrpc":"2.0","method":"test_echo","id":1}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read to fail after Stop")
	}

	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("clients = %d, want 0", n)
	}
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.RPCPort = freePort(t)
	cfg.WSPort = freePort(t)
	s, _ := newTestServer(t, cfg, time.Second)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status, _ := post(t, fmt.Sprintf("http://127.0.0.1:%d/", cfg.RPCPort), `{"jsonrpc":"2.0","method":"test_echo","id":1}`)
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	return ts.Listener.Addr().(*net.TCPAddr).Port
}
