package methods

import (
	"context"
	"encoding/json"
	"testing"

	"rpcdispatch/internal/jsonrpc"
)

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	err := RegisterBuiltins(r, BuiltinConfig{ClientVersion: "rpcdispatch/v1", ChainID: 137, NetworkID: 137})
	if err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	tests := []struct {
		method string
		params interface{}
		want   string
	}{
		{"web3_clientVersion", nil, `"rpcdispatch/v1"`},
		{"net_version", nil, `"137"`},
		{"eth_chainId", nil, `"0x89"`},
		{"web3_sha3", []string{"0x68656c6c6f20776f726c64"}, `"0x47173285a8d7341e5e972fc677286384f802f8ef42a5ec5f03bbfa254cb01fad"`},
		{"web3_sha3", []string{"0x"}, `"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := r.Call(context.Background(), newRequest(t, tt.method, tt.params))
			if resp.HasError() {
				t.Fatalf("error = %v", resp.Error)
			}
			if string(resp.Result) != tt.want {
				t.Errorf("Result = %s, want %s", resp.Result, tt.want)
			}
		})
	}

	resp := r.Call(context.Background(), newRequest(t, "rpc_modules", nil))
	var modules map[string]string
	if err := json.Unmarshal(resp.Result, &modules); err != nil {
		t.Fatalf("rpc_modules result: %v", err)
	}
	for _, ns := range []string{"web3", "net", "eth", "rpc"} {
		if modules[ns] != "1.0" {
			t.Errorf("modules[%s] = %q, want 1.0", ns, modules[ns])
		}
	}
}

func TestWeb3Sha3_InvalidParams(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, BuiltinConfig{})

	for _, params := range []interface{}{nil, []string{}, []string{"abc"}, []string{"0xzz"}, []int{1}} {
		resp := r.Call(context.Background(), newRequest(t, "web3_sha3", params))
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
			t.Errorf("web3_sha3(%v) error = %v, want invalid params", params, resp.Error)
		}
	}
}
