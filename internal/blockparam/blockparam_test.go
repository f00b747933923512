package blockparam

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDynamic(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name   string
		method string
		params string
		want   bool
	}{
		{"no block argument", "eth_chainId", `[]`, false},
		{"hash lookup", "eth_getTransactionByHash", `["` + hash + `"]`, false},
		{"balance at number", "eth_getBalance", `["0x1","0x10"]`, false},
		{"balance at latest", "eth_getBalance", `["0x1","latest"]`, true},
		{"balance tag uppercase", "eth_getBalance", `["0x1","LATEST"]`, true},
		{"balance omitted block", "eth_getBalance", `["0x1"]`, true},
		{"balance at hash", "eth_getBalance", `["0x1","` + hash + `"]`, false},
		{"call with eip1898 hash", "eth_call", `[{},{"blockHash":"` + hash + `"}]`, false},
		{"call with eip1898 number", "eth_call", `[{},{"blockNumber":"0x5"}]`, false},
		{"call with eip1898 tag", "eth_call", `[{},{"blockNumber":"safe"}]`, true},
		{"storage at number", "eth_getStorageAt", `["0x1","0x0","0x2"]`, false},
		{"block by number", "eth_getBlockByNumber", `["0x10",false]`, false},
		{"block by pending", "eth_getBlockByNumber", `["pending",false]`, true},
		{"decimal is not a quantity", "eth_getBlockByNumber", `["16",false]`, true},
		{"params not an array", "eth_getBalance", `{"a":1}`, true},
		{"logs by range", "eth_getLogs", `[{"fromBlock":"0x1","toBlock":"0x2"}]`, false},
		{"logs open range", "eth_getLogs", `[{"fromBlock":"0x1"}]`, true},
		{"logs to latest", "eth_getLogs", `[{"fromBlock":"0x1","toBlock":"latest"}]`, true},
		{"logs by hash", "eth_getLogs", `[{"blockHash":"` + hash + `"}]`, false},
		{"logs no filter", "eth_getLogs", `[]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dynamic(tt.method, json.RawMessage(tt.params)); got != tt.want {
				t.Errorf("Dynamic(%s, %s) = %v, want %v", tt.method, tt.params, got, tt.want)
			}
		})
	}
}

func TestIndex(t *testing.T) {
	tests := map[string]int{
		"eth_getBlockByNumber": 0,
		"eth_call":             1,
		"eth_getProof":         2,
		"eth_blockNumber":      -1,
	}
	for method, want := range tests {
		if got := Index(method); got != want {
			t.Errorf("Index(%s) = %d, want %d", method, got, want)
		}
	}
}

func TestParseHexUint64(t *testing.T) {
	if n, err := ParseHexUint64("0xff"); err != nil || n != 255 {
		t.Errorf("ParseHexUint64(0xff) = %d, %v, want 255", n, err)
	}
	if _, err := ParseHexUint64("ff"); err == nil {
		t.Error("expected error for missing prefix")
	}
	if _, err := ParseHexUint64("0xzz"); err == nil {
		t.Error("expected error for invalid digits")
	}
}
