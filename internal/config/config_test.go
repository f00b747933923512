package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RPCPort != DefaultRPCPort || cfg.WSPort != DefaultWSPort {
		t.Errorf("ports = %d/%d, want %d/%d", cfg.RPCPort, cfg.WSPort, DefaultRPCPort, DefaultWSPort)
	}
	if cfg.GetDispatchTimeoutDuration() != 5*time.Second {
		t.Errorf("dispatch timeout = %s, want 5s", cfg.GetDispatchTimeoutDuration())
	}
	if cfg.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("MaxBatchSize = %d, want %d", cfg.MaxBatchSize, DefaultMaxBatchSize)
	}
	if cfg.NetworkID != cfg.ChainID {
		t.Errorf("NetworkID = %d, want chain id %d", cfg.NetworkID, cfg.ChainID)
	}
	if cfg.RateLimitEnabled() {
		t.Error("RateLimitEnabled() = true, want false")
	}
	if cfg.Plugins.GetTimeoutDuration() != 3*time.Second {
		t.Errorf("plugin timeout = %s, want 3s", cfg.Plugins.GetTimeoutDuration())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `{
		"rpcPort": 9000,
		"wsPort": 9001,
		"logLevel": "debug",
		"dispatchTimeout": 1500,
		"chainId": 137,
		"rateLimit": {"requestsPerSecond": 50},
		"cache": {"enabled": true, "ttl": 2, "size": 10, "methods": ["eth_chainId"]},
		"upstreams": [
			{"name": "a", "rpcUrl": "http://a:8545"},
			{"name": "b", "rpcUrl": "http://b:8545", "weight": 3}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetDispatchTimeoutDuration() != 1500*time.Millisecond {
		t.Errorf("dispatch timeout = %s, want 1.5s", cfg.GetDispatchTimeoutDuration())
	}
	if cfg.NetworkID != 137 {
		t.Errorf("NetworkID = %d, want 137", cfg.NetworkID)
	}
	if cfg.RateLimit.Burst != 50 {
		t.Errorf("Burst = %d, want 50", cfg.RateLimit.Burst)
	}
	if cfg.Upstreams[0].Weight != 1 || cfg.Upstreams[1].Weight != 3 {
		t.Errorf("weights = %d/%d, want 1/3", cfg.Upstreams[0].Weight, cfg.Upstreams[1].Weight)
	}
	if cfg.Cache.GetTTLDuration() != 2*time.Second {
		t.Errorf("cache ttl = %s, want 2s", cfg.Cache.GetTTLDuration())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RPCDISPATCH_DISPATCH_TIMEOUT", "250")
	t.Setenv("RPCDISPATCH_LOG_LEVEL", "warn")
	t.Setenv("RPCDISPATCH_CACHE_METHODS", "eth_chainId,net_version")
	t.Setenv("RPCDISPATCH_TRACING_ENABLED", "true")

	cfg, err := Load(writeConfig(t, `{"dispatchTimeout": 9000, "logLevel": "debug"}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DispatchTimeout != 250 {
		t.Errorf("DispatchTimeout = %d, want 250", cfg.DispatchTimeout)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
	if len(cfg.Cache.Methods) != 2 || cfg.Cache.Methods[1] != "net_version" {
		t.Errorf("Cache.Methods = %v", cfg.Cache.Methods)
	}
	if !cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = false, want true")
	}
}

func TestLoad_WithoutFile(t *testing.T) {
	t.Setenv("RPCDISPATCH_RPC_PORT", "7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCPort != 7000 {
		t.Errorf("RPCPort = %d, want 7000", cfg.RPCPort)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", `{`},
		{"bad port", `{"rpcPort": 70000}`},
		{"same ports", `{"rpcPort": 9000, "wsPort": 9000}`},
		{"bad log level", `{"logLevel": "verbose"}`},
		{"negative timeout", `{"dispatchTimeout": -1}`},
		{"negative batch", `{"maxBatchSize": -1}`},
		{"sample ratio", `{"tracing": {"sampleRatio": 2}}`},
		{"upstream without name", `{"upstreams": [{"rpcUrl": "http://a"}]}`},
		{"upstream without url", `{"upstreams": [{"name": "a"}]}`},
		{"duplicate upstream", `{"upstreams": [{"name": "a", "rpcUrl": "http://a"}, {"name": "a", "rpcUrl": "http://b"}]}`},
		{"negative weight", `{"upstreams": [{"name": "a", "rpcUrl": "http://a", "weight": -1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load err = nil, want error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load(missing) err = nil, want error")
	}
}
