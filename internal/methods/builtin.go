package methods

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"rpcdispatch/internal/jsonrpc"
)

// BuiltinConfig holds the values reported by the built-in methods
type BuiltinConfig struct {
	ClientVersion string
	ChainID       uint64
	NetworkID     uint64
}

// RegisterBuiltins registers the node-independent methods served locally
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) error {
	builtins := map[string]Handler{
		"web3_clientVersion": constant(cfg.ClientVersion),
		"web3_sha3":          web3Sha3,
		"net_version":        constant(strconv.FormatUint(cfg.NetworkID, 10)),
		"eth_chainId":        constant("0x" + strconv.FormatUint(cfg.ChainID, 16)),
		"rpc_modules": func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			return json.Marshal(r.Modules())
		},
	}

	for name, h := range builtins {
		if err := r.Register(name, h); err != nil {
			return fmt.Errorf("failed to register builtin: %w", err)
		}
	}
	return nil
}

// constant returns a handler that always yields the same value
func constant(v interface{}) Handler {
	data, err := json.Marshal(v)
	return func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// web3Sha3 returns the legacy Keccak-256 hash of the given hex data
func web3Sha3(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
		return nil, jsonrpc.ErrInvalidParams
	}

	input := args[0]
	if !strings.HasPrefix(input, "0x") {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "data must be 0x-prefixed hex")
	}
	data, err := hex.DecodeString(strings.TrimPrefix(input, "0x"))
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, fmt.Sprintf("invalid hex data: %v", err))
	}

	return json.Marshal(Keccak256Hex(data))
}

// Keccak256Hex returns the 0x-prefixed legacy Keccak-256 digest of data
func Keccak256Hex(data []byte) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return "0x" + hex.EncodeToString(hash.Sum(nil))
}
