// Package blockparam inspects the block argument of Ethereum JSON-RPC calls
// to tell whether identical calls may return different results.
package blockparam

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DynamicBlockTags are block tags whose meaning moves with the chain head
var DynamicBlockTags = map[string]bool{
	"latest":    true,
	"pending":   true,
	"earliest":  true,
	"safe":      true,
	"finalized": true,
}

// Index returns the position of the block argument of method, or -1 when
// the method takes none
func Index(method string) int {
	switch method {
	case "eth_getBlockByNumber",
		"eth_getBlockTransactionCountByNumber",
		"eth_getTransactionByBlockNumberAndIndex",
		"eth_getBlockReceipts",
		"debug_traceBlockByNumber",
		"trace_replayBlockTransactions":
		return 0
	case "eth_getCode", "eth_getBalance", "eth_getTransactionCount",
		"eth_call", "debug_traceCall", "trace_call", "trace_callMany":
		return 1
	case "eth_getStorageAt", "eth_getProof":
		return 2
	default:
		return -1
	}
}

// Dynamic reports whether the call is resolved against a block that moves
// with the chain head: a tag such as "latest", or an omitted block argument,
// which nodes treat as "latest". Methods without a block argument are never
// dynamic.
func Dynamic(method string, params json.RawMessage) bool {
	switch method {
	case "eth_getLogs", "trace_filter":
		return !filterPinned(params)
	}

	idx := Index(method)
	if idx < 0 {
		return false
	}

	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || idx >= len(args) {
		return true
	}
	return !isFixed(args[idx])
}

// isFixed reports whether a block argument names a concrete block: a hex
// number, a block hash, or an EIP-1898 object holding either
func isFixed(arg json.RawMessage) bool {
	var tag string
	if err := json.Unmarshal(arg, &tag); err == nil {
		return isFixedTag(tag)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(arg, &obj); err != nil {
		return false
	}
	if hash, ok := obj["blockHash"].(string); ok {
		return isHash(hash)
	}
	if num, ok := obj["blockNumber"].(string); ok {
		return isFixedTag(num)
	}
	return false
}

func isFixedTag(tag string) bool {
	if DynamicBlockTags[strings.ToLower(tag)] {
		return false
	}
	if isHash(tag) {
		return true
	}
	_, err := ParseHexUint64(tag)
	return err == nil
}

// filterPinned handles log filters: a block hash, or a range whose both
// ends are concrete numbers
func filterPinned(params json.RawMessage) bool {
	var args []map[string]interface{}
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return false
	}
	filter := args[0]

	if hash, ok := filter["blockHash"].(string); ok {
		return isHash(hash)
	}

	from, ok := filter["fromBlock"].(string)
	if !ok || !isFixedTag(from) {
		return false
	}
	to, ok := filter["toBlock"].(string)
	if !ok || !isFixedTag(to) {
		return false
	}
	return true
}

// ParseHexUint64 parses a 0x-prefixed hex quantity
func ParseHexUint64(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseUint(s[2:], 16, 64)
}

func isHash(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
