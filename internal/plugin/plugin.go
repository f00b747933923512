// Package plugin serves JSON-RPC methods implemented as JavaScript files.
//
// Plugins are loaded from a directory at startup. Each file must declare
// the method it serves with an @method directive and define an
// execute(params, upstream) function:
//
//	// @method custom_isContract
//	function execute(params, upstream) {
//	    var code = upstream.call("eth_getCode", [params[0], "latest"]);
//	    return code !== "0x";
//	}
//
// Scripts run in a fresh goja runtime per call and are interrupted when the
// call's context is done.
package plugin

import (
	"context"
	"encoding/json"

	"github.com/dop251/goja"
)

// Plugin error codes
const (
	ErrCodePluginExecution   = -32002
	ErrCodePluginTimeout     = -32003
	ErrCodePluginInvalidArgs = -32004
)

// Plugin is a loaded JavaScript method
type Plugin struct {
	Name   string // file name without extension
	Method string

	program *goja.Program
}

// Caller forwards calls made by scripts through upstream.call
type Caller interface {
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}
