package plugin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"rpcdispatch/internal/methods"
)

// runtime is one goja VM with the bindings scripts can use
type runtime struct {
	ctx    context.Context
	vm     *goja.Runtime
	caller Caller
	logger zerolog.Logger
}

func newRuntime(ctx context.Context, caller Caller, logger zerolog.Logger) *runtime {
	r := &runtime{
		ctx:    ctx,
		vm:     goja.New(),
		caller: caller,
		logger: logger,
	}
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	r.vm.Set("console", r.console())
	r.vm.Set("utils", r.utils())
	r.vm.Set("upstream", r.upstream())
	return r
}

// run loads the program and calls its execute function
func (r *runtime) run(program *goja.Program, args interface{}) (interface{}, error) {
	if _, err := r.vm.RunProgram(program); err != nil {
		return nil, err
	}

	execute, ok := goja.AssertFunction(r.vm.Get("execute"))
	if !ok {
		return nil, fmt.Errorf("execute function not defined")
	}

	result, err := execute(goja.Undefined(), r.vm.ToValue(args), r.vm.Get("upstream"))
	if err != nil {
		return nil, err
	}
	return result.Export(), nil
}

func (r *runtime) console() *goja.Object {
	console := r.vm.NewObject()
	levels := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"log":   zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, level := range levels {
		level := level
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.String()
			}
			r.logger.WithLevel(level).Msg(strings.Join(args, " "))
			return goja.Undefined()
		})
	}
	return console
}

func (r *runtime) utils() *goja.Object {
	utils := r.vm.NewObject()

	utils.Set("keccak256", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(methods.Keccak256Hex(r.bytesArg(call, 0)))
	})

	// functionSelector returns the 4-byte selector of a function signature
	utils.Set("functionSelector", func(call goja.FunctionCall) goja.Value {
		digest := methods.Keccak256Hex([]byte(r.stringArg(call, 0)))
		return r.vm.ToValue(digest[:10])
	})

	utils.Set("padAddress", func(call goja.FunctionCall) goja.Value {
		addr := strings.TrimPrefix(strings.ToLower(r.stringArg(call, 0)), "0x")
		if len(addr) != 40 {
			panic(r.vm.NewTypeError("invalid address length"))
		}
		return r.vm.ToValue("0x" + strings.Repeat("0", 24) + addr)
	})

	utils.Set("encodeUint256", func(call goja.FunctionCall) goja.Value {
		n, ok := new(big.Int).SetString(r.stringArg(call, 0), 0)
		if !ok || n.Sign() < 0 || n.BitLen() > 256 {
			panic(r.vm.NewTypeError("invalid uint256: %s", call.Argument(0).String()))
		}
		return r.vm.ToValue(fmt.Sprintf("0x%064x", n))
	})

	// hexToNumber decodes a quantity; values beyond 2^53 lose precision
	utils.Set("hexToNumber", func(call goja.FunctionCall) goja.Value {
		n, ok := new(big.Int).SetString(strings.TrimPrefix(r.stringArg(call, 0), "0x"), 16)
		if !ok {
			panic(r.vm.NewTypeError("invalid hex quantity: %s", call.Argument(0).String()))
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return r.vm.ToValue(f)
	})

	utils.Set("numberToHex", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(fmt.Sprintf("0x%x", call.Argument(0).ToInteger()))
	})

	return utils
}

// upstream exposes call(method, params) and batchCall([{method, params}])
func (r *runtime) upstream() *goja.Object {
	upstream := r.vm.NewObject()

	upstream.Set("call", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(r.callUpstream(r.stringArg(call, 0), call.Argument(1).Export()))
	})

	upstream.Set("batchCall", func(call goja.FunctionCall) goja.Value {
		var calls []struct {
			Method string      `json:"method"`
			Params interface{} `json:"params"`
		}
		if err := r.vm.ExportTo(call.Argument(0), &calls); err != nil {
			panic(r.vm.NewTypeError("upstream.batchCall requires an array of {method, params}"))
		}

		results := make([]interface{}, len(calls))
		for i, c := range calls {
			results[i] = r.callUpstream(c.Method, c.Params)
		}
		return r.vm.ToValue(results)
	})

	return upstream
}

func (r *runtime) callUpstream(method string, params interface{}) interface{} {
	if r.caller == nil {
		panic(r.vm.NewGoError(fmt.Errorf("no upstream configured")))
	}
	if method == "" {
		panic(r.vm.NewTypeError("upstream call requires a method"))
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			panic(r.vm.NewGoError(fmt.Errorf("failed to marshal params: %w", err)))
		}
		raw = data
	}

	result, err := r.caller.Call(r.ctx, method, raw)
	if err != nil {
		panic(r.vm.NewGoError(fmt.Errorf("upstream call %s failed: %w", method, err)))
	}

	var parsed interface{}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return string(result)
	}
	return parsed
}

func (r *runtime) stringArg(call goja.FunctionCall, i int) string {
	arg := call.Argument(i)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		panic(r.vm.NewTypeError("missing argument %d", i))
	}
	return arg.String()
}

// bytesArg accepts a 0x-prefixed hex string or a plain string
func (r *runtime) bytesArg(call goja.FunctionCall, i int) []byte {
	s := r.stringArg(call, i)
	if !strings.HasPrefix(s, "0x") {
		return []byte(s)
	}
	data, err := hex.DecodeString(s[2:])
	if err != nil {
		panic(r.vm.NewTypeError("invalid hex string: %v", err))
	}
	return data
}
