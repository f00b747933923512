package dispatch

import (
	"context"

	"rpcdispatch/internal/execution"
	"rpcdispatch/internal/rpccontext"
)

// Executor runs the calls of one request and writes its response
type Executor interface {
	Execute(ctx context.Context) error
	MethodName() string
}

// ExecutorFactory builds the executor for a classified request
type ExecutorFactory interface {
	Create(shape Shape, rc *rpccontext.Context) Executor
}

// Factory creates object and array executors bound to shared dependencies
type Factory struct {
	deps execution.Deps
}

// NewFactory creates a Factory
func NewFactory(deps execution.Deps) *Factory {
	return &Factory{deps: deps}
}

// Create returns the executor for shape, or nil for ShapeUnrecognized.
// No method runs until Execute is called.
func (f *Factory) Create(shape Shape, rc *rpccontext.Context) Executor {
	switch shape {
	case ShapeObject:
		return execution.NewObjectExecutor(rc, f.deps)
	case ShapeArray:
		return execution.NewArrayExecutor(rc, f.deps)
	default:
		return nil
	}
}
