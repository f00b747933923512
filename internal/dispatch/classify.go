// Package dispatch picks the executor for an incoming JSON-RPC request and
// runs it under a time budget, guaranteeing a single terminal response.
package dispatch

import "rpcdispatch/internal/rpccontext"

// Shape is the payload shape of a request
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeObject
	ShapeArray
)

// String returns the shape name
func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	default:
		return "unrecognized"
	}
}

// Classify inspects the parsed payload of a request. A nil context or one
// with no payload yields ShapeUnrecognized.
func Classify(rc *rpccontext.Context) Shape {
	switch {
	case rc == nil:
		return ShapeUnrecognized
	case rc.HasObject():
		return ShapeObject
	case rc.HasArray():
		return ShapeArray
	default:
		return ShapeUnrecognized
	}
}
