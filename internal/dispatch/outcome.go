package dispatch

import "rpcdispatch/internal/jsonrpc"

// Outcome is the terminal result of one dispatch
type Outcome int

const (
	Success Outcome = iota
	Timeout
	IOFailure
	UnexpectedFailure
	NoExecutor
	// Cancelled means the caller went away before the executor finished
	Cancelled
)

// String returns the outcome label used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case IOFailure:
		return "io_failure"
	case UnexpectedFailure:
		return "unexpected_failure"
	case NoExecutor:
		return "no_executor"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrorType returns the error written for the outcome. ok is false for
// Success, where the executor has already answered.
func (o Outcome) ErrorType() (t jsonrpc.ErrorType, ok bool) {
	switch o {
	case NoExecutor:
		return jsonrpc.ParseError, true
	case Timeout:
		return jsonrpc.TimeoutError, true
	case IOFailure, UnexpectedFailure, Cancelled:
		return jsonrpc.InternalError, true
	default:
		return 0, false
	}
}
