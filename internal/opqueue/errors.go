package opqueue

import "errors"

// Error kinds from spec §7. Callers distinguish them with errors.Is.
var (
	// ErrTransientStorageBusy means BEGIN failed due to contention. A
	// normal chunk whose BEGIN fails is re-enqueued and retried without
	// surfacing this error; it reaches a caller only from the Vacuum
	// path, whose BEGIN is not retried.
	ErrTransientStorageBusy = errors.New("opqueue: transient storage busy")

	// ErrItemExecutionFailed means one statement's bind/step failed; it
	// is surfaced only to that item's completion and does not abort the
	// chunk.
	ErrItemExecutionFailed = errors.New("opqueue: item execution failed")

	// ErrCommitFailed means the chunk's final COMMIT failed; it is
	// surfaced to every item in the chunk that had not already
	// terminated with an error.
	ErrCommitFailed = errors.New("opqueue: commit failed")

	// ErrUnknownOp means the worker saw an OpKind it cannot dispatch.
	// This is a programmer error and is never expected in practice.
	ErrUnknownOp = errors.New("opqueue: unknown op kind")

	// ErrDisposed means a producer enqueued after shutdown.
	ErrDisposed = errors.New("opqueue: queue disposed")
)

// OpError wraps one of the sentinel kinds above with execution context.
type OpError struct {
	Kind OpKind
	Err  error
}

func (e *OpError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
