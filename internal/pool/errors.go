package pool

import (
	"errors"
	"fmt"
)

// Pool errors. Dispatch and DispatchStream return one of these, an error
// from the key's circuit breaker (breaker.ErrCircuitOpen or
// breaker.ErrTooManyProbes), or a *ModelError. ErrMemoryExhausted comes from
// SpawnWorker; nothing in this package returns ErrInvalidRequest.
var (
	ErrShuttingDown     = errors.New("pool is shutting down")
	ErrNoWorkers        = errors.New("no workers available for this key")
	ErrMemoryExhausted  = errors.New("memory ceiling reached, eviction did not free enough")
	ErrTimeout          = errors.New("dispatch timed out waiting for a reply")
	ErrSendBackpressure = errors.New("selected worker's queue is full")
	ErrRecvError        = errors.New("worker exited before replying")
	ErrInvalidRequest   = errors.New("invalid request for this capability")
)

// ModelError wraps an error returned by the model itself during Execute, as
// opposed to a dispatch-layer failure.
type ModelError struct {
	Key string
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %q returned an error: %v", e.Key, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError wraps err as a ModelError for key, or returns nil if err is
// nil.
func NewModelError(key string, err error) error {
	if err == nil {
		return nil
	}
	return &ModelError{Key: key, Err: err}
}
