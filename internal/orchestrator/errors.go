package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled reports that the run was cancelled externally. The loop
// aborts silently: no further events, no partial persistence.
var ErrCancelled = errors.New("run cancelled")

// ErrMaxTurns reports that the loop hit its turn bound before the model
// finished.
var ErrMaxTurns = errors.New("turn limit reached")

// UpstreamError is a provider failure: the call was rejected or the SSE
// stream broke mid-turn. Fatal for the run; any partial assistant reply is
// persisted with is_error set.
type UpstreamError struct {
	Provider string
	Model    string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConsumerTimeout reports that an external consumer did not submit a tool
// output within the polling window. Fatal for the run.
type ConsumerTimeout struct {
	ActionID string
	Tool     string
	Waited   time.Duration
}

func (e *ConsumerTimeout) Error() string {
	return fmt.Sprintf("consumer tool %s (action %s) produced no output within %s", e.Tool, e.ActionID, e.Waited)
}
