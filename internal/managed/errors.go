package managed

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrLifecycleViolation reports misuse of the runtime lifecycle: a second
	// pool installed while one is active, uninstalling a pool that was never
	// installed, or a nested run.
	ErrLifecycleViolation = errors.New("lifecycle violation")

	// ErrNoPoolInstalled is returned by an async-adapted call made outside any
	// lifespan.
	ErrNoPoolInstalled = errors.New("no worker pool installed")

	// ErrCancelled matches every *CancelledError.
	ErrCancelled = errors.New("run cancelled")
)

// RuntimeInitError is returned when the runtime could not be brought up.
// Nothing is left installed when it is returned.
type RuntimeInitError struct {
	Component string
	Err       error
}

func (e *RuntimeInitError) Error() string {
	return fmt.Sprintf("runtime init: %s: %v", e.Component, e.Err)
}

func (e *RuntimeInitError) Unwrap() error {
	return e.Err
}

// CancelledError is the outcome of a run that was shut down by a signal.
type CancelledError struct {
	Signal os.Signal
}

func (e *CancelledError) Error() string {
	if e.Signal == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s by %s", ErrCancelled.Error(), SignalName(e.Signal))
}

// Is makes errors.Is(err, ErrCancelled) hold for any CancelledError.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}
