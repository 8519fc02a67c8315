package managed

import (
	"os"
	"sync"
)

// ShutdownEvent is a one-shot flag set when a terminal signal arrives. Code
// that needs to react to shutdown beyond context cancellation can wait on
// Done.
type ShutdownEvent struct {
	once sync.Once
	done chan struct{}

	mu  sync.RWMutex
	sig os.Signal
}

// NewShutdownEvent returns an unset event.
func NewShutdownEvent() *ShutdownEvent {
	return &ShutdownEvent{done: make(chan struct{})}
}

// Set marks the event, recording sig. It reports whether this call was the one
// that set it.
func (e *ShutdownEvent) Set(sig os.Signal) bool {
	set := false
	e.once.Do(func() {
		e.mu.Lock()
		e.sig = sig
		e.mu.Unlock()
		close(e.done)
		set = true
	})
	return set
}

// IsSet reports whether the event has been set.
func (e *ShutdownEvent) IsSet() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Done is closed once the event is set.
func (e *ShutdownEvent) Done() <-chan struct{} {
	return e.done
}

// Signal returns the signal that set the event, if any.
func (e *ShutdownEvent) Signal() os.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sig
}
