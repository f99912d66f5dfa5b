// pkg/driver/lifecycle.go
package driver

import (
	"context"
	"fmt"
	"sync"
)

// State is the adapter lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateBusy:
		return "busy"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle guards the adapter state machine. The lock is held only for state
// changes, never across device I/O, so cancellation can run concurrently with
// an in-flight operation.
type Lifecycle struct {
	mu     sync.Mutex
	state  State
	op     string
	cancel context.CancelFunc
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MarkInitialized moves Uninitialized to Initialized
func (l *Lifecycle) MarkInitialized() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateUninitialized {
		l.state = StateInitialized
	}
}

// RequireInitialized fails fast on an uninitialized adapter
func (l *Lifecycle) RequireInitialized(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateUninitialized {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}
	return nil
}

// Begin enters Busy for op and returns a context that CancelInFlight and
// Reset cancel. End must be called when the operation finishes.
func (l *Lifecycle) Begin(ctx context.Context, op string) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateUninitialized:
		return nil, fmt.Errorf("%s: %w", op, ErrNotInitialized)
	case StateBusy:
		return nil, fmt.Errorf("%s: %w (running %s)", op, ErrBusy, l.op)
	}

	opCtx, cancel := context.WithCancel(ctx)
	l.state = StateBusy
	l.op = op
	l.cancel = cancel
	return opCtx, nil
}

// End leaves Busy. It is a no-op when Reset already ran.
func (l *Lifecycle) End() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.state == StateBusy {
		l.state = StateInitialized
	}
	l.op = ""
}

// CancelInFlight cancels the running operation's context and reports
// whether something was running.
func (l *Lifecycle) CancelInFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return false
	}
	l.cancel()
	return true
}

// Reset cancels any in-flight operation and returns to Uninitialized
func (l *Lifecycle) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.state = StateUninitialized
	l.op = ""
}
