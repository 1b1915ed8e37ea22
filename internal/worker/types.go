package worker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task is an opaque unit of work. It runs exactly once on the worker goroutine;
// anything it produces has to leave through what the closure captured.
type Task func()

// PanicHandler receives whatever a task panicked with, plus the stack at that point.
type PanicHandler func(recovered any, stack []byte)

var (
	ErrNilTask          = errors.New("task is nil")
	ErrQueueInterrupted = errors.New("task queue is interrupted")
	ErrAlreadyStarted   = errors.New("worker is already started")
	ErrStopped          = errors.New("worker is stopped")
)

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StopPolicy decides what happens to tasks still queued when a stop is requested.
type StopPolicy int

const (
	// StopPolicyDiscard drops every task that was not popped yet.
	StopPolicyDiscard StopPolicy = iota
	// StopPolicyDrain keeps running queued tasks until the queue is empty.
	StopPolicyDrain
)

func (p StopPolicy) String() string {
	switch p {
	case StopPolicyDiscard:
		return "discard"
	case StopPolicyDrain:
		return "drain"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseStopPolicy accepts "discard" or "drain", case-insensitive. Empty means discard.
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "discard":
		return StopPolicyDiscard, nil
	case "drain":
		return StopPolicyDrain, nil
	default:
		return StopPolicyDiscard, fmt.Errorf("unknown stop policy %q", s)
	}
}

type Stats struct {
	Name        string
	State       State
	Policy      StopPolicy
	Submitted   int64
	Executed    int64
	Failed      int64
	Discarded   int64
	QueueLength int
	Uptime      time.Duration
}
