// Package looper runs closures on one foreground goroutine, the way a UI
// toolkit runs callbacks on its main thread. Background work hands results
// back with Post; whoever called Run is the foreground.
package looper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/NamiraNet/handoff/internal/worker"
	"go.uber.org/zap"
)

var (
	ErrClosed         = errors.New("looper is closed")
	ErrAlreadyRunning = errors.New("looper is already running")
)

type Loop struct {
	queue   *worker.TaskQueue
	logger  *zap.Logger
	running atomic.Bool
}

func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		queue:  worker.NewTaskQueue(),
		logger: logger.Named("looper"),
	}
}

// Post schedules fn on the foreground goroutine. It can be called from any
// goroutine, including the foreground itself, and never waits.
func (l *Loop) Post(fn func()) error {
	if err := l.queue.Submit(fn); err != nil {
		if errors.Is(err, worker.ErrQueueInterrupted) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Call posts fn and waits until it has run on the foreground goroutine.
// It must not be called from the foreground goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for foreground: %w", ctx.Err())
	}
}

// Run turns the calling goroutine into the foreground and executes posted
// closures until Quit is called or ctx ends. Closures posted before the quit
// still run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	stop := context.AfterFunc(ctx, l.Quit)
	defer stop()

	l.logger.Debug("looper running")
	for {
		fn, ok := l.queue.Pop()
		if !ok {
			break
		}
		l.dispatch(fn)
	}
	l.logger.Debug("looper finished")

	return ctx.Err()
}

// Quit makes Run return once the closures already posted have run.
func (l *Loop) Quit() {
	l.queue.Interrupt()
}

func (l *Loop) Pending() int {
	return l.queue.Len()
}

func (l *Loop) dispatch(fn worker.Task) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("foreground callback panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}
