package worker

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Worker runs submitted tasks one at a time, in submission order, on a single
// dedicated goroutine. It owns its queue; nothing else can pop from it.
type Worker struct {
	name         string
	queue        *TaskQueue
	policy       StopPolicy
	lockOSThread bool
	panicHandler PanicHandler
	logger       *zap.Logger

	mu        sync.Mutex
	state     State
	startTime time.Time
	stopTime  time.Time
	stopWatch func() bool
	done      chan struct{}

	submitted atomic.Int64
	executed  atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
}

// Option configures a Worker
type Option func(*Worker)

func WithName(name string) Option {
	return func(w *Worker) { w.name = name }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithStopPolicy(policy StopPolicy) Option {
	return func(w *Worker) { w.policy = policy }
}

// WithPanicHandler is called on the worker goroutine after a task panicked and
// the panic was logged. The handler itself must not panic.
func WithPanicHandler(handler PanicHandler) Option {
	return func(w *Worker) { w.panicHandler = handler }
}

// WithLockOSThread pins the loop goroutine to one OS thread for its lifetime.
func WithLockOSThread(enabled bool) Option {
	return func(w *Worker) { w.lockOSThread = enabled }
}

func New(opts ...Option) *Worker {
	w := &Worker{
		name:   "worker",
		queue:  NewTaskQueue(),
		policy: StopPolicyDiscard,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("worker", w.name))
	return w
}

// Start launches the loop. A worker can be started once; cancelling ctx has the
// same effect as RequestStop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateRunning, StateStopping:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	w.state = StateRunning
	w.startTime = time.Now()
	w.stopWatch = context.AfterFunc(ctx, w.RequestStop)

	go w.loop()

	w.logger.Info("worker started",
		zap.Stringer("stop_policy", w.policy),
		zap.Bool("lock_os_thread", w.lockOSThread),
		zap.Int("queued", w.queue.Len()))
	return nil
}

// Submit hands task to the worker and returns immediately. Tasks submitted
// before Start are kept and run once the worker starts.
func (w *Worker) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	switch w.State() {
	case StateStopping, StateStopped:
		return ErrStopped
	}

	w.submitted.Add(1)
	if err := w.queue.Submit(task); err != nil {
		// lost the race against RequestStop
		w.submitted.Add(-1)
		return ErrStopped
	}
	return nil
}

// Flush blocks until every task submitted before the call has run. It is meant
// for tests and command-line teardown, never for the foreground loop.
func (w *Worker) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := w.Submit(func() { close(barrier) }); err != nil {
		return err
	}

	select {
	case <-barrier:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestStop asks the loop to exit and returns without waiting for it. A task
// that is already executing finishes; what happens to queued tasks depends on
// the StopPolicy. Calling it more than once is harmless.
func (w *Worker) RequestStop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateCreated:
		w.interrupt(true)
		w.state = StateStopped
		w.stopTime = time.Now()
		close(w.done)
		w.logger.Info("worker stopped before start")
	case StateRunning:
		w.state = StateStopping
		w.interrupt(w.policy == StopPolicyDiscard)
		w.logger.Info("worker stop requested", zap.Int("pending", w.queue.Len()))
	}
}

func (w *Worker) interrupt(discard bool) {
	if !discard {
		w.queue.Interrupt()
		return
	}
	if n := w.queue.InterruptAndDiscard(); n > 0 {
		w.discarded.Add(int64(n))
		w.logger.Info("discarded pending tasks", zap.Int("count", n))
	}
}

// Done is closed once the worker reaches StateStopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker has stopped or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	state := w.state
	var uptime time.Duration
	switch state {
	case StateRunning, StateStopping:
		uptime = time.Since(w.startTime)
	case StateStopped:
		if !w.startTime.IsZero() {
			uptime = w.stopTime.Sub(w.startTime)
		}
	}
	w.mu.Unlock()

	return Stats{
		Name:        w.name,
		State:       state,
		Policy:      w.policy,
		Submitted:   w.submitted.Load(),
		Executed:    w.executed.Load(),
		Failed:      w.failed.Load(),
		Discarded:   w.discarded.Load(),
		QueueLength: w.queue.Len(),
		Uptime:      uptime,
	}
}

func (w *Worker) loop() {
	if w.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer w.finish()

	for {
		task, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.execute(task)
	}
}

func (w *Worker) execute(task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			w.failed.Add(1)
			w.logger.Error("task panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", stack))
			if w.panicHandler != nil {
				w.panicHandler(rec, stack)
			}
		}
	}()

	task()
	w.executed.Add(1)
}

func (w *Worker) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = StateStopped
	w.stopTime = time.Now()
	if w.stopWatch != nil {
		w.stopWatch()
	}
	w.logger.Info("worker stopped",
		zap.Int64("executed", w.executed.Load()),
		zap.Int64("failed", w.failed.Load()),
		zap.Int64("discarded", w.discarded.Load()),
		zap.Duration("uptime", w.stopTime.Sub(w.startTime)))
	close(w.done)
}
