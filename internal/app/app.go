package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NamiraNet/handoff/internal/board"
	"github.com/NamiraNet/handoff/internal/crypto"
	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/NamiraNet/handoff/internal/message"
	"github.com/NamiraNet/handoff/internal/store"
	"github.com/NamiraNet/handoff/internal/worker"
	"go.uber.org/zap"
)

const defaultStoreTimeout = 5 * time.Second

// Recorder is told about every message that comes back from the worker.
type Recorder interface {
	ObserveMessage(status string, elapsed time.Duration)
}

type Options struct {
	Worker *worker.Worker
	Loop   *looper.Loop
	Store  store.Store
	Key    []byte
	Logger *zap.Logger

	// Metrics is optional.
	Metrics Recorder

	// WorkDelay is added to every encryption to make queueing visible.
	WorkDelay    time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time
}

// App is the foreground side of the program. Push, PushText, QuitWhenIdle and
// Board must only be used from the looper goroutine; the heavy part of each
// message runs on the worker and comes back through the looper.
type App struct {
	worker       *worker.Worker
	loop         *looper.Loop
	board        *board.Board
	store        store.Store
	key          []byte
	logger       *zap.Logger
	metrics      Recorder
	workDelay    time.Duration
	storeTimeout time.Duration
	now          func() time.Time

	quitWhenIdle bool
}

func New(opts Options) (*App, error) {
	if opts.Worker == nil || opts.Loop == nil {
		return nil, errors.New("app needs a worker and a looper")
	}
	if len(opts.Key) == 0 {
		return nil, errors.New("app needs an encryption key")
	}

	a := &App{
		worker:       opts.Worker,
		loop:         opts.Loop,
		board:        board.New(),
		store:        opts.Store,
		key:          opts.Key,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		workDelay:    opts.WorkDelay,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
	}
	if a.store == nil {
		a.store = store.NewMemory()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.storeTimeout <= 0 {
		a.storeTimeout = defaultStoreTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.board.Subscribe(a.onBoardChange)
	return a, nil
}

func (a *App) Board() *board.Board {
	return a.board
}

func (a *App) Worker() *worker.Worker {
	return a.worker
}

func (a *App) Loop() *looper.Loop {
	return a.loop
}

func (a *App) Store() store.Store {
	return a.store
}

// Push inserts a generated message and hands its encryption to the worker.
func (a *App) Push() (string, error) {
	return a.submit(message.Generate())
}

func (a *App) PushText(text string) (string, error) {
	return a.submit(message.New(text))
}

// QuitWhenIdle stops the looper as soon as no message is waiting for the worker.
func (a *App) QuitWhenIdle() {
	if a.board.Pending() == 0 {
		a.loop.Quit()
		return
	}
	a.quitWhenIdle = true
}

// Close stops the worker and waits for it. Results that arrive after the
// looper has quit are dropped.
func (a *App) Close(ctx context.Context) error {
	a.worker.RequestStop()
	err := a.worker.Wait(ctx)
	if cerr := a.store.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	return err
}

func (a *App) submit(m message.Message) (string, error) {
	item := message.NewTimed(m, a.now())
	a.board.Insert(item)

	if err := a.worker.Submit(func() { a.process(item) }); err != nil {
		if uerr := a.board.Update(item.Failed(err, a.now())); uerr != nil {
			a.logger.Error("failed to mark message", zap.String("key", m.Key), zap.Error(uerr))
		}
		return "", fmt.Errorf("submit message %s: %w", m.Key, err)
	}

	a.logger.Debug("message queued",
		zap.String("key", m.Key),
		zap.Int("queue_length", a.worker.Stats().QueueLength))
	return m.Key, nil
}

// process runs on the worker goroutine.
func (a *App) process(item board.Item) {
	if a.workDelay > 0 {
		time.Sleep(a.workDelay)
	}

	var result board.Item
	cipherText, err := crypto.EncryptString(item.Value.PlainText, a.key)
	if err != nil {
		a.logger.Error("failed to encrypt message", zap.String("key", item.Value.Key), zap.Error(err))
		result = item.Failed(err, a.now())
	} else {
		result = item.Done(item.Value.WithCipherText(cipherText), a.now())
		a.save(result)
	}

	if err := a.loop.Post(func() { a.update(result) }); err != nil {
		a.logger.Debug("result dropped, looper is closed", zap.String("key", item.Value.Key))
	}
}

func (a *App) save(rec board.Item) {
	ctx, cancel := context.WithTimeout(context.Background(), a.storeTimeout)
	defer cancel()
	if err := a.store.Save(ctx, rec); err != nil {
		a.logger.Warn("failed to store message", zap.String("key", rec.Value.Key), zap.Error(err))
	}
}

func (a *App) update(item board.Item) {
	if err := a.board.Update(item); err != nil {
		a.logger.Error("failed to update board", zap.Error(err))
		return
	}
	if a.metrics != nil {
		a.metrics.ObserveMessage(string(board.StatusOf(item)), item.Elapsed)
	}
	a.logger.Info("message processed",
		zap.String("key", item.Value.Key),
		zap.Duration("elapsed", item.Elapsed),
		zap.Bool("failed", item.Err != ""))
}

func (a *App) onBoardChange(_ int, kind board.ChangeKind, _ board.Item) {
	if kind == board.Changed && a.quitWhenIdle && a.board.Pending() == 0 {
		a.loop.Quit()
	}
}
