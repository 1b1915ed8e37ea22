package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NamiraNet/handoff/internal/app"
	"github.com/NamiraNet/handoff/internal/board"
	"github.com/NamiraNet/handoff/internal/cli"
	"github.com/NamiraNet/handoff/internal/crypto"
	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/NamiraNet/handoff/internal/store"
	"github.com/NamiraNet/handoff/internal/worker"
	"go.uber.org/zap"
)

const redisConnectTimeout = 5 * time.Second

// newApp builds the worker, the foreground loop and the store, and starts the
// worker. The caller owns the returned app and must Close it.
func newApp(log *zap.Logger, rec app.Recorder) (*app.App, error) {
	policy, err := worker.ParseStopPolicy(cfg.Worker.StopPolicy)
	if err != nil {
		return nil, err
	}

	st, err := openStore(log)
	if err != nil {
		return nil, err
	}

	w := worker.New(
		worker.WithName(cfg.Worker.Name),
		worker.WithLogger(log),
		worker.WithStopPolicy(policy),
		worker.WithLockOSThread(cfg.Worker.LockOSThread),
	)
	if err := w.Start(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	a, err := app.New(app.Options{
		Worker:    w,
		Loop:      looper.New(log),
		Store:     st,
		Key:       crypto.DeriveKey(cfg.App.EncryptionKey),
		Logger:    log,
		Metrics:   rec,
		WorkDelay: cfg.App.WorkDelay,
	})
	if err != nil {
		w.RequestStop()
		_ = st.Close()
		return nil, err
	}

	log.Debug("app ready", zap.Bool("redis", cfg.Redis.Enabled))
	return a, nil
}

func openStore(log *zap.Logger) (store.Store, error) {
	if !cfg.Redis.Enabled {
		return store.NewMemory(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	st, err := store.NewRedis(ctx, store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to Redis successfully", zap.String("addr", cfg.Redis.Addr))

	if cfg.Redis.FlushOnStart {
		n, err := st.Flush(ctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("flush redis: %w", err)
		}
		log.Info("Flushed stored messages", zap.Int("deleted", n))
	}
	return st, nil
}

func shutdown(a *app.App, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Worker.StopTimeout)
	defer cancel()

	if err := a.Close(ctx); err != nil {
		log.Error("worker did not stop cleanly", zap.Error(err))
	}
	stats := a.Worker().Stats()
	log.Info("worker stopped",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("executed", stats.Executed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("discarded", stats.Discarded),
		zap.Duration("uptime", stats.Uptime))
}

// push runs on the foreground loop. An empty line pushes a generated message.
func push(a *app.App, text string, log *zap.Logger) {
	var err error
	if text == "" {
		_, err = a.Push()
	} else {
		_, err = a.PushText(text)
	}
	if err != nil {
		log.Warn("message rejected", zap.Error(err))
	}
}

// printRows prints every board change as a table row.
func printRows(a *app.App) {
	a.Board().Subscribe(func(_ int, _ board.ChangeKind, item board.Item) {
		fmt.Println(cli.Row(item))
	})
}

// report writes the final board and its summary once the loop has returned.
func report(a *app.App, options cli.OutputOptions) error {
	items := a.Board().Items()
	if options.Format != "" {
		if err := cli.NewOutputManager(nil).Output(items, options); err != nil {
			return err
		}
	}
	cli.NewSummaryPrinter(nil).PrintSummary(items)
	return nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
