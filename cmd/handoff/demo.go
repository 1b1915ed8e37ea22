package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamiraNet/handoff/internal/cli"
	"github.com/NamiraNet/handoff/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	demoFormat string
	demoOutput string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Push generated messages at a fixed rate",
	Long: `Generate messages at --rate per second, hand each one to the background
worker and print the board once all of them have been processed.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVarP(&cfg.App.DemoCount, "count", "n", cfg.App.DemoCount, "Number of messages to generate")
	demoCmd.Flags().Float64Var(&cfg.App.DemoRate, "rate", cfg.App.DemoRate, "Messages per second, 0 for no limit")
	demoCmd.Flags().StringVarP(&demoFormat, "format", "f", "table", "Output format: table, json, csv")
	demoCmd.Flags().StringVarP(&demoOutput, "output", "o", "", "Output file (default: stdout)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	log, err := logger.InitForCLI(cfg.App.LogLevel,
		logger.WithFileOutput(cfg.Log.FileOutput),
		logger.WithFilename(cfg.Log.Filename))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(log, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := rate.Inf
	if cfg.App.DemoRate > 0 {
		limit = rate.Limit(cfg.App.DemoRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	loop := a.Loop()
	go func() {
		for range cfg.App.DemoCount {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := loop.Post(func() { push(a, "", log) }); err != nil {
				return
			}
		}
		_ = loop.Post(a.QuitWhenIdle)
	}()

	log.Info("demo started",
		zap.Int("count", cfg.App.DemoCount),
		zap.Float64("rate", cfg.App.DemoRate))

	runErr := loop.Run(ctx)
	shutdown(a, log)
	if runErr != nil && !interrupted(runErr) {
		return runErr
	}
	return report(a, cli.OutputOptions{Format: demoFormat, Filename: demoOutput})
}
