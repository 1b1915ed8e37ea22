package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamiraNet/handoff/internal/cli"
	"github.com/NamiraNet/handoff/internal/logger"
	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	inputFile    string
	outputFormat string
	outputFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Encrypt messages read line by line",
	Long: `Read messages from stdin (or --file), one per line. Every line is queued on
the background worker; an empty line queues a generated message. The command
exits once input ends and every queued message has come back.`,
	RunE: runMessages,
}

func init() {
	runCmd.Flags().StringVarP(&inputFile, "file", "i", "", "File containing messages (one per line)")
	runCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Final board output: table, json, csv (default: none)")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
}

func runMessages(cmd *cobra.Command, args []string) error {
	log, err := logger.InitForCLI(cfg.App.LogLevel,
		logger.WithFileOutput(cfg.Log.FileOutput),
		logger.WithFilename(cfg.Log.Filename))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var input io.Reader = os.Stdin
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("open %s: %w", inputFile, err)
		}
		defer f.Close()
		input = f
	}

	a, err := newApp(log, nil)
	if err != nil {
		return err
	}
	printRows(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := a.Loop()
	go func() {
		err := cli.ReadLines(input, func(line string) error {
			return loop.Post(func() { push(a, line, log) })
		})
		if err != nil && !errors.Is(err, looper.ErrClosed) {
			log.Error("failed to read input", zap.Error(err))
		}
		_ = loop.Post(a.QuitWhenIdle)
	}()

	runErr := loop.Run(ctx)
	shutdown(a, log)
	if runErr != nil && !interrupted(runErr) {
		return runErr
	}
	return report(a, cli.OutputOptions{Format: outputFormat, Filename: outputFile})
}
