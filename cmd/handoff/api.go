package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NamiraNet/handoff/internal/api"
	"github.com/NamiraNet/handoff/internal/logger"
	"github.com/NamiraNet/handoff/internal/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var port string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Serve the message board over HTTP. The calling goroutine becomes the foreground loop.`,
	RunE:  runAPIServer,
}

func init() {
	apiCmd.Flags().StringVarP(&port, "port", "p", "", "Port to run the service on")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	log, err := logger.InitForAPI(cfg.App.LogLevel,
		logger.WithFileOutput(cfg.Log.FileOutput),
		logger.WithFilename(cfg.Log.Filename))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if port != "" {
		cfg.Server.Port = port
	}

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter, err := metrics.NewExporter("", reg)
	if err != nil {
		return err
	}

	a, err := newApp(log, exporter)
	if err != nil {
		return err
	}
	if err := metrics.RegisterWorker(reg, "", a.Worker()); err != nil {
		shutdown(a, log)
		return err
	}

	versionInfo := api.VersionInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: goVersion,
		Platform:  platform,
	}
	handler := api.NewHandler(a, log, versionInfo, cfg.Server.CallTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("address", server.Addr),
			zap.Duration("read_timeout", cfg.Server.ReadTimeout),
			zap.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	// Requests still in flight need the foreground, so the server goes down
	// before the loop does.
	go func() {
		<-ctx.Done()
		log.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		a.Loop().Quit()
	}()

	if err := a.Loop().Run(context.Background()); err != nil {
		log.Error("foreground loop failed", zap.Error(err))
	}
	shutdown(a, log)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}
