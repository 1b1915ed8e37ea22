package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/NamiraNet/handoff/internal/config"
	"github.com/spf13/cobra"
)

// Build-time variables (injected via -ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
	goVersion = runtime.Version()
	platform  = runtime.GOOS + "/" + runtime.GOARCH

	cfg = config.Load()
)

func getVersionInfo() string {
	commitHash := commit
	if len(commit) > 8 {
		commitHash = commit[:8]
	}
	return fmt.Sprintf("handoff %s (%s) built with %s on %s at %s",
		version, commitHash, goVersion, platform, date)
}

var rootCmd = &cobra.Command{
	Use:     "handoff",
	Version: version,
	Short:   "Hand work from a foreground loop to a single background worker",
	Long: `handoff encrypts messages on one dedicated background worker while a
foreground loop owns the message board and receives the results.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, getVersionInfo())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&cfg.App.EncryptionKey, "key", cfg.App.EncryptionKey, "Secret the AES key is derived from")
	flags.DurationVar(&cfg.App.WorkDelay, "delay", cfg.App.WorkDelay, "Extra time the worker spends on every message")
	flags.StringVar(&cfg.Worker.StopPolicy, "stop-policy", cfg.Worker.StopPolicy, "What happens to queued work on stop: discard or drain")
	flags.BoolVar(&cfg.Worker.LockOSThread, "lock-os-thread", cfg.Worker.LockOSThread, "Pin the worker goroutine to its own OS thread")
	flags.BoolVar(&cfg.Redis.Enabled, "redis", cfg.Redis.Enabled, "Mirror results to redis")
	flags.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "Redis address")
	flags.BoolVar(&cfg.Redis.FlushOnStart, "redis-flush", cfg.Redis.FlushOnStart, "Delete stored results from earlier runs on startup")
	rootCmd.SetVersionTemplate(getVersionInfo() + "\n")

	rootCmd.AddCommand(runCmd, demoCmd, apiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
