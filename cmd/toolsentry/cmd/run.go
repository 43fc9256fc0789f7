package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/toolsentry/toolsentry/internal/adapter/inbound/http"
	"github.com/toolsentry/toolsentry/internal/adapter/inbound/stdio"
	"github.com/toolsentry/toolsentry/internal/config"
	"github.com/toolsentry/toolsentry/internal/metrics"
	"github.com/toolsentry/toolsentry/internal/service"
	"github.com/toolsentry/toolsentry/internal/telemetry"
)

var runDevMode bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the HTTP and MCP stdio evaluation servers",
	Long: `Run starts toolsentry's policy gateway: the HTTP server (Claude Code hook
endpoint, native REST evaluation, and health/rules/audit/metrics
introspection) and, when server.stdio_enabled is set, the MCP stdio
transport on the same process.

Examples:
  # Start with config file settings
  toolsentry run

  # Start with a specific config file
  toolsentry --config /path/to/toolsentry.yaml run

  # Start in development mode (verbose logging)
  toolsentry run --dev`,
	RunE: runServe,
}

func init() {
	runCmd.Flags().BoolVar(&runDevMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(runCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runDevMode {
		cfg.DevMode = true
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger goes to stderr: stdout is reserved for the MCP stdio transport's
	// JSON-RPC stream when it's enabled alongside HTTP.
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Server.TracingEnabled, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	secrets := config.LoadProviderSecrets()
	svc, err := service.New(ctx, cfg, secrets, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer svc.Stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	httpServer := http.NewServer(cfg.Server.HTTPAddr, svc, m, registry, logger, Version)

	logger.Info("toolsentry starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"stdio_enabled", cfg.Server.StdioEnabled,
		"rules_file", cfg.RulesFile,
		"rules", svc.Rules.Snapshot().Len(),
	)

	errCh := make(chan error, 2)
	waitFor := 1
	go func() {
		errCh <- httpServer.Start(ctx)
	}()

	if cfg.Server.StdioEnabled {
		waitFor = 2
		transport := stdio.New(svc, logger, os.Stdin, os.Stdout)
		logger.Info("stdio transport enabled")
		go func() {
			if err := transport.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("stdio transport: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	var runErr error
	for i := 0; i < waitFor; i++ {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("toolsentry stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
