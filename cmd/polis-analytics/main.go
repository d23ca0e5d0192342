// Package main is the entry point for the polis-analytics binary.
// It emits analytics events from the command line and runs a development
// ingestion sink.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-analytics/pkg/config"
	"github.com/polisai/polis-analytics/pkg/logging"
	"github.com/polisai/polis-analytics/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-analytics
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-analytics",
		Short: "Analytics event tooling for Polis",
		Long: `Tools for the Polis analytics pipeline.

  emit  reads newline-delimited JSON events and sends them in batches
  sink  runs a local ingestion endpoint that accepts and counts batches

Example:
  polis-analytics sink --addr :8094 &
  echo '{"type":"auth_session_validated","user_id":"...","valid":true}' | polis-analytics emit`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newEmitCmd(), newSinkCmd())
	return rootCmd
}

// runtimeEnv is what every subcommand needs after flag parsing.
type runtimeEnv struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func loadRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, err
		}
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	return &runtimeEnv{configPath: configPath, cfg: cfg, logger: logger}, nil
}

// setupTracing installs the OTLP trace exporter when an endpoint is configured.
func (env *runtimeEnv) setupTracing(ctx context.Context) (func(), error) {
	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:        env.cfg.Telemetry.ServiceName,
		Endpoint:           env.cfg.Telemetry.OTLPEndpoint,
		Environment:        env.cfg.Tags.Environment,
		Insecure:           env.cfg.Telemetry.Insecure,
		Headers:            env.cfg.Telemetry.Headers,
		ResourceAttributes: env.cfg.Telemetry.ResourceAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry setup: %w", err)
	}
	if env.cfg.Telemetry.OTLPEndpoint != "" {
		env.logger.Info("Tracing enabled", "endpoint", env.cfg.Telemetry.OTLPEndpoint)
	}

	return func() {
		// Detached so spans still flush after the command context is done.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			env.logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}, nil
}

func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	//nolint:gosec // Input path comes from the operator
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
