package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-analytics/internal/sink"
)

func newSinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a development ingestion endpoint",
		Long: `Serves POST /events/batch, /healthz and /metrics. Accepted batches are
logged with their event types and counted per type.`,
		Args: cobra.NoArgs,
		RunE: runSink,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}

func runSink(cmd *cobra.Command, _ []string) error {
	env, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	addr := env.cfg.Sink.Address
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := env.setupTracing(ctx)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := sink.NewHandler(sink.Options{Logger: env.logger, Registerer: registry})
	if err != nil {
		return fmt.Errorf("sink setup: %w", err)
	}

	server := &http.Server{
		Handler:      otelhttp.NewHandler(sink.Routes(handler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})), "analytics.sink"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind listener on %s: %w", addr, err)
	}
	// Log the actual resolved address (useful when addr is :0)
	env.logger.Info("Sink listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	env.logger.Info("Shutting down", "received", handler.Total())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
