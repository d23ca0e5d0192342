package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-analytics/pkg/analytics"
	"github.com/polisai/polis-analytics/pkg/config"
	"github.com/polisai/polis-analytics/pkg/events"
	"github.com/polisai/polis-analytics/pkg/telemetry"
)

const (
	shutdownGrace = 10 * time.Second
	maxLineBytes  = 1 << 20
)

func newEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit [file]",
		Short: "Send newline-delimited JSON events to the ingestion service",
		Long: `Reads one JSON event per line from file (or stdin when omitted or "-"),
each carrying a "type" field from the event catalog, and tracks it.
Lines that do not decode are reported and skipped. Pending events are
flushed before exit.

Event types:
` + catalogHelp(),
		Args: cobra.MaximumNArgs(1),
		RunE: runEmit,
	}
	cmd.Flags().String("url", "", "Ingestion base URL (overrides config)")
	cmd.Flags().Bool("strict", false, "Fail on the first line that does not decode")
	cmd.Flags().String("metrics-addr", "", "Serve client Prometheus metrics on this address while emitting")
	return cmd
}

func runEmit(cmd *cobra.Command, args []string) error {
	env, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		env.cfg.Analytics.URL = url
		if err := env.cfg.Analytics.Validate(); err != nil {
			return err
		}
	}
	strict, _ := cmd.Flags().GetBool("strict")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := env.setupTracing(ctx)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	// With a config file, tags follow edits for long-running streams.
	var tags analytics.TagSource
	if env.configPath != "" {
		w, err := config.NewWatcher(env.configPath, env.logger)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		tags = w
	}

	summary := &deliverySummary{}
	metrics := analytics.NewMetrics()
	opts := append(env.cfg.ClientOptions(tags),
		analytics.WithLogger(env.logger),
		analytics.WithObserver(summary),
		analytics.WithObserver(metrics),
		analytics.WithObserver(telemetry.FlushRecorder{Endpoint: env.cfg.Analytics.URL}),
	)
	client := analytics.New(env.cfg.Analytics.URL, opts...)

	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		stopMetrics, err := serveMetrics(metricsAddr, metrics, client, env.logger)
		if err != nil {
			_ = client.Close(ctx)
			return err
		}
		defer stopMetrics()
	}

	in, err := openInput(cmd, args)
	if err != nil {
		_ = client.Close(ctx)
		return err
	}
	defer func() { _ = in.Close() }()

	tracked, skipped, readErr := readEvents(ctx, in, env.logger, strict, client.Track)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		env.logger.Warn("Flush did not complete before exit", "error", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.report(tracked, skipped))
	return readErr
}

func catalogHelp() string {
	var b strings.Builder
	for _, t := range events.Types() {
		b.WriteString("  ")
		b.WriteString(string(t))
		b.WriteByte('\n')
	}
	return b.String()
}

// serveMetrics exposes the client metrics until the returned func is called.
func serveMetrics(addr string, metrics *analytics.Metrics, client *analytics.Client, logger *slog.Logger) (func(), error) {
	if err := metrics.TrackQueueDepth(client.Pending); err != nil {
		return nil, fmt.Errorf("register queue depth: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind metrics listener on %s: %w", addr, err)
	}
	logger.Info("Metrics listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

// readEvents decodes one event per line and hands it to track. Blank lines
// and lines starting with '#' are ignored. Cancelling ctx stops the read
// even while r is blocked, closing r when it is an io.Closer.
func readEvents(ctx context.Context, r io.Reader, logger *slog.Logger, strict bool, track func(events.Event)) (tracked, skipped int, err error) {
	if rc, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
		defer stop()
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, scanErr := scanLines(scanCtx, r)

	line := 0
	for {
		var raw []byte
		select {
		case <-ctx.Done():
			return tracked, skipped, ctx.Err()
		case next, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return tracked, skipped, ctx.Err()
				}
				if err := <-scanErr; err != nil {
					return tracked, skipped, fmt.Errorf("read input: %w", err)
				}
				return tracked, skipped, nil
			}
			raw = next
		}
		line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		event, decodeErr := events.Decode(raw)
		if decodeErr != nil {
			if strict {
				return tracked, skipped, fmt.Errorf("line %d: %w", line, decodeErr)
			}
			logger.Warn("Skipping undecodable event", "line", line, "error", decodeErr)
			skipped++
			continue
		}

		track(event)
		tracked++
	}
}

// scanLines feeds lines from r until EOF, a read error or ctx ends. The
// error channel receives exactly one value before lines is closed.
func scanLines(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// deliverySummary counts delivery outcomes for the exit report.
type deliverySummary struct {
	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func (s *deliverySummary) FlushCompleted(_ context.Context, result analytics.FlushResult) {
	if result.OK() {
		s.sent.Add(int64(result.Count))
		return
	}
	s.failed.Add(int64(result.Count))
}

func (s *deliverySummary) EventsDropped(count int, _ analytics.DropReason) {
	s.dropped.Add(int64(count))
}

// report renders the exit line printed by emit.
func (s *deliverySummary) report(tracked, skipped int) string {
	return fmt.Sprintf("tracked=%d skipped=%d sent=%d failed=%d dropped=%d\n",
		tracked, skipped, s.sent.Load(), s.failed.Load(), s.dropped.Load())
}
