package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-analytics/internal/sink"
	"github.com/polisai/polis-analytics/pkg/analytics"
	"github.com/polisai/polis-analytics/pkg/events"
)

func clearAnalyticsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANALYTICS_URL", "ANALYTICS_BATCH_SIZE", "ANALYTICS_FLUSH_INTERVAL",
		"ANALYTICS_QUEUE_CAPACITY", "ANALYTICS_LOG_LEVEL",
		"ANALYTICS_OTLP_ENDPOINT", "ANALYTICS_OTLP_INSECURE", "ANALYTICS_OTLP_HEADERS",
	} {
		t.Setenv(key, "")
	}
}

func TestReadEvents(t *testing.T) {
	user := uuid.NewString()
	input := strings.Join([]string{
		`{"type":"auth_session_validated","user_id":"` + user + `","valid":true}`,
		``,
		`# comment`,
		`{"type":"not_a_real_type"}`,
		`   {"type":"webhook_received","provider":"github","event_type":"push","delivery_id":"d1"}  `,
		`{broken`,
	}, "\n")

	tests := []struct {
		name        string
		strict      bool
		wantTracked int
		wantSkipped int
		wantErr     bool
	}{
		{name: "lenient", wantTracked: 2, wantSkipped: 2},
		{name: "strict", strict: true, wantTracked: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []events.Event
			tracked, skipped, err := readEvents(context.Background(), strings.NewReader(input),
				slog.New(slog.NewTextHandler(io.Discard, nil)), tt.strict,
				func(e events.Event) { got = append(got, e) })

			assert.Equal(t, tt.wantTracked, tracked)
			assert.Equal(t, tt.wantSkipped, skipped)
			assert.Len(t, got, tt.wantTracked)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "line 4")
				assert.ErrorIs(t, err, events.ErrUnknownType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, events.TypeAuthSessionValidated, got[0].Type())
			assert.Equal(t, events.TypeWebhookReceived, got[1].Type())
		})
	}
}

func TestReadEventsStopsOnCancelWhileInputIdle(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		tracked int
		err     error
	}
	done := make(chan result, 1)
	go func() {
		tracked, _, err := readEvents(ctx, pr, slog.New(slog.NewTextHandler(io.Discard, nil)), false,
			func(events.Event) {})
		done <- result{tracked: tracked, err: err}
	}()

	_, err := io.WriteString(pw, `{"type":"project_deleted","project_id":"`+uuid.NewString()+`","user_id":"`+uuid.NewString()+`"}`+"\n")
	require.NoError(t, err)
	cancel()

	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, context.Canceled)
		assert.LessOrEqual(t, r.tracked, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("readEvents kept waiting on idle input after cancellation")
	}
}

func TestDeliverySummaryReport(t *testing.T) {
	s := &deliverySummary{}
	s.FlushCompleted(context.Background(), analytics.FlushResult{Trigger: analytics.TriggerSize, Count: 2, Status: 202})
	s.FlushCompleted(context.Background(), analytics.FlushResult{Trigger: analytics.TriggerShutdown, Count: 1, Err: analytics.ErrEncode})
	s.EventsDropped(3, analytics.DropQueueFull)

	assert.Equal(t, "tracked=6 skipped=1 sent=2 failed=1 dropped=3\n", s.report(6, 1))
}

func TestEmitCommandDeliversToSink(t *testing.T) {
	clearAnalyticsEnv(t)

	handler, err := sink.NewHandler(sink.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	srv := httptest.NewServer(sink.Routes(handler, nil))
	defer srv.Close()

	input := `{"type":"project_created","project_id":"` + uuid.NewString() + `","user_id":"` + uuid.NewString() + `","name":"demo"}
{"type":"oops"}
{"type":"cocoon_disconnected","cocoon_id":"` + uuid.NewString() + `","user_id":null,"duration_seconds":42}
`
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"emit", "--url", srv.URL, "--log-level", "error", "--metrics-addr", "127.0.0.1:0"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tracked=2 skipped=1 sent=2 failed=0 dropped=0\n", stdout.String())
	assert.Equal(t, int64(2), handler.Total())
	assert.Equal(t, int64(1), handler.Counts()[events.TypeProjectCreated])
}

func TestEmitCommandReadsFileWithConfig(t *testing.T) {
	clearAnalyticsEnv(t)

	handler, err := sink.NewHandler(sink.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	srv := httptest.NewServer(sink.Routes(handler, nil))
	defer srv.Close()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "analytics.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("analytics:\n  url: \""+srv.URL+"\"\n  batch_size: 1\nlogging:\n  level: error\n"), 0o600))
	eventsPath := filepath.Join(dir, "events.ndjson")
	require.NoError(t, os.WriteFile(eventsPath, []byte(`{"type":"project_deleted","project_id":"`+uuid.NewString()+`","user_id":"`+uuid.NewString()+`"}`+"\n"), 0o600))

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"emit", "--config", configPath, eventsPath})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tracked=1 skipped=0 sent=1 failed=0 dropped=0\n", stdout.String())
	assert.Equal(t, int64(1), handler.Counts()[events.TypeProjectDeleted])
}

func TestEmitCommandUnreachableEndpoint(t *testing.T) {
	clearAnalyticsEnv(t)

	srv := httptest.NewServer(nil)
	addr := srv.URL
	srv.Close()

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(`{"type":"project_deleted","project_id":"` + uuid.NewString() + `","user_id":"` + uuid.NewString() + `"}` + "\n"))
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"emit", "--url", addr})

	require.NoError(t, cmd.Execute(), "delivery failures are not command failures")
	assert.Equal(t, "tracked=1 skipped=0 sent=0 failed=1 dropped=0\n", stdout.String())
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad log level", args: []string{"emit", "--log-level", "loud"}},
		{name: "bad url", args: []string{"emit", "--url", "ftp://nowhere"}},
		{name: "missing input", args: []string{"emit", "--url", "http://localhost:1", "/does/not/exist.ndjson"}},
		{name: "missing config", args: []string{"sink", "--config", "/does/not/exist.yaml"}},
		{name: "bad sink address", args: []string{"sink", "--addr", "not-an-address"}},
		{name: "bad metrics address", args: []string{"emit", "--url", "http://localhost:1", "--metrics-addr", "not-an-address"}},
		{name: "too many args", args: []string{"emit", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAnalyticsEnv(t)
			cmd := newRootCmd()
			cmd.SetIn(strings.NewReader(""))
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestEmitHelpListsCatalog(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"emit", "--help"})
	require.NoError(t, cmd.Execute())

	for _, typ := range events.Types() {
		assert.Contains(t, stdout.String(), string(typ))
	}
}
