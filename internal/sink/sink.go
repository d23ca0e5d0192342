// Package sink is a development stand-in for the analytics ingestion
// service. It accepts the batches the client posts and counts them.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polisai/polis-analytics/pkg/analytics"
	"github.com/polisai/polis-analytics/pkg/events"
)

// MaxBodyBytes caps an accepted batch body.
const MaxBodyBytes = 8 << 20

// BatchFunc is called with every accepted batch.
type BatchFunc func(ctx context.Context, batch []events.Envelope)

// Options configures a Handler.
type Options struct {
	Logger *slog.Logger
	// Registerer receives the sink counters. Nil skips registration.
	Registerer prometheus.Registerer
	OnBatch    BatchFunc
}

// Handler serves POST /events/batch.
type Handler struct {
	logger  *slog.Logger
	onBatch BatchFunc

	received *prometheus.CounterVec
	rejected *prometheus.CounterVec

	mu     sync.Mutex
	counts map[events.Type]int64
	total  int64
}

// NewHandler creates a sink handler.
func NewHandler(opts Options) (*Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		logger:  logger,
		onBatch: opts.OnBatch,
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_sink_events_received_total",
				Help: "Events accepted by the sink, by event type",
			},
			[]string{"type"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_sink_batches_rejected_total",
				Help: "Batches refused by the sink, by reason",
			},
			[]string{"reason"},
		),
		counts: make(map[events.Type]int64),
	}

	if opts.Registerer != nil {
		for _, c := range []prometheus.Collector{h.received, h.rejected} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.rejected.WithLabelValues("method").Inc()
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejected.WithLabelValues("too_large").Inc()
			http.Error(w, "batch too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.rejected.WithLabelValues("read").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var batch []events.Envelope
	if err := json.Unmarshal(body, &batch); err != nil {
		h.rejected.WithLabelValues("malformed").Inc()
		h.logger.Warn("Rejected analytics batch", "error", err, "bytes", len(body))
		http.Error(w, "malformed batch: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.record(batch)
	h.logger.Info("Received analytics batch", "count", len(batch), "types", batchTypes(batch))

	if h.onBatch != nil {
		h.onBatch(r.Context(), batch)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) record(batch []events.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, env := range batch {
		t := env.Event.Type()
		h.counts[t]++
		h.total++
		h.received.WithLabelValues(string(t)).Inc()
	}
}

// Counts returns a snapshot of accepted events per type.
func (h *Handler) Counts() map[events.Type]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[events.Type]int64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of accepted events.
func (h *Handler) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func batchTypes(batch []events.Envelope) []string {
	seen := map[events.Type]int{}
	for _, env := range batch {
		seen[env.Event.Type()]++
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// Routes mounts the sink on a fresh mux: the batch endpoint, /healthz and,
// when metrics is non-nil, /metrics.
func Routes(h *Handler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(analytics.BatchPath, h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
