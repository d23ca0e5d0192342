package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-analytics/pkg/events"
)

// BatchPath is appended to the base URL for every flush.
const BatchPath = "/events/batch"

// Sender delivers one batch. Implementations make a single attempt and
// report the HTTP status (0 when none was received).
type Sender interface {
	Send(ctx context.Context, batch []events.Envelope) (int, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, batch []events.Envelope) (int, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, batch []events.Envelope) (int, error) {
	return f(ctx, batch)
}

// HTTPSender posts batches as a JSON array to <base>/events/batch.
type HTTPSender struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSender creates a sender for baseURL. A nil client gets a default
// whose transport is instrumented with otelhttp; no request timeout is set.
func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSender{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + BatchPath,
	}
}

// Endpoint returns the full batch URL.
func (s *HTTPSender) Endpoint() string {
	return s.endpoint
}

// Send implements Sender. It never retries.
func (s *HTTPSender) Send(ctx context.Context, batch []events.Envelope) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.StatusCode, nil
}
