package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-analytics/pkg/events"
)

func TestHTTPSenderPostsFlatJSONArray(t *testing.T) {
	type capture struct {
		method, path, contentType string
		body                      []map[string]any
	}
	captured := make(chan capture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capture{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &c.body)
		captured <- c
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	host := "worker-1"
	user := uuid.New()
	batch := []events.Envelope{
		{
			Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Event:     events.AuthSessionValidated{UserID: user, Valid: true},
			Hostname:  &host,
		},
		{
			Timestamp: time.Date(2025, 1, 2, 3, 4, 6, 0, time.UTC),
			Event:     events.APIRequest{Service: "gateway", Endpoint: "/v1/tasks", Method: "GET", StatusCode: 200, DurationMS: 12},
		},
	}

	status, err := NewHTTPSender(srv.URL+"/", nil).Send(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)

	got := <-captured
	gotBody := got.body
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, BatchPath, got.path)
	assert.Equal(t, "application/json", got.contentType)

	require.Len(t, gotBody, 2)
	assert.Equal(t, "auth_session_validated", gotBody[0]["type"])
	assert.Equal(t, user.String(), gotBody[0]["user_id"])
	assert.Equal(t, "worker-1", gotBody[0]["hostname"])
	assert.Nil(t, gotBody[0]["environment"])
	assert.Equal(t, "2025-01-02T03:04:05Z", gotBody[0]["timestamp"])
	assert.Equal(t, "api_request", gotBody[1]["type"])
	assert.Equal(t, "gateway", gotBody[1]["service"])
}

func TestHTTPSenderStatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "accepted", status: http.StatusAccepted},
		{name: "no content", status: http.StatusNoContent},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
		{name: "redirect not followed", status: http.StatusNotModified, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			status, err := NewHTTPSender(srv.URL, srv.Client()).Send(context.Background(), []events.Envelope{
				{Timestamp: time.Now(), Event: taskEvent(1)},
			})
			assert.Equal(t, tt.status, status)
			assert.Equal(t, int32(1), calls.Load(), "no retries")

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrUnexpectedStatus)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestHTTPSenderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	status, err := NewHTTPSender(addr, nil).Send(context.Background(), []events.Envelope{
		{Timestamp: time.Now(), Event: taskEvent(1)},
	})
	assert.Zero(t, status)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnexpectedStatus)
}

func TestHTTPSenderEncodeFailure(t *testing.T) {
	status, err := NewHTTPSender("http://ingest.invalid", nil).Send(context.Background(), []events.Envelope{
		{Timestamp: time.Now()},
	})
	assert.Zero(t, status)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestHTTPSenderEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:8094/events/batch", NewHTTPSender("http://localhost:8094", nil).Endpoint())
	assert.Equal(t, "http://localhost:8094/events/batch", NewHTTPSender("http://localhost:8094/", nil).Endpoint())
}

func TestClientDeliversOverHTTP(t *testing.T) {
	received := make(chan []map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&batch)
		received <- batch
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()), WithTagSource(StaticTags("ci", "test")),
		withTicker(newManualTicker()), WithLogger(quietLogger()))
	c.Track(events.WebhookReceived{Provider: "github", EventType: "push", DeliveryID: "d-1"})
	closeClient(t, c)

	select {
	case batch := <-received:
		require.Len(t, batch, 1)
		assert.Equal(t, "webhook_received", batch[0]["type"])
		assert.Equal(t, "ci", batch[0]["hostname"])
		assert.Equal(t, "test", batch[0]["environment"])
	default:
		t.Fatal("no batch received before Close returned")
	}
}
