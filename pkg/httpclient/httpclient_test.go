package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastConfig() Config {
	return Config{Timeout: time.Second, MaxRetries: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond}
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.Client(), fastConfig())
	header := http.Header{"Idempotency-Key": []string{"k1"}}
	resp, err := c.PostJSON(context.Background(), srv.URL, []byte(`{"a":1}`), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DoesNotRetryPlainPost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.Client(), fastConfig())
	resp, err := c.PostJSON(context.Background(), srv.URL, []byte(`{}`), nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultCircuitBreakerConfig("test-provider")
	cfg.MinRequests = 2
	cb := NewCircuitBreakerClient(NewWithHTTPClient(srv.Client(), Config{}), cfg, newTestLogger())

	for i := 0; i < 2; i++ {
		_, err := cb.PostJSON(context.Background(), srv.URL, []byte(`{}`), nil)
		var respErr *ResponseError
		require.True(t, errors.As(err, &respErr))
		assert.Equal(t, http.StatusInternalServerError, respErr.Status)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.PostJSON(context.Background(), srv.URL, []byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestReadResponseError(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusUnprocessableEntity)
	_, _ = rec.WriteString(`{"error":{"type":"invalid_request"}}`)

	err := ReadResponseError(rec.Result(), "coinbase")
	assert.True(t, err.ClientError())
	assert.Contains(t, err.Error(), "coinbase returned status 422")
}
