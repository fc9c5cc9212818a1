package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakerConfigForTest() CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig("backend-test")
	cfg.MinRequests = 3
	cfg.Timeout = 50 * time.Millisecond
	return cfg
}

func TestCircuitBreaker_TripsOn5xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(newTestClient(t, server.URL), breakerConfigForTest(), discardLogger())

	for i := 0; i < 5; i++ {
		_, _ = cb.Get(context.Background(), "/case/list")
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Get(context.Background(), "/case/list")
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
}

func TestCircuitBreaker_401IsNotABreakerFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(newTestClient(t, server.URL), breakerConfigForTest(), discardLogger())

	for i := 0; i < 10; i++ {
		resp, err := cb.Get(context.Background(), "/case/list")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State(), "auth failures must keep flowing to the coordinator")
	assert.Equal(t, int32(10), atomic.LoadInt32(&hits))
}

func TestCircuitBreaker_SuccessKeepsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(newTestClient(t, server.URL), breakerConfigForTest(), discardLogger())

	for i := 0; i < 10; i++ {
		resp, err := cb.Get(context.Background(), "/case/list")
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
