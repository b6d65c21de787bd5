package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTimer fires at once and keeps the requested delays
type recordingTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.delays = append(r.delays, d)
	r.c = make(chan time.Time, 1)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func TestRetryPolicy_BackOff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 8, Base: time.Second, Cap: 20 * time.Second}
	b := p.BackOff(context.Background())

	var delays []time.Duration
	for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 20 * time.Second, 20 * time.Second,
	}, delays)
}

func TestRetryPolicy_BackOffJitter(t *testing.T) {
	b := DefaultRetryPolicy().BackOff(context.Background())
	for i := 0; i < 4; i++ {
		d := b.NextBackOff()
		ceiling := time.Duration(1<<i) * time.Second
		assert.GreaterOrEqual(t, d, ceiling/2)
		assert.LessOrEqual(t, d, ceiling*3/2)
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestClient_RetriesTimeouts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	timer := &recordingTimer{}
	c := NewClient(100*time.Millisecond, logger.NewLoggerWithConfig("error", "text"), WithTimer(timer),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 5, Base: time.Second, Cap: 20 * time.Second}))

	body, err := c.Get(context.Background(), srv.URL+"/mds/metadata", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.delays)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	timer := &recordingTimer{}
	c := NewClient(50*time.Millisecond, logger.NewLoggerWithConfig("error", "text"),
		WithTimer(timer), WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Base: time.Second, Cap: 20 * time.Second}))

	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstreamTimeout(err))
	assert.Len(t, timer.delays, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_StatusErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(time.Second, logger.NewLoggerWithConfig("error", "text"))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeUpstream, appErr.Type)
	assert.Equal(t, http.StatusForbidden, appErr.Details["status"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_HonorsCancellation(t *testing.T) {
	c := NewClient(time.Second, logger.NewLoggerWithConfig("error", "text"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "http://127.0.0.1:1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	l := NewLimiter(2.5)
	require.NotNil(t, l)
	assert.Equal(t, 3, l.Burst())
}
