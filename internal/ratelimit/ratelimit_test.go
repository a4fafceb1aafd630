package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func TestKeyedAllowsBurstPerKey(t *testing.T) {
	lim := NewKeyed(0.001, 2)
	assert.True(t, lim.Allow("alice"))
	assert.True(t, lim.Allow("alice"))
	assert.False(t, lim.Allow("alice"))
	assert.True(t, lim.Allow("bob"), "keys do not share buckets")
}

func TestKeyedDisabled(t *testing.T) {
	lim := NewKeyed(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, lim.Allow("alice"))
	}

	var nilLim *Keyed
	assert.True(t, nilLim.Allow("x"))
}

func TestKeyedPrune(t *testing.T) {
	now := time.Unix(1000, 0)
	lim := NewKeyed(1, 1)
	lim.now = func() time.Time { return now }

	lim.Allow("old")
	now = now.Add(time.Hour)
	lim.Allow("new")

	assert.Equal(t, 1, lim.Prune(time.Minute))
	assert.Equal(t, 1, lim.Len())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(restError(http.StatusTooManyRequests)))
	assert.True(t, Retryable(restError(http.StatusBadGateway)))
	assert.False(t, Retryable(restError(http.StatusForbidden)))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.False(t, Retryable(&FatalError{Err: errors.New("bad input")}))
}

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetrySucceedsAfterServerError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return restError(http.StatusServiceUnavailable)
		}
		return nil
	}, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnClientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return restError(http.StatusForbidden)
	}, fastConfig())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestRetryUnwrapsFatal(t *testing.T) {
	sentinel := errors.New("fatal")
	err := Retry(context.Background(), func() error { return &FatalError{Err: sentinel} }, fastConfig())
	assert.Same(t, sentinel, err)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("flaky")
	}, fastConfig())
	assert.ErrorContains(t, err, "flaky")
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, func() error { return nil }, fastConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
