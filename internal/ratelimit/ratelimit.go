// Package ratelimit throttles command invocations per user and retries
// outgoing platform calls with backoff.
//
// Example usage:
//
//	lim := ratelimit.NewKeyed(1, 3)
//	if !lim.Allow(userID) {
//	    return errSlowDown
//	}
//
//	err := ratelimit.Retry(ctx, func() error {
//	    _, err := session.ChannelMessageSend(channelID, text)
//	    return err
//	}, ratelimit.DefaultRetryConfig())
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// =============================================================================
// Keyed limiter
// =============================================================================

// Keyed holds one token bucket per key. Once pruneAt keys are tracked,
// buckets idle for longer than idleTTL are dropped on the next Allow.
type Keyed struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

const (
	pruneAt = 10000
	idleTTL = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyed returns a limiter allowing perSecond events per key with the given
// burst. A non-positive rate disables limiting.
func NewKeyed(perSecond float64, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Keyed{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now and consumes a token if so.
func (k *Keyed) Allow(key string) bool {
	if k == nil || k.limit == rate.Inf {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if len(k.buckets) >= pruneAt {
		k.prune(now, idleTTL)
	}
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Prune drops buckets not used within idle and returns how many were dropped.
func (k *Keyed) Prune(idle time.Duration) int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.prune(k.now(), idle)
}

func (k *Keyed) prune(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle)
	n := 0
	for key, b := range k.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// =============================================================================
// Errors
// =============================================================================

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// StatusCode extracts the HTTP status from a discordgo REST error, or 0.
func StatusCode(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

// Retryable reports whether err is worth another attempt: rate limits,
// server errors and transport failures. Client errors (4xx) are not.
func Retryable(err error) bool {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	code := StatusCode(err)
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code < 600:
		return true
	case code != 0:
		return false
	}
	return true
}

// =============================================================================
// Retry
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts    int           // Maximum number of attempts, at least 1
	InitialDelay   time.Duration // Delay before the second attempt
	MaxDelay       time.Duration // Upper bound on the backoff delay
	RateLimitDelay time.Duration // Fixed delay after a 429
	Multiplier     float64       // Backoff multiplier
	Jitter         bool          // Add up to 25% random jitter
	Logger         zerolog.Logger
}

// DefaultRetryConfig returns the configuration used for replies.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   250 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		Logger:         zerolog.Nop(),
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, ctx is
// done or the attempts run out. The last error is returned.
func Retry(ctx context.Context, fn func() error, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}
			return nil
		}
		if !Retryable(err) || attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if StatusCode(err) == http.StatusTooManyRequests {
			wait = cfg.RateLimitDelay
		} else if cfg.Jitter {
			wait = addJitter(delay)
		}
		cfg.Logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return fmt.Errorf("after retries: %w", err)
}

// addJitter adds random jitter (0-25% of delay).
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)))
}
