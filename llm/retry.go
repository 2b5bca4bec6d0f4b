package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the attempt budget for a primary model.
	DefaultMaxRetries = 3
	// FallbackMaxRetries is the smaller budget for opportunistic fallback
	// models further down an escalation ladder.
	FallbackMaxRetries = 2
	// DefaultBaseDelay is the initial delay for transient-error backoff.
	DefaultBaseDelay = 2 * time.Second
	// RateLimitBuffer is added on top of a server-provided retry hint.
	RateLimitBuffer = 2 * time.Second
	// RateLimitSleepCap bounds any single rate-limit sleep.
	RateLimitSleepCap = 120 * time.Second
	// RateLimitFallbackDelay is used when a 429 carries no retry hint.
	RateLimitFallbackDelay = 30 * time.Second
	// TransientMultiplier doubles the delay on each transient retry.
	TransientMultiplier = 2.0
)

// SleepFunc waits for the given duration or until the context is canceled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// WaitForRetry is the default SleepFunc. It respects context cancellation, so
// an interrupt delivered mid-backoff stops the run instead of finishing the
// sleep first.
func WaitForRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier wraps a single adapter+model call with a bounded retry budget.
//
// Policy:
//   - transient errors (network, timeout, 5xx) back off exponentially from
//     BaseDelay; exhausting the budget is fatal for this model.
//   - rate limits sleep min(hint+buffer, cap), or a fixed fallback delay when
//     the server gave no hint; exhausting the budget signals "exhausted" so
//     the caller can escalate instead of failing the run.
//   - daily-quota errors return immediately without consuming the budget.
//   - anything else fails on the first attempt, no retry.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     zerolog.Logger

	// Sleep is swappable for tests. Defaults to WaitForRetry.
	Sleep SleepFunc
}

// NewRetrier creates a Retrier with the given budget and base delay.
func NewRetrier(maxRetries int, baseDelay time.Duration, logger zerolog.Logger) *Retrier {
	return &Retrier{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Logger:     logger.With().Str("component", "retrier").Logger(),
		Sleep:      WaitForRetry,
	}
}

// transientBackoff builds the delay schedule for transient errors.
func (r *Retrier) transientBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.BaseDelay
	eb.Multiplier = TransientMultiplier
	eb.RandomizationFactor = 0
	eb.MaxInterval = RateLimitSleepCap
	eb.MaxElapsedTime = 0 // attempts are bounded by MaxRetries, not wall clock
	eb.Reset()
	return eb
}

// RateLimitDelay computes the sleep before retrying a rate-limited call.
func RateLimitDelay(err error) time.Duration {
	if hint := ExtractRetryAfter(err); hint != nil {
		d := *hint + RateLimitBuffer
		if d > RateLimitSleepCap {
			return RateLimitSleepCap
		}
		return d
	}
	return RateLimitFallbackDelay
}

// Do runs call with the retry policy applied. label identifies the
// provider/model pair for logging.
func (r *Retrier) Do(ctx context.Context, label string, call func(ctx context.Context) (*Result, error)) (*Result, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = WaitForRetry
	}
	maxRetries := r.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	schedule := r.transientBackoff()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := call(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation is a run-level signal, not a provider failure.
			return nil, err
		}

		var llmErr *Error
		if !errors.As(err, &llmErr) {
			// Not classified by an adapter; treat as fatal.
			return nil, NewProviderError(fmt.Sprintf("%s: unclassified error", label), 0, false, err)
		}

		switch {
		case llmErr.Type == ErrorTypeDailyQuota:
			// A daily quota will not clear within any retry budget. Hand it
			// straight back so the ladder moves to the next model.
			r.Logger.Warn().Str("model", label).Msg("Daily quota exhausted, escalating without retry")
			return nil, err

		case llmErr.Type == ErrorTypeRateLimit:
			if attempt == maxRetries-1 {
				return nil, NewExhaustedError(
					fmt.Sprintf("%s: rate limited after %d attempts", label, maxRetries), err)
			}
			delay := RateLimitDelay(err)
			r.Logger.Warn().
				Str("model", label).
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Msg("Rate limited, sleeping before retry")
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}

		case llmErr.Retryable:
			if attempt == maxRetries-1 {
				return nil, NewProviderError(
					fmt.Sprintf("%s: failed after %d attempts", label, maxRetries), llmErr.StatusCode, false, err)
			}
			delay := schedule.NextBackOff()
			if delay == backoff.Stop {
				delay = r.BaseDelay
			}
			r.Logger.Warn().
				Str("model", label).
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Err(err).
				Msg("Transient error, retrying after backoff")
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}

		default:
			// Invalid request, malformed response, hard provider error:
			// retrying would only waste quota on a bug.
			return nil, err
		}
	}

	return nil, lastErr
}
