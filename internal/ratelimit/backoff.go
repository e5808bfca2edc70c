package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// backoffState tracks consecutive quota failures.
type backoffState struct {
	consecutiveFailures int
	lastFailureTime     time.Time
	currentBackoff      time.Duration
}

// NoteFailure records a quota-exceeded error and returns how long the caller
// should back off before retrying. The delay grows exponentially with
// consecutive failures, carries ±20% jitter, is capped at MaxBackoff, and is
// stretched to the server-provided reset time when the error carries one.
// NoteFailure never sleeps; the caller decides when to wait.
func (l *Limiter) NoteFailure(err error) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	// A quiet hour wipes the failure streak.
	if !l.backoff.lastFailureTime.IsZero() && now.Sub(l.backoff.lastFailureTime) > time.Hour {
		l.backoff.consecutiveFailures = 0
		l.backoff.currentBackoff = l.cfg.InitialBackoff
	}

	l.backoff.consecutiveFailures++
	l.backoff.lastFailureTime = now

	backoff := time.Duration(float64(l.cfg.InitialBackoff) *
		math.Pow(l.cfg.BackoffMultiplier, float64(l.backoff.consecutiveFailures)))
	if backoff > l.cfg.MaxBackoff {
		backoff = l.cfg.MaxBackoff
	}
	l.backoff.currentBackoff = backoff

	// ±20% jitter keeps synchronized clients from retrying in lockstep.
	jitter := time.Duration(float64(backoff) * 0.2 * (2*l.rng.Float64() - 1))
	delay := backoff + jitter

	if reset, ok := quotaResetTime(err, now); ok {
		if untilReset := reset.Sub(now) + time.Second; untilReset > delay {
			delay = untilReset
		}
	}
	if delay < 0 {
		delay = 0
	}

	if l.backoffCounter != nil {
		l.backoffCounter.Add(context.Background(), 1)
	}
	l.logger.Warn("quota exceeded, backing off",
		zap.Duration("delay", delay),
		zap.Int("consecutive_failures", l.backoff.consecutiveFailures),
	)

	return delay
}

// NoteSuccess resets the backoff state after a successful call.
func (l *Limiter) NoteSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff.consecutiveFailures = 0
	l.backoff.currentBackoff = l.cfg.InitialBackoff
}

// quotaResetTime extracts the server-provided reset time from a quota error,
// if the error carries one.
func quotaResetTime(err error, now time.Time) (time.Time, bool) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) && !rle.Rate.Reset.IsZero() {
		return rle.Rate.Reset.Time, true
	}
	var arle *github.AbuseRateLimitError
	if errors.As(err, &arle) && arle.RetryAfter != nil {
		return now.Add(*arle.RetryAfter), true
	}
	return time.Time{}, false
}
