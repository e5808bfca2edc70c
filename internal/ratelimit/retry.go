package ratelimit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Do runs one remote operation under the limiter's full discipline: it
// waits out the rate limit before each attempt, resets the backoff on
// success, retries quota and transient errors within a shared attempt
// budget, and returns domain errors immediately. After the budget is
// exhausted the last error is returned unchanged.
//
// path is the request path used for categorization; it may be empty.
func (l *Limiter) Do(ctx context.Context, path string, op func() error) error {
	ctx, span := l.tracer.Start(ctx, "ratelimit.do")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(Categorize(path))))

	attempts := l.cfg.MaxAttempts
	retryWait := l.cfg.RetryWaitMin
	startTime := l.clock.Now()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := l.CheckAndWait(ctx, path); err != nil {
			span.RecordError(err)
			return err
		}

		err := op()
		if err == nil {
			l.NoteSuccess()
			if attempt > 1 {
				l.logger.Info("operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", l.clock.Now().Sub(startTime)),
				)
			}
			return nil
		}
		lastErr = err

		switch {
		case IsQuotaExceeded(err):
			delay := l.NoteFailure(err)
			if attempt == attempts {
				break
			}
			l.logger.Warn("quota exceeded, retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", delay),
			)
			if serr := l.sleep(ctx, delay); serr != nil {
				span.RecordError(serr)
				return serr
			}

		case IsRetryable(err):
			if attempt == attempts {
				break
			}
			l.logger.Warn("transient error, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("wait", retryWait),
				zap.Error(err),
			)
			if serr := l.sleep(ctx, retryWait); serr != nil {
				span.RecordError(serr)
				return serr
			}
			retryWait *= 2
			if retryWait > l.cfg.RetryWaitMax {
				retryWait = l.cfg.RetryWaitMax
			}

		default:
			// Permanent failure. Propagate unchanged, no retry.
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	l.logger.Warn("operation failed after all retries exhausted",
		zap.Int("total_attempts", attempts),
		zap.Duration("total_time", l.clock.Now().Sub(startTime)),
		zap.Error(lastErr),
	)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastErr
}
