package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Quota is one bucket of the remote rate limit snapshot. A zero Reset means
// the reset time is unknown.
type Quota struct {
	Remaining int
	Limit     int
	Reset     time.Time
}

// QuotaSnapshot maps each bucket to its last known quota.
type QuotaSnapshot map[Category]Quota

// QuotaFetcher retrieves the remote quota snapshot. Implementations must
// call the quota endpoint directly, not through the limiter.
type QuotaFetcher interface {
	FetchQuota(ctx context.Context) (QuotaSnapshot, error)
}

// fallbackQuota is the conservative snapshot used when the remote quota
// cannot be fetched. Low remaining counts err on the side of waiting.
func fallbackQuota() QuotaSnapshot {
	return QuotaSnapshot{
		CategoryCore:   {Remaining: 100, Limit: 5000},
		CategorySearch: {Remaining: 10, Limit: 30},
	}
}

// RemainingQuota returns the latest quota snapshot, fetching a fresh one
// when the cache is stale or force is set. Fetch failures never propagate:
// the limiter must not block callers on observability problems, so a
// conservative fallback is returned instead.
func (l *Limiter) RemainingQuota(ctx context.Context, force bool) QuotaSnapshot {
	l.quotaMu.Lock()
	defer l.quotaMu.Unlock()

	now := l.clock.Now()
	if !force && l.cachedQuota != nil && now.Sub(l.lastQuotaCheck) < l.cfg.QuotaCacheTTL {
		return l.cachedQuota.clone()
	}

	if l.fetcher == nil {
		return fallbackQuota()
	}

	snapshot, err := l.fetcher.FetchQuota(ctx)
	if err != nil {
		l.logger.Error("failed to fetch rate limit quota, using conservative fallback",
			zap.Error(err),
		)
		return fallbackQuota()
	}

	l.cachedQuota = snapshot
	l.lastQuotaCheck = now
	return l.cachedQuota.clone()
}

func (s QuotaSnapshot) clone() QuotaSnapshot {
	out := make(QuotaSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
