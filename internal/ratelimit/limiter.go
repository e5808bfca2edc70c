package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/octoquest/internal/clock"
)

const instrumentationName = "github.com/fyrsmithlabs/octoquest/internal/ratelimit"

// Limiter tracks outbound request rate and decides how long each call must
// wait before going out. It is safe for concurrent use, though octoquest
// itself drives it from a single goroutine.
type Limiter struct {
	cfg     *Config
	fetcher QuotaFetcher
	logger  *zap.Logger
	clock   clock.Clock
	sleep   func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	global      *window
	perCategory map[Category]*window
	backoff     backoffState
	rng         *rand.Rand

	quotaMu        sync.Mutex
	cachedQuota    QuotaSnapshot
	lastQuotaCheck time.Time

	tracer          trace.Tracer
	meter           metric.Meter
	requestCounter  metric.Int64Counter
	throttleCounter metric.Int64Counter
	backoffCounter  metric.Int64Counter
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock. For tests.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// SetFetcher installs the quota source. The limiter is constructed before
// the API client that feeds it, so wiring usually happens in two steps.
func (l *Limiter) SetFetcher(f QuotaFetcher) {
	l.quotaMu.Lock()
	defer l.quotaMu.Unlock()
	l.fetcher = f
}

// WithSleeper replaces the blocking sleep. For tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// New creates a limiter. fetcher may be nil, in which case quota checks use
// the conservative fallback. logger may be nil.
func New(cfg *Config, fetcher QuotaFetcher, logger *zap.Logger, opts ...Option) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Limiter{
		cfg:         cfg,
		fetcher:     fetcher,
		logger:      logger,
		clock:       clock.NewSystem(),
		sleep:       sleepContext,
		global:      newWindow(cfg.WindowSize),
		perCategory: make(map[Category]*window, len(categoryLimits)),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	for cat := range categoryLimits {
		l.perCategory[cat] = newWindow(cfg.WindowSize)
	}
	l.backoff.currentBackoff = cfg.InitialBackoff

	for _, opt := range opts {
		opt(l)
	}

	l.initMetrics()

	l.logger.Info("initialized rate limiter",
		zap.Int("buffer", cfg.Buffer),
		zap.Int("burst_threshold", cfg.BurstThreshold),
	)

	return l
}

func (l *Limiter) initMetrics() {
	var err error

	l.requestCounter, err = l.meter.Int64Counter(
		"octoquest.ratelimit.requests_total",
		metric.WithDescription("Total number of requests recorded"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		l.logger.Warn("failed to create request counter", zap.Error(err))
	}

	l.throttleCounter, err = l.meter.Int64Counter(
		"octoquest.ratelimit.throttle_waits_total",
		metric.WithDescription("Total number of pre-call throttle waits"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		l.logger.Warn("failed to create throttle counter", zap.Error(err))
	}

	l.backoffCounter, err = l.meter.Int64Counter(
		"octoquest.ratelimit.backoffs_total",
		metric.WithDescription("Total number of quota-error backoffs"),
		metric.WithUnit("{backoff}"),
	)
	if err != nil {
		l.logger.Warn("failed to create backoff counter", zap.Error(err))
	}
}

// Record appends "now" to the global and per-category sequences.
func (l *Limiter) Record(cat Category) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(cat)
}

func (l *Limiter) record(cat Category) {
	now := l.clock.Now()
	l.global.add(now)
	if w, ok := l.perCategory[cat]; ok {
		w.add(now)
	}
	if l.requestCounter != nil {
		l.requestCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("category", string(cat)),
		))
	}
}

// BurstOK reports whether the last minute of traffic is still under the
// burst threshold.
func (l *Limiter) BurstOK() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burstOK()
}

func (l *Limiter) burstOK() bool {
	if l.global.len() == 0 {
		return true
	}
	recent := l.global.countAfter(l.clock.Now().Add(-l.cfg.BurstWindow))
	if recent >= l.cfg.BurstThreshold {
		l.logger.Warn("burst limit approaching",
			zap.Int("recent_requests", recent),
			zap.Int("threshold", l.cfg.BurstThreshold),
		)
		return false
	}
	return true
}

// PredictOverage extrapolates the recent request rate to a projected hourly
// rate. When the projection crosses 80% of the core ceiling it suggests a
// delay that brings the rate back to roughly 70%.
func (l *Limiter) PredictOverage() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.predictOverage()
}

func (l *Limiter) predictOverage() (bool, time.Duration) {
	if l.global.len() < l.cfg.MinPredictionSamples {
		return false, 0
	}

	now := l.clock.Now()
	recent := l.global.after(now.Add(-l.cfg.PredictionWindow))
	if len(recent) < 2 {
		return false, 0
	}

	var total time.Duration
	for i := 1; i < len(recent); i++ {
		total += recent[i].Sub(recent[i-1])
	}
	avgInterval := total / time.Duration(len(recent)-1)
	if avgInterval <= 0 {
		return false, 0
	}

	ceiling := categoryLimits[CategoryCore]
	hourlyCeiling := float64(ceiling.limit) * (time.Hour.Seconds() / ceiling.window.Seconds())
	projected := time.Hour.Seconds() / avgInterval.Seconds()

	if projected <= 0.8*hourlyCeiling {
		return false, 0
	}

	targetInterval := time.Duration(float64(time.Hour) / (0.7 * hourlyCeiling))
	delay := targetInterval - avgInterval
	if delay < 0 {
		delay = 0
	}

	l.logger.Info("predictive throttling engaged",
		zap.Float64("projected_per_hour", projected),
		zap.Duration("suggested_delay", delay),
	)
	return true, delay
}

// WaitTime computes how long the next request in cat must wait. It is the
// maximum of three signals: remote quota below the safety buffer, the local
// burst window, and the category's own sliding window.
func (l *Limiter) WaitTime(ctx context.Context, cat Category) time.Duration {
	quota := l.RemainingQuota(ctx, false)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	var wait time.Duration

	// Remote quota below the safety buffer: wait for the reset.
	if q, ok := quota[cat]; ok && q.Remaining < l.bufferFor(q.Limit) && !q.Reset.IsZero() {
		if d := q.Reset.Sub(now) + time.Second; d > wait {
			wait = d
		}
	}

	// Burst window saturated: wait until the oldest of the last
	// BurstThreshold requests leaves the window.
	if !l.burstOK() {
		if t, ok := l.global.fromEnd(l.cfg.BurstThreshold); ok {
			if d := l.cfg.BurstWindow - now.Sub(t) + time.Second; d > wait {
				wait = d
			}
		}
	}

	// Category sliding window full: wait until its oldest entry expires.
	limit := categoryLimits[cat]
	if w, ok := l.perCategory[cat]; ok && w.len() >= limit.limit {
		if oldest, ok := w.oldest(); ok && oldest.After(now.Add(-limit.window)) {
			if d := oldest.Add(limit.window).Sub(now) + time.Second; d > wait {
				wait = d
			}
		}
	}

	if wait < 0 {
		wait = 0
	}
	return wait
}

// bufferFor scales the safety buffer down for buckets whose whole limit is
// smaller than the configured reserve, like search's 30 per minute.
func (l *Limiter) bufferFor(limitTotal int) int {
	if limitTotal > 0 && l.cfg.Buffer >= limitTotal {
		return limitTotal / 10
	}
	return l.cfg.Buffer
}

// CheckAndWait blocks until the next request in the path's category may go
// out, then records it. This is the limiter's single suspension point. A
// cancelled wait records nothing.
func (l *Limiter) CheckAndWait(ctx context.Context, path string) error {
	cat := Categorize(path)
	wait := l.WaitTime(ctx, cat)

	if throttle, delay := l.PredictOverage(); throttle && delay > wait {
		wait = delay
	}

	if wait > 0 {
		l.logger.Warn("rate limit approaching, waiting",
			zap.Duration("wait", wait),
			zap.String("category", string(cat)),
		)
		if l.throttleCounter != nil {
			l.throttleCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("category", string(cat)),
			))
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.Record(cat)
	return nil
}

// CategoryStats summarizes tracked usage for one bucket.
type CategoryStats struct {
	Requests   int
	HourlyRate float64
}

// UsageStats is a point-in-time view of tracked usage.
type UsageStats struct {
	TotalTracked        int
	AverageHourlyRate   float64
	PerCategory         map[Category]CategoryStats
	ConsecutiveFailures int
	CurrentBackoff      time.Duration
}

// Stats returns current usage statistics.
func (l *Limiter) Stats() UsageStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	stats := UsageStats{
		TotalTracked:        l.global.len(),
		PerCategory:         make(map[Category]CategoryStats, len(l.perCategory)),
		ConsecutiveFailures: l.backoff.consecutiveFailures,
		CurrentBackoff:      l.backoff.currentBackoff,
	}

	if oldest, ok := l.global.oldest(); ok {
		if span := now.Sub(oldest); span > 0 {
			stats.AverageHourlyRate = float64(l.global.len()) / span.Hours()
		}
	}

	for cat, w := range l.perCategory {
		cs := CategoryStats{Requests: w.len()}
		if oldest, ok := w.oldest(); ok {
			if span := now.Sub(oldest); span > 0 {
				cs.HourlyRate = float64(w.len()) / span.Hours()
			}
		}
		stats.PerCategory[cat] = cs
	}

	return stats
}

// sleepContext sleeps for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
