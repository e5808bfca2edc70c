package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/octoquest/internal/clock"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  QuotaSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchQuota(ctx context.Context) (QuotaSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap.clone(), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingSleeper captures sleep durations without actually sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recordingSleeper) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func newTestLimiter(t *testing.T, fetcher QuotaFetcher) (*Limiter, *clock.Manual, *recordingSleeper) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sleeper := &recordingSleeper{}
	l := New(nil, fetcher, zap.NewNop(), WithClock(clk), WithSleeper(sleeper.sleep))
	return l, clk, sleeper
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Category
	}{
		{"", CategoryCore},
		{"/repos/octocat/hello", CategoryCore},
		{"/user", CategoryCore},
		{"/search/issues", CategorySearch},
		{"search/code", CategorySearch},
		{"graphql", CategoryGraphQL},
		{"/graphql", CategoryGraphQL},
		{"/app-manifests/abc/conversions", CategoryManifest},
		{"/gists", CategoryCore},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.path))
		})
	}
}

func TestWaitTimeZeroWhenHealthy(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snap: QuotaSnapshot{
		CategoryCore: {Remaining: 4999, Limit: 5000, Reset: time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
	}}
	l, _, sleeper := newTestLimiter(t, fetcher)

	assert.Equal(t, time.Duration(0), l.WaitTime(context.Background(), CategoryCore))

	require.NoError(t, l.CheckAndWait(context.Background(), "/repos/octocat/hello"))
	assert.Empty(t, sleeper.durations(), "no sleep expected on a fresh limiter with healthy quota")
	assert.Equal(t, 1, l.Stats().TotalTracked)
}

func TestWaitTimeBelowBufferWaitsForReset(t *testing.T) {
	t.Parallel()

	clkStart := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{snap: QuotaSnapshot{
		CategoryCore: {Remaining: 5, Limit: 5000, Reset: clkStart.Add(10 * time.Second)},
	}}
	l, _, _ := newTestLimiter(t, fetcher)

	wait := l.WaitTime(context.Background(), CategoryCore)
	assert.GreaterOrEqual(t, wait, 10*time.Second)
	assert.LessOrEqual(t, wait, 11*time.Second)
}

func TestWaitTimeBufferScalesForSmallBuckets(t *testing.T) {
	t.Parallel()

	clkStart := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{snap: QuotaSnapshot{
		CategorySearch: {Remaining: 20, Limit: 30, Reset: clkStart.Add(time.Minute)},
	}}
	l, clk, _ := newTestLimiter(t, fetcher)

	// 20 of 30 remaining is healthy for search even though it is far below
	// the core buffer of 100.
	assert.Equal(t, time.Duration(0), l.WaitTime(context.Background(), CategorySearch))

	fetcher.mu.Lock()
	fetcher.snap[CategorySearch] = Quota{Remaining: 2, Limit: 30, Reset: clkStart.Add(3 * time.Minute)}
	fetcher.mu.Unlock()
	// Step past the quota cache TTL so the drained snapshot is seen.
	clk.Advance(61 * time.Second)

	wait := l.WaitTime(context.Background(), CategorySearch)
	assert.Greater(t, wait, time.Duration(0))
}

func TestBurstPrevention(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	// 35 requests inside the burst window, threshold is 30.
	for i := 0; i < 35; i++ {
		l.Record(CategoryCore)
		clk.Advance(time.Second)
	}

	assert.False(t, l.BurstOK())
	assert.Greater(t, l.WaitTime(context.Background(), CategoryCore), time.Duration(0))
}

func TestBurstOKOnFreshLimiter(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter(t, nil)
	assert.True(t, l.BurstOK())
}

func TestCategoryWindowSaturation(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	// The search bucket allows 30 per minute. Fill it within one window.
	for i := 0; i < 30; i++ {
		l.Record(CategorySearch)
		clk.Advance(time.Millisecond)
	}

	wait := l.WaitTime(context.Background(), CategorySearch)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 2*time.Minute)
}

func TestPredictOverage(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	// Two requests per second projects to 7200/hour, far over 80% of the
	// 5000/hour core ceiling.
	for i := 0; i < 20; i++ {
		l.Record(CategoryCore)
		clk.Advance(500 * time.Millisecond)
	}

	throttle, delay := l.PredictOverage()
	assert.True(t, throttle)
	assert.Greater(t, delay, time.Duration(0))

	// Suggested delay pushes the interval toward 3600/3500 seconds.
	assert.InDelta(t, 0.53, delay.Seconds(), 0.1)
}

func TestPredictOverageNeedsSamples(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	for i := 0; i < 5; i++ {
		l.Record(CategoryCore)
		clk.Advance(100 * time.Millisecond)
	}

	throttle, delay := l.PredictOverage()
	assert.False(t, throttle)
	assert.Equal(t, time.Duration(0), delay)
}

func TestPredictOverageSlowRateNoThrottle(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	// One request every 10 seconds projects to 360/hour.
	for i := 0; i < 15; i++ {
		l.Record(CategoryCore)
		clk.Advance(10 * time.Second)
	}

	throttle, _ := l.PredictOverage()
	assert.False(t, throttle)
}

func TestRemainingQuotaCaching(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snap: QuotaSnapshot{
		CategoryCore: {Remaining: 4000, Limit: 5000},
	}}
	l, clk, _ := newTestLimiter(t, fetcher)

	first := l.RemainingQuota(context.Background(), false)
	assert.Equal(t, 4000, first[CategoryCore].Remaining)
	assert.Equal(t, 1, fetcher.callCount())

	// Within the TTL the cached snapshot is reused.
	l.RemainingQuota(context.Background(), false)
	assert.Equal(t, 1, fetcher.callCount())

	// Force bypasses the cache.
	l.RemainingQuota(context.Background(), true)
	assert.Equal(t, 2, fetcher.callCount())

	// Staleness triggers a refetch.
	clk.Advance(2 * time.Minute)
	l.RemainingQuota(context.Background(), false)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestRemainingQuotaFallbackOnError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("boom")}
	l, _, _ := newTestLimiter(t, fetcher)

	snap := l.RemainingQuota(context.Background(), true)
	assert.Equal(t, 100, snap[CategoryCore].Remaining)
	assert.Equal(t, 10, snap[CategorySearch].Remaining)

	// Failures are not cached; the next call tries again.
	l.RemainingQuota(context.Background(), false)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestRemainingQuotaNilFetcher(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter(t, nil)
	snap := l.RemainingQuota(context.Background(), true)
	assert.Equal(t, 5000, snap[CategoryCore].Limit)
}

func TestCheckAndWaitCancelledContextRecordsNothing(t *testing.T) {
	t.Parallel()

	clkStart := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{snap: QuotaSnapshot{
		CategoryCore: {Remaining: 1, Limit: 5000, Reset: clkStart.Add(time.Minute)},
	}}
	l, _, _ := newTestLimiter(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.CheckAndWait(ctx, "/repos/octocat/hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Stats().TotalTracked)
}

func TestStats(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(t, nil)

	for i := 0; i < 4; i++ {
		l.Record(CategoryCore)
		clk.Advance(time.Second)
	}
	l.Record(CategorySearch)

	stats := l.Stats()
	assert.Equal(t, 5, stats.TotalTracked)
	assert.Equal(t, 4, stats.PerCategory[CategoryCore].Requests)
	assert.Equal(t, 1, stats.PerCategory[CategorySearch].Requests)
	assert.Greater(t, stats.AverageHourlyRate, 0.0)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
}
