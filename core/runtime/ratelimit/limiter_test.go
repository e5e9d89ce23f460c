package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCanRequest_Idempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMinIntervalLimiter(time.Minute, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		ok, err := l.CanRequest(ctx, "jira/main")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	require.NoError(t, l.RecordRequest(ctx, "jira/main"))
	for i := 0; i < 5; i++ {
		ok, err := l.CanRequest(ctx, "jira/main")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestRecordRequest_ClosesUntilIntervalElapses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMinIntervalLimiter(time.Minute, WithClock(clock.Now))

	require.NoError(t, l.RecordRequest(ctx, "k"))

	wait, err := l.TimeUntilNextRequest(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)

	clock.Advance(59 * time.Second)
	ok, _ := l.CanRequest(ctx, "k")
	assert.False(t, ok)
	wait, _ = l.TimeUntilNextRequest(ctx, "k")
	assert.Equal(t, time.Second, wait)

	clock.Advance(time.Second)
	ok, _ = l.CanRequest(ctx, "k")
	assert.True(t, ok)
	wait, _ = l.TimeUntilNextRequest(ctx, "k")
	assert.Zero(t, wait)
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMinIntervalLimiter(time.Minute, WithClock(newFakeClock().Now))

	require.NoError(t, l.RecordRequest(ctx, "jira/a"))
	ok, _ := l.CanRequest(ctx, "jira/b")
	assert.True(t, ok)
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMinIntervalLimiter(time.Minute, WithClock(clock.Now))

	res, wait, err := l.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Zero(t, wait)

	clock.Advance(10 * time.Second)
	res2, wait, err := l.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, res2)
	assert.Equal(t, 50*time.Second, wait)
}

func TestReservationCancel_RestoresPreviousState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMinIntervalLimiter(time.Minute, WithClock(clock.Now))

	res, _, err := l.Reserve(ctx, "fresh")
	require.NoError(t, err)
	require.NoError(t, res.Cancel(ctx))
	ok, _ := l.CanRequest(ctx, "fresh")
	assert.True(t, ok, "cancel on a never-used key reopens it")

	require.NoError(t, l.RecordRequest(ctx, "used"))
	clock.Advance(2 * time.Minute)
	res, _, err = l.Reserve(ctx, "used")
	require.NoError(t, err)
	require.NoError(t, res.Cancel(ctx))
	ok, _ = l.CanRequest(ctx, "used")
	assert.True(t, ok, "cancel restores the older, expired stamp")

	// second cancel is a no-op
	require.NoError(t, res.Cancel(ctx))
}

func TestReservationCancel_KeepsNewerRecord(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewMinIntervalLimiter(time.Minute, WithClock(clock.Now))

	res, _, err := l.Reserve(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, l.RecordRequest(ctx, "k"))
	require.NoError(t, res.Cancel(ctx))

	wait, _ := l.TimeUntilNextRequest(ctx, "k")
	assert.Equal(t, time.Minute, wait)
}

func TestReserve_ConcurrentCallersOneWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMinIntervalLimiter(time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := l.Reserve(ctx, "shared")
			if err == nil && res != nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestIntervals_LongestPrefixWins(t *testing.T) {
	l := NewMinIntervalLimiter(time.Second,
		WithInterval("jira/", DefaultTicketInterval),
		WithInterval("jira/fast", 5*time.Second),
	)

	assert.Equal(t, DefaultTicketInterval, l.Interval("jira/main"))
	assert.Equal(t, 5*time.Second, l.Interval("jira/fast"))
	assert.Equal(t, time.Second, l.Interval("rest/cmdb"))

	l.SetInterval("jira/", 30*time.Second)
	assert.Equal(t, 30*time.Second, l.Interval("jira/main"))
}
