package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"blockslot/admission/domain"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyGauge struct {
	mu   sync.Mutex
	last int
	hits int
}

func (g *keyGauge) TrackedKeys(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
	g.hits++
}

func (g *keyGauge) snapshot() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.hits
}

func TestLimiterStore_BucketRefillsOnStoreClock(t *testing.T) {
	clk := clock.NewMock()
	s := NewLimiterStore(1, 1, WithLimiterClock(clk))

	lim := s.Get(domain.Key("10.0.0.1"))
	require.True(t, lim.Allow())
	assert.False(t, lim.Allow(), "burst=1 must reject the second immediate Allow")

	clk.Add(999 * time.Millisecond)
	assert.False(t, s.Get(domain.Key("10.0.0.1")).Allow())

	clk.Add(time.Millisecond)
	assert.True(t, s.Get(domain.Key("10.0.0.1")).Allow(), "one token after 1s at 1 rps")
}

func TestLimiterStore_OriginsAreIndependent(t *testing.T) {
	clk := clock.NewMock()
	s := NewLimiterStore(0.02, 1, WithLimiterClock(clk))

	require.True(t, s.Get("a").Allow())
	assert.False(t, s.Get("a").Allow())
	assert.True(t, s.Get("b").Allow())
	assert.Equal(t, 2, s.Len())
}

func TestLimiterStore_CleanupForgetsIdleOrigins(t *testing.T) {
	clk := clock.NewMock()
	g := &keyGauge{}
	s := NewLimiterStore(0.02, 1, WithLimiterClock(clk), WithIdleTTL(time.Minute), WithKeyGauge(g))

	require.True(t, s.Get("idle").Allow())
	clk.Add(30 * time.Second)
	s.Get("busy")
	clk.Add(45 * time.Second)

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
	left, _ := g.snapshot()
	assert.Equal(t, 1, left)

	assert.True(t, s.Get("idle").Allow(), "forgotten origin comes back with a full bucket")
}

func TestLimiterStore_JanitorSweepsOnTickerAndStops(t *testing.T) {
	clk := clock.NewMock()
	g := &keyGauge{}
	s := NewLimiterStore(10, 1,
		WithLimiterClock(clk),
		WithCleanupEvery(time.Minute),
		WithIdleTTL(time.Minute),
		WithKeyGauge(g),
	)
	s.Get("k")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunJanitor(ctx) }()

	require.Eventually(t, func() bool {
		clk.Add(time.Minute)
		return s.Len() == 0
	}, time.Second, 5*time.Millisecond)
	_, hits := g.snapshot()
	assert.Positive(t, hits)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop")
	}
}

func TestSessionPool_AcquireRelease(t *testing.T) {
	p := NewSessionPool(1)

	release, ok := p.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, p.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	assert.False(t, ok, "pool is full")

	release()
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 1, p.Cap())
}
