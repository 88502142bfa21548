package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"blockslot/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByOutcomeAndKind(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackClients(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Client: "a", Outcome: domain.OutcomeConfirmed, Kind: domain.KindReserved}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Client: "a", Outcome: domain.OutcomeConfirmed, Kind: domain.KindSubmitted}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Client: "b", Outcome: domain.OutcomeBumped}))

	assert.EqualValues(t, 2, s.Total(domain.OutcomeConfirmed))
	assert.EqualValues(t, 1, s.Total(domain.OutcomeBumped))
	assert.EqualValues(t, 1, s.Admitted(domain.KindReserved))
	assert.Equal(t, map[domain.Outcome]int64{domain.OutcomeConfirmed: 2}, s.ByClient("a"))

	require.NoError(t, s.RecordTick(ctx, domain.TickReport{Height: 7, Pending: 3}))
	assert.Equal(t, domain.Height(7), s.LastTick().Height)
}

func TestMemoryStatsStore_NoClientTrackingByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Client: "a", Outcome: domain.OutcomeSubmitted}))
	assert.Empty(t, s.ByClient("a"))
}

func TestPromStats_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPromStats(reg)
	ctx := context.Background()

	_ = p.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeConfirmed, Kind: domain.KindReserved})
	_ = p.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeConfirmed, Kind: domain.KindReserved})
	_ = p.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeBumped})
	_ = p.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeReserveFailed})
	_ = p.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeSubmitted})
	_ = p.RecordTick(ctx, domain.TickReport{Height: 12, Pending: 4, Reservations: 2})
	p.SessionOpened()
	p.SessionOpened()
	p.SessionClosed()
	p.Rejected("rate_limited")
	p.TrackedKeys(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.admitted.WithLabelValues("reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.bumped))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.reserve.WithLabelValues(domain.ReasonNotEnoughTokens)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.submissions))
	assert.Equal(t, 12.0, testutil.ToFloat64(p.height))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rejected.WithLabelValues("rate_limited")))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.origins))
}

type failingStats struct{ err error }

func (f failingStats) Record(context.Context, domain.StatsEvent) error { return f.err }

func TestMultiStats_FansOutAndJoinsErrors(t *testing.T) {
	mem := NewMemoryStatsStore()
	boom := errors.New("boom")
	m := MultiStats{failingStats{err: boom}, mem, nil}
	ctx := context.Background()

	err := m.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeSubmitted})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, mem.Total(domain.OutcomeSubmitted), "failing store must not stop the others")

	require.NoError(t, m.RecordTick(ctx, domain.TickReport{Height: 3}))
	assert.Equal(t, domain.Height(3), mem.LastTick().Height)
}

func TestRedisStatsStore_KeyLayout(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix(":bs:stats:"), WithStatsTTL(time.Hour))

	assert.Equal(t, "bs:stats:total", s.totalKey())
	assert.Equal(t, "bs:stats:block:42", s.blockKey(42))
	assert.Equal(t, "bs:stats:client:sid-1", s.clientKey("sid-1"))
	assert.Equal(t, time.Hour, s.ttl)
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	s := NewRedisStatsStore(nil)
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{Outcome: domain.OutcomeSubmitted}))
	assert.NoError(t, s.RecordTick(context.Background(), domain.TickReport{}))

	var nilStore *RedisStatsStore
	assert.NoError(t, nilStore.Record(context.Background(), domain.StatsEvent{}))
}

func TestRedisStatsStore_UnreachableServerReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	s := NewRedisStatsStore(rdb, WithStatsTrackClients(true))
	err := s.Record(context.Background(), domain.StatsEvent{Client: "a", Outcome: domain.OutcomeConfirmed, Kind: domain.KindReserved, Block: 1})
	assert.Error(t, err)
}
