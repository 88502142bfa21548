package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blockslot/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de admissão em hashes do Redis:
//
//	<prefix>:total            outcome -> contador (não expira)
//	<prefix>:block:<altura>   outcome / confirmed:<kind> -> contador (expira em ttl)
//	<prefix>:client:<sid>     outcome -> contador (só com trackClients, expira em ttl)
//	<prefix>:head             block, pending, reservations do último tick
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica só nas chaves por bloco / por cliente.
	ttl time.Duration

	trackClients bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsTrackClients(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackClients = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "blockslot:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }
func (s *RedisStatsStore) headKey() string  { return s.prefix + ":head" }

func (s *RedisStatsStore) blockKey(h domain.Height) string {
	return fmt.Sprintf("%s:block:%d", s.prefix, h)
}

func (s *RedisStatsStore) clientKey(id domain.ClientID) string {
	return s.prefix + ":client:" + string(id)
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	bk := s.blockKey(ev.Block)
	pipe.HIncrBy(ctx, bk, field, 1)
	if ev.Outcome == domain.OutcomeConfirmed && ev.Kind != "" {
		pipe.HIncrBy(ctx, bk, field+":"+string(ev.Kind), 1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, bk, s.ttl)
	}

	if s.trackClients {
		if id := strings.TrimSpace(string(ev.Client)); id != "" {
			ck := s.clientKey(domain.ClientID(id))
			pipe.HIncrBy(ctx, ck, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, ck, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis stats record: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) RecordTick(ctx context.Context, r domain.TickReport) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	err := s.rdb.HSet(ctx, s.headKey(),
		"block", uint64(r.Height),
		"pending", r.Pending,
		"reservations", r.Reservations,
		"at", at.UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("redis stats tick: %w", err)
	}
	return nil
}
