package infra

import (
	"context"
	"sync"

	"blockslot/admission/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento. Não expira nada.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    map[domain.Outcome]int64
	byKind   map[domain.Kind]int64
	byClient map[domain.ClientID]map[domain.Outcome]int64
	lastTick domain.TickReport

	trackClients bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackClients(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackClients = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:    make(map[domain.Outcome]int64),
		byKind:   make(map[domain.Kind]int64),
		byClient: make(map[domain.ClientID]map[domain.Outcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	if ev.Outcome == domain.OutcomeConfirmed && ev.Kind != "" {
		s.byKind[ev.Kind]++
	}
	if s.trackClients && ev.Client != "" {
		c := s.byClient[ev.Client]
		if c == nil {
			c = make(map[domain.Outcome]int64)
			s.byClient[ev.Client] = c
		}
		c[ev.Outcome]++
	}
	return nil
}

func (s *MemoryStatsStore) RecordTick(_ context.Context, r domain.TickReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = r
	return nil
}

func (s *MemoryStatsStore) Total(o domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total[o]
}

func (s *MemoryStatsStore) Admitted(k domain.Kind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[k]
}

func (s *MemoryStatsStore) ByClient(id domain.ClientID) map[domain.Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Outcome]int64, len(s.byClient[id]))
	for k, v := range s.byClient[id] {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) LastTick() domain.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}
