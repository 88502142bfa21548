package infra

import (
	"context"
	"time"

	"blockslot/admission/domain"

	"github.com/algorand/go-deadlock"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// KeyGauge recebe o número de origens rastreadas depois de cada limpeza
// (ex: PromStats.TrackedKeys).
type KeyGauge interface {
	TrackedKeys(n int)
}

// LimiterStore guarda um token bucket por origem de handshake/API.
//
// Tanto o refill dos buckets quanto o "visto por último" seguem o mesmo
// clock.Clock do agendador, então um clock.Mock controla o limite e a
// expiração nos testes.
type LimiterStore struct {
	mu      deadlock.Mutex
	origins map[domain.Key]*origin

	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	sweep   time.Duration

	clock clock.Clock
	gauge KeyGauge
	log   logrus.FieldLogger
}

// origin é o bucket de uma chave e o instante do último pedido dela.
type origin struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Allow consome um token no instante do clock da store.
type clockedLimiter struct {
	o     *origin
	clock clock.Clock
}

func (l clockedLimiter) Allow() bool { return l.o.bucket.AllowN(l.clock.Now(), 1) }

type LimiterOption func(*LimiterStore)

// WithIdleTTL: origens sem pedido há mais que d são esquecidas.
func WithIdleTTL(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.idleTTL = d }
}

// WithCleanupEvery: período do janitor. d <= 0 desliga a limpeza periódica.
func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.sweep = d }
}

func WithLimiterLogger(l logrus.FieldLogger) LimiterOption {
	return func(s *LimiterStore) { s.log = l }
}

func WithLimiterClock(c clock.Clock) LimiterOption {
	return func(s *LimiterStore) { s.clock = c }
}

func WithKeyGauge(g KeyGauge) LimiterOption {
	return func(s *LimiterStore) { s.gauge = g }
}

func NewLimiterStore(rps float64, burst int, opts ...LimiterOption) *LimiterStore {
	s := &LimiterStore{
		origins: make(map[domain.Key]*origin),
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		sweep:   2 * time.Minute,
		clock:   clock.New(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RPS e Burst alimentam os headers X-RateLimit-*.
func (s *LimiterStore) RPS() float64 { return float64(s.limit) }
func (s *LimiterStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore e marca a origem como vista agora.
func (s *LimiterStore) Get(key domain.Key) domain.Limiter {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.origins[key]
	if !ok {
		o = &origin{bucket: rate.NewLimiter(s.limit, s.burst)}
		s.origins[key] = o
	}
	o.lastSeen = now
	return clockedLimiter{o: o, clock: s.clock}
}

func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.origins)
}

// Cleanup esquece origens ociosas e retorna quantas saíram. Uma origem
// esquecida volta com o bucket cheio no próximo pedido.
func (s *LimiterStore) Cleanup() int {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	removed := 0
	for k, o := range s.origins {
		if o.lastSeen.Before(cutoff) {
			delete(s.origins, k)
			removed++
		}
	}
	left := len(s.origins)
	s.mu.Unlock()

	if s.gauge != nil {
		s.gauge.TrackedKeys(left)
	}
	return removed
}

// RunJanitor roda Cleanup a cada período até ctx cancelar.
func (s *LimiterStore) RunJanitor(ctx context.Context) error {
	if s.sweep <= 0 {
		<-ctx.Done()
		return nil
	}

	t := s.clock.Ticker(s.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Cleanup(); n > 0 {
				s.log.WithField("removed", n).Debug("idle origins forgotten")
			}
		}
	}
}
