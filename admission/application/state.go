package application

import (
	"context"
	"errors"
	"time"

	"blockslot/admission/domain"

	"github.com/algorand/go-deadlock"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

type Config struct {
	BlockInterval time.Duration
	// Capacity é o número de vagas por bloco. 0 é válido: nada é admitido.
	Capacity int
	// ReservationDelay é quantos blocos à frente uma reserva mira.
	ReservationDelay int
	// DefaultCost é usado quando o cliente não manda custo (ou manda <= 0).
	DefaultCost    int
	StartingTokens int
}

func DefaultConfig() Config {
	return Config{
		BlockInterval:    8 * time.Second,
		Capacity:         6,
		ReservationDelay: 2,
		DefaultCost:      2,
		StartingTokens:   10,
	}
}

func (c Config) Validate() error {
	if c.BlockInterval <= 0 {
		return errors.New("block interval must be > 0")
	}
	if c.Capacity < 0 {
		return errors.New("capacity must be >= 0")
	}
	if c.ReservationDelay < 1 {
		return errors.New("reservation delay must be >= 1")
	}
	if c.DefaultCost < 1 {
		return errors.New("default cost must be >= 1")
	}
	if c.StartingTokens < 0 {
		return errors.New("starting tokens must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BlockInterval <= 0 {
		c.BlockInterval = def.BlockInterval
	}
	if c.ReservationDelay <= 0 {
		c.ReservationDelay = def.ReservationDelay
	}
	if c.DefaultCost <= 0 {
		c.DefaultCost = def.DefaultCost
	}
	if c.Capacity < 0 {
		c.Capacity = 0
	}
	return c
}

// State é o domínio de consistência: altura do bloco, reservas, fila de
// pendentes e contas. Tudo é lido e escrito sob o mesmo mutex, porque a decisão
// de admissão precisa ver as quatro estruturas no mesmo instante.
//
// Nenhuma operação faz I/O segurando mu.
type State struct {
	mu deadlock.Mutex

	cfg          Config
	height       domain.Height
	ledger       *domain.Ledger
	reservations *domain.ReservationTable
	pending      *domain.PendingQueue
}

func NewState(cfg Config) *State {
	cfg = cfg.withDefaults()
	return &State{
		cfg:          cfg,
		ledger:       domain.NewLedger(cfg.StartingTokens),
		reservations: domain.NewReservationTable(),
		pending:      domain.NewPendingQueue(),
	}
}

func (st *State) Config() Config { return st.cfg }

func (st *State) Height() domain.Height {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.height
}

type Snapshot struct {
	Block            domain.Height `json:"block"`
	Capacity         int           `json:"capacity"`
	Interval         string        `json:"interval"`
	ReservationDelay int           `json:"reservation_delay"`
	Pending          int           `json:"pending"`
	Reservations     int           `json:"reservations"`
	Accounts         int           `json:"accounts"`
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{
		Block:            st.height,
		Capacity:         st.cfg.Capacity,
		Interval:         st.cfg.BlockInterval.String(),
		ReservationDelay: st.cfg.ReservationDelay,
		Pending:          st.pending.Len(),
		Reservations:     st.reservations.Len(),
		Accounts:         st.ledger.Len(),
	}
}

// deps são as dependências de ambiente comuns a Scheduler e Gateway.
type deps struct {
	clock        clock.Clock
	log          logrus.FieldLogger
	stats        domain.StatsStore
	statsTimeout time.Duration
}

const defaultStatsTimeout = 250 * time.Millisecond

type Option func(*deps)

func WithClock(c clock.Clock) Option {
	return func(d *deps) { d.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *deps) { d.log = l }
}

// WithStats liga um StatsStore. Erros de Record são apenas logados.
func WithStats(s domain.StatsStore) Option {
	return func(d *deps) { d.stats = s }
}

// WithStatsTimeout limita quanto um Record (ex: Redis) pode atrasar a resposta
// ao cliente ou o fim do tick. d <= 0 mantém o padrão.
func WithStatsTimeout(d time.Duration) Option {
	return func(dp *deps) {
		if d > 0 {
			dp.statsTimeout = d
		}
	}
}

func newDeps(opts []Option) deps {
	d := deps{clock: clock.New(), statsTimeout: defaultStatsTimeout}
	for _, opt := range opts {
		opt(&d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		d.log = l
	}
	return d
}

func (d deps) record(ctx context.Context, ev domain.StatsEvent) {
	if d.stats == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = d.clock.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, d.statsTimeout)
	defer cancel()
	if err := d.stats.Record(ctx, ev); err != nil {
		d.log.WithError(err).WithField("outcome", ev.Outcome).Debug("stats record failed")
	}
}
