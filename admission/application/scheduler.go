package application

import (
	"context"
	"errors"
	"time"

	"blockslot/admission/domain"

	"github.com/sirupsen/logrus"
)

// Scheduler fecha um bloco a cada BlockInterval e decide quem é admitido.
//
// Política de desempate (total e determinística): reservas antes de pendentes e,
// dentro de cada classe, ordem de chegada. Reservas que sobram são "bumped" e
// não recebem reembolso. Pendentes que sobram continuam na fila.
type Scheduler struct {
	deps
	state    *State
	notifier domain.Notifier
}

func NewScheduler(state *State, notifier domain.Notifier, opts ...Option) *Scheduler {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Scheduler{
		deps:     newDeps(opts),
		state:    state,
		notifier: notifier,
	}
}

// Tick fecha a próxima altura: decide sob o lock e notifica depois de liberar.
func (s *Scheduler) Tick(ctx context.Context) domain.TickReport {
	r := s.state.closeBlock(s.clock.Now())
	s.report(ctx, r)
	return r
}

// closeBlock é o algoritmo de admissão. Roda inteiro dentro da seção crítica
// e não faz I/O.
func (st *State) closeBlock(at time.Time) domain.TickReport {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.height++
	h := st.height
	capacity := st.cfg.Capacity

	reserved := st.reservations.Drain(h)
	n := min(len(reserved), capacity)

	accepted := make([]domain.Admission, 0, min(capacity, len(reserved)+st.pending.Len()))
	for _, id := range reserved[:n] {
		accepted = append(accepted, domain.Admission{Client: id, Kind: domain.KindReserved})
	}

	var bumped []domain.ClientID
	if n < len(reserved) {
		bumped = append(bumped, reserved[n:]...)
	}

	if room := capacity - len(accepted); room > 0 {
		for _, e := range st.pending.TakeUpTo(room) {
			accepted = append(accepted, domain.Admission{Client: e.Client, Kind: domain.KindSubmitted})
		}
	}

	for i := range accepted {
		accepted[i].Score = st.ledger.Award(accepted[i].Client, 1).Score
	}

	return domain.TickReport{
		Height:       h,
		Capacity:     capacity,
		Accepted:     accepted,
		Bumped:       bumped,
		Pending:      st.pending.Len(),
		Reservations: st.reservations.Len(),
		At:           at,
	}
}

func (s *Scheduler) report(ctx context.Context, r domain.TickReport) {
	log := s.log.WithField("block", r.Height)

	for _, a := range r.Accepted {
		s.deliver(ctx, log, a.Client, domain.ConfirmedEvent(r.Height, a.Kind, a.Score))
		s.record(ctx, domain.StatsEvent{Client: a.Client, Outcome: domain.OutcomeConfirmed, Kind: a.Kind, Block: r.Height, At: r.At})
	}
	for _, id := range r.Bumped {
		s.deliver(ctx, log, id, domain.BumpedEvent(r.Height))
		s.record(ctx, domain.StatsEvent{Client: id, Outcome: domain.OutcomeBumped, Block: r.Height, At: r.At})
	}

	if err := s.notifier.Broadcast(ctx, domain.BlockTickEvent(r.Height, r.Capacity)); err != nil {
		log.WithError(err).Warn("block_tick broadcast incomplete")
	}

	if tr, ok := s.stats.(domain.TickRecorder); ok {
		tctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
		if err := tr.RecordTick(tctx, r); err != nil {
			log.WithError(err).Debug("stats tick record failed")
		}
		cancel()
	}

	log.WithFields(logrus.Fields{
		"accepted": len(r.Accepted),
		"bumped":   len(r.Bumped),
		"pending":  r.Pending,
	}).Info("block closed")
}

func (s *Scheduler) deliver(ctx context.Context, log logrus.FieldLogger, id domain.ClientID, ev domain.Event) {
	err := s.notifier.Send(ctx, id, ev)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotConnected):
		log.WithField("sid", id).Debug("outcome for disconnected client dropped")
	default:
		log.WithError(err).WithField("sid", id).Warn("outcome delivery failed")
	}
}

// Start cria o ticker já (antes de retornar) e roda o loop numa goroutine.
// O canal retornado fecha quando ctx é cancelado e o loop termina.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	t := s.clock.Ticker(s.state.cfg.BlockInterval)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Tick(ctx)
			}
		}
	}()
	return done
}

// Run bloqueia até ctx ser cancelado.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("interval", s.state.cfg.BlockInterval).Info("block scheduler started")
	<-s.Start(ctx)
	return nil
}
