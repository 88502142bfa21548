package application

import (
	"context"

	"blockslot/admission/domain"
)

// Gateway são os pontos de entrada síncronos (connect, submit, reserve).
// Cada chamada entra e sai da seção crítica antes de responder.
type Gateway struct {
	deps
	state *State
}

func NewGateway(state *State, opts ...Option) *Gateway {
	return &Gateway{deps: newDeps(opts), state: state}
}

// Connect garante que a conta existe e devolve a altura atual, saldo e score.
func (g *Gateway) Connect(_ context.Context, id domain.ClientID) domain.ConnectedPayload {
	g.state.mu.Lock()
	acc := g.state.ledger.GetOrCreate(id)
	h := g.state.height
	g.state.mu.Unlock()

	return domain.ConnectedPayload{SID: id, Block: h, Tokens: acc.Tokens, Score: acc.Score}
}

// Submit coloca o cliente na fila de pendentes. Nunca falha.
func (g *Gateway) Submit(ctx context.Context, id domain.ClientID) domain.SubmittedPayload {
	now := g.clock.Now()

	g.state.mu.Lock()
	g.state.pending.Enqueue(id, now)
	h := g.state.height
	g.state.mu.Unlock()

	g.record(ctx, domain.StatsEvent{Client: id, Outcome: domain.OutcomeSubmitted, Block: h, At: now})
	return domain.SubmittedPayload{Time: float64(now.UnixNano()) / 1e9}
}

// Reserve cobra cost (normalizado) e reserva uma vaga em altura+ReservationDelay.
//
// Sem saldo, retorna *domain.InsufficientTokensError (errors.Is com
// domain.ErrInsufficientTokens) e nenhuma fila é alterada.
func (g *Gateway) Reserve(ctx context.Context, id domain.ClientID, cost int) (domain.ReserveSuccessPayload, error) {
	cost = domain.NormalizeCost(cost, g.state.cfg.DefaultCost)

	g.state.mu.Lock()
	target := g.state.height + domain.Height(g.state.cfg.ReservationDelay)
	acc, ok := g.state.ledger.TryCharge(id, cost)
	if ok {
		g.state.reservations.Reserve(target, id)
	}
	g.state.mu.Unlock()

	if !ok {
		g.record(ctx, domain.StatsEvent{Client: id, Outcome: domain.OutcomeReserveFailed, Block: target})
		g.log.WithField("sid", id).WithField("tokens", acc.Tokens).Debug("reservation refused")
		return domain.ReserveSuccessPayload{}, &domain.InsufficientTokensError{Tokens: acc.Tokens, Cost: cost}
	}

	g.record(ctx, domain.StatsEvent{Client: id, Outcome: domain.OutcomeReserved, Block: target})
	return domain.ReserveSuccessPayload{TargetBlock: target, Tokens: acc.Tokens}, nil
}

func (g *Gateway) Account(id domain.ClientID) (domain.Account, bool) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	return g.state.ledger.Get(id)
}

func (g *Gateway) Snapshot() Snapshot { return g.state.Snapshot() }
