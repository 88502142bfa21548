package application

import (
	"context"
	"time"

	"blockslot/admission/domain"
)

// Throttle decide se um handshake/pedido HTTP de uma origem passa.
// Não sabe nada de HTTP, só devolve a decisão.
type Throttle struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (t Throttle) Decide(key domain.Key) domain.Decision {
	if t.Store == nil {
		return domain.Decision{Allowed: true}
	}
	retry := t.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}

	lim := t.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}

// SessionGate limita sessões simultâneas. A vaga fica presa enquanto a sessão vive.
type SessionGate struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta pegar uma vaga.
//   - AcquireTimeout <= 0: espera até ctx cancelar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
func (g SessionGate) Acquire(ctx context.Context) (func(), bool) {
	if g.Pool == nil {
		return func() {}, true
	}
	if g.AcquireTimeout <= 0 {
		return g.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, g.AcquireTimeout)
	defer cancel()
	return g.Pool.Acquire(acqCtx)
}
