package domain

import (
	"context"
	"time"
)

// Contratos de proteção da borda (handshake e API), sem dependência de net/http.
// Não interferem na semântica de submit/reserve: atuam antes da sessão existir.

// Key identifica a origem de um pedido (IP, header, etc).
type Key string

// Limiter decide se uma ação é permitida agora (token bucket, leaky bucket...).
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave. A implementação pode manter cache e TTL.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor de Retry-After quando bloquear. 0 = sem recomendação.
	RetryAfter time.Duration
}

// SlotPool é um recurso de capacidade finita (ex: sessões websocket simultâneas).
//
// Acquire bloqueia até conseguir vaga ou ctx encerrar. A função release deve ser
// chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
