package domain

import (
	"context"
	"time"
)

// Outcome é o resultado registrado nas estatísticas.
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeBumped        Outcome = "bumped"
	OutcomeSubmitted     Outcome = "submitted"
	OutcomeReserved      Outcome = "reserved"
	OutcomeReserveFailed Outcome = "reserve_failed"
)

// StatsEvent representa um evento de admissão (por cliente).
//
// Observação: cuidado com cardinalidade ao guardar Client (Redis/Prometheus).
type StatsEvent struct {
	Client  ClientID
	Outcome Outcome
	// Kind só é preenchido para OutcomeConfirmed.
	Kind  Kind
	Block Height

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
// Quem chama trata erro como best-effort (não derruba request nem tick).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// TickRecorder é opcional: stores que também querem o resumo do tick
// (altura, profundidade das filas) implementam esta interface.
type TickRecorder interface {
	RecordTick(ctx context.Context, r TickReport) error
}
