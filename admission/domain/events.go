package domain

import "time"

// Kind diz por qual classe a entrada foi admitida no bloco.
type Kind string

const (
	KindReserved  Kind = "reserved"
	KindSubmitted Kind = "submitted"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusBumped    Status = "reservation_bumped"
)

// Nomes dos eventos trocados com o cliente.
const (
	EventConnect        = "connect"
	EventSubmitTx       = "submit_tx"
	EventReserveTx      = "reserve_tx"
	EventConnected      = "connected"
	EventTxSubmitted    = "tx_submitted"
	EventReserveSuccess = "reserve_success"
	EventReserveFailed  = "reserve_failed"
	EventTxResult       = "tx_result"
	EventBlockTick      = "block_tick"
	EventError          = "error"
)

const ReasonNotEnoughTokens = "not_enough_tokens"

// Event é uma mensagem de saída, independente do formato de fio.
type Event struct {
	Name    string
	Payload any
}

type ConnectedPayload struct {
	SID    ClientID `json:"sid"`
	Block  Height   `json:"block"`
	Tokens int      `json:"tokens"`
	Score  int      `json:"score"`
}

type SubmittedPayload struct {
	// Time em segundos unix (com fração).
	Time float64 `json:"time"`
}

type ReserveSuccessPayload struct {
	TargetBlock Height `json:"target_block"`
	Tokens      int    `json:"tokens"`
}

type ReserveFailedPayload struct {
	Reason string `json:"reason"`
	Tokens int    `json:"tokens"`
}

type TxResultPayload struct {
	Status Status `json:"status"`
	Block  Height `json:"block"`
	Kind   Kind   `json:"kind,omitempty"`
	Score  *int   `json:"score,omitempty"`
}

type BlockTickPayload struct {
	Block    Height `json:"block"`
	Capacity int    `json:"capacity"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

func ConfirmedEvent(h Height, kind Kind, score int) Event {
	return Event{Name: EventTxResult, Payload: TxResultPayload{Status: StatusConfirmed, Block: h, Kind: kind, Score: &score}}
}

func BumpedEvent(h Height) Event {
	return Event{Name: EventTxResult, Payload: TxResultPayload{Status: StatusBumped, Block: h}}
}

func BlockTickEvent(h Height, capacity int) Event {
	return Event{Name: EventBlockTick, Payload: BlockTickPayload{Block: h, Capacity: capacity}}
}

// Admission é uma entrada aceita num tick, com o score já atualizado.
type Admission struct {
	Client ClientID
	Kind   Kind
	Score  int
}

// TickReport é a decisão de admissão tomada para uma altura.
type TickReport struct {
	Height   Height
	Capacity int
	Accepted []Admission
	Bumped   []ClientID

	// profundidade das filas logo após o tick
	Pending      int
	Reservations int

	At time.Time
}
