package domain

import (
	"sort"
	"time"
)

// ReservationTable mapeia uma altura futura para a fila (FIFO) de clientes que
// reservaram vaga naquele bloco. Um mesmo cliente pode aparecer várias vezes.
type ReservationTable struct {
	byHeight map[Height][]ClientID
	total    int
}

func NewReservationTable() *ReservationTable {
	return &ReservationTable{byHeight: make(map[Height][]ClientID)}
}

func (t *ReservationTable) Reserve(target Height, id ClientID) {
	t.byHeight[target] = append(t.byHeight[target], id)
	t.total++
}

// Drain remove e retorna a fila inteira da altura (vazia se não houver).
func (t *ReservationTable) Drain(h Height) []ClientID {
	ids, ok := t.byHeight[h]
	if !ok {
		return nil
	}
	delete(t.byHeight, h)
	t.total -= len(ids)
	return ids
}

// Len é o total de reservas ainda não resolvidas, somando todas as alturas.
func (t *ReservationTable) Len() int { return t.total }

// Heights retorna as alturas com reservas em aberto, em ordem crescente.
func (t *ReservationTable) Heights() []Height {
	out := make([]Height, 0, len(t.byHeight))
	for h := range t.byHeight {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type PendingEntry struct {
	Client      ClientID
	SubmittedAt time.Time
}

// PendingQueue é a fila global de submissões sem reserva. Sem limite e sem dedup.
type PendingQueue struct {
	entries []PendingEntry
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

func (q *PendingQueue) Enqueue(id ClientID, at time.Time) {
	q.entries = append(q.entries, PendingEntry{Client: id, SubmittedAt: at})
}

// TakeUpTo remove e retorna no máximo n entradas da cabeça, na ordem de chegada.
// O timestamp é só informativo, não reordena nada.
func (q *PendingQueue) TakeUpTo(n int) []PendingEntry {
	if n <= 0 || len(q.entries) == 0 {
		return nil
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]PendingEntry, n)
	copy(out, q.entries[:n])

	// compacta para não segurar o array antigo indefinidamente
	rest := make([]PendingEntry, len(q.entries)-n)
	copy(rest, q.entries[n:])
	q.entries = rest
	return out
}

func (q *PendingQueue) Len() int { return len(q.entries) }

func (q *PendingQueue) Snapshot() []PendingEntry {
	out := make([]PendingEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
