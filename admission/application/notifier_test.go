package application

import (
	"context"
	"errors"
	"sync"

	"blockslot/admission/domain"
)

// recordingNotifier guarda tudo que seria enviado aos clientes.
type recordingNotifier struct {
	mu         sync.Mutex
	sent       map[domain.ClientID][]domain.Event
	broadcasts []domain.Event
	fail       map[domain.ClientID]error

	ticks chan domain.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		sent:  make(map[domain.ClientID][]domain.Event),
		fail:  make(map[domain.ClientID]error),
		ticks: make(chan domain.Event, 16),
	}
}

func (n *recordingNotifier) Send(_ context.Context, id domain.ClientID, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[id]; err != nil {
		return err
	}
	n.sent[id] = append(n.sent[id], ev)
	return nil
}

func (n *recordingNotifier) Broadcast(_ context.Context, ev domain.Event) error {
	n.mu.Lock()
	n.broadcasts = append(n.broadcasts, ev)
	n.mu.Unlock()

	select {
	case n.ticks <- ev:
	default:
	}
	return nil
}

func (n *recordingNotifier) results(id domain.ClientID) []domain.TxResultPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.TxResultPayload
	for _, ev := range n.sent[id] {
		if p, ok := ev.Payload.(domain.TxResultPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (n *recordingNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, evs := range n.sent {
		total += len(evs)
	}
	return total
}

var errBrokenPipe = errors.New("broken pipe")
