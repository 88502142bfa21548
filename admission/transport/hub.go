package transport

import (
	"context"
	"errors"
	"fmt"

	"blockslot/admission/domain"

	"github.com/algorand/go-deadlock"
	"github.com/sirupsen/logrus"
)

// ErrSlowConsumer: a fila de saída da sessão está cheia; o evento foi descartado
// só para esse destinatário.
var ErrSlowConsumer = errors.New("session send queue full")

// SessionObserver é avisado quando sessões entram e saem (ex: gauge Prometheus).
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

var _ domain.Notifier = (*Hub)(nil)

// Hub é o registro de sessões vivas e implementa domain.Notifier.
type Hub struct {
	mu       deadlock.RWMutex
	sessions map[domain.ClientID]*session

	sendBuffer int
	log        logrus.FieldLogger
	observer   SessionObserver
}

type HubOption func(*Hub)

// WithSendBuffer define o tamanho da fila de saída de cada sessão.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) { h.sendBuffer = n }
}

func WithHubLogger(l logrus.FieldLogger) HubOption {
	return func(h *Hub) { h.log = l }
}

func WithSessionObserver(o SessionObserver) HubOption {
	return func(h *Hub) { h.observer = o }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions:   make(map[domain.ClientID]*session),
		sendBuffer: 64,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sendBuffer < 1 {
		h.sendBuffer = 1
	}
	return h
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.SessionOpened()
	}
	h.log.WithField("sid", s.id).Debug("session registered")
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	cur, ok := h.sessions[s.id]
	if ok && cur == s {
		delete(h.sessions, s.id)
	}
	h.mu.Unlock()

	s.close()
	if ok && cur == s {
		if h.observer != nil {
			h.observer.SessionClosed()
		}
		h.log.WithField("sid", s.id).Debug("session unregistered")
	}
}

// Len é o número de sessões conectadas.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Send(_ context.Context, id domain.ClientID, ev domain.Event) error {
	h.mu.RLock()
	s := h.sessions[id]
	h.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("send %s to %s: %w", ev.Name, id, domain.ErrNotConnected)
	}

	msg, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	if err := s.enqueue(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", ev.Name, id, err)
	}
	return nil
}

// Broadcast tenta todas as sessões; uma fila cheia não impede as outras.
func (h *Hub) Broadcast(_ context.Context, ev domain.Event) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := s.enqueue(msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll encerra todas as sessões; cada handler remove a sua do registro.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.close()
	}
}
