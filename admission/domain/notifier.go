package domain

import (
	"context"
	"errors"
)

// ErrNotConnected indica que o destinatário não tem sessão ativa (desconectou).
// Não é falha do tick: a decisão de admissão continua valendo.
var ErrNotConnected = errors.New("client not connected")

// Notifier entrega eventos de resultado aos clientes.
//
// É implementado pela camada de transporte. Falha de entrega é isolada por
// destinatário: Broadcast deve tentar todos e juntar os erros.
type Notifier interface {
	Send(ctx context.Context, id ClientID, ev Event) error
	Broadcast(ctx context.Context, ev Event) error
}

// NopNotifier descarta tudo. Útil quando ninguém está ouvindo (ex: testes).
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, ClientID, Event) error { return nil }
func (NopNotifier) Broadcast(context.Context, Event) error      { return nil }
