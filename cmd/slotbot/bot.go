package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"blockslot/admission/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// tally conta o que um bot viu. Lido por outras goroutines, daí os atomics.
type tally struct {
	submitted     atomic.Int64
	reserved      atomic.Int64
	reserveFailed atomic.Int64
	confirmed     atomic.Int64
	bumped        atomic.Int64
	ticks         atomic.Int64
}

func (t *tally) fields() logrus.Fields {
	return logrus.Fields{
		"submitted":      t.submitted.Load(),
		"reserved":       t.reserved.Load(),
		"reserve_failed": t.reserveFailed.Load(),
		"confirmed":      t.confirmed.Load(),
		"bumped":         t.bumped.Load(),
		"ticks":          t.ticks.Load(),
	}
}

type botConfig struct {
	url          string
	every        time.Duration
	reserveRatio float64
	cost         int
}

type bot struct {
	n   int
	cfg botConfig
	log logrus.FieldLogger
	rng *rand.Rand
	tally
}

func newBot(n int, cfg botConfig, log logrus.FieldLogger, seed int64) *bot {
	return &bot{
		n:   n,
		cfg: cfg,
		log: log.WithField("bot", n),
		rng: rand.New(rand.NewSource(seed)),
	}
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// run conecta, dispara submit/reserve a cada cfg.every e lê respostas até ctx
// encerrar ou o servidor fechar a conexão.
func (b *bot) run(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.url, nil)
	if err != nil {
		return fmt.Errorf("bot %d dial: %w", b.n, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	readErr := make(chan error, 1)
	go func() { readErr <- b.readLoop(conn) }()

	t := time.NewTicker(b.cfg.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("bot %d read: %w", b.n, err)
		case <-t.C:
			if err := conn.WriteJSON(b.nextAction()); err != nil {
				return fmt.Errorf("bot %d write: %w", b.n, err)
			}
		}
	}
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func (b *bot) nextAction() outbound {
	if b.rng.Float64() < b.cfg.reserveRatio {
		var data any
		if b.cfg.cost > 0 {
			data = map[string]int{"cost": b.cfg.cost}
		}
		return outbound{Event: domain.EventReserveTx, Data: data}
	}
	return outbound{Event: domain.EventSubmitTx}
}

func (b *bot) readLoop(conn *websocket.Conn) error {
	log := b.log
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if ev.Event == domain.EventConnected {
			var p domain.ConnectedPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				log.WithError(err).Warn("bad connected payload")
				continue
			}
			log = log.WithField("sid", p.SID)
			log.WithFields(logrus.Fields{"block": p.Block, "tokens": p.Tokens}).Info("connected")
			continue
		}
		if err := b.handle(log, ev); err != nil {
			log.WithError(err).WithField("event", ev.Event).Warn("server error")
		}
	}
}

func (b *bot) handle(log logrus.FieldLogger, ev wireEvent) error {
	switch ev.Event {

	case domain.EventTxSubmitted:
		b.submitted.Add(1)

	case domain.EventReserveSuccess:
		var p domain.ReserveSuccessPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		b.reserved.Add(1)
		log.WithFields(logrus.Fields{"target": p.TargetBlock, "tokens": p.Tokens}).Debug("reserved")

	case domain.EventReserveFailed:
		b.reserveFailed.Add(1)

	case domain.EventTxResult:
		var p domain.TxResultPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		switch p.Status {
		case domain.StatusConfirmed:
			b.confirmed.Add(1)
		case domain.StatusBumped:
			b.bumped.Add(1)
		}
		log.WithFields(logrus.Fields{"status": p.Status, "block": p.Block, "kind": p.Kind}).Debug("tx result")

	case domain.EventBlockTick:
		b.ticks.Add(1)

	case domain.EventError:
		var p domain.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		return errors.New(p.Reason)
	}
	return nil
}
