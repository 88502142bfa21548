package transport

import (
	"sync"
	"time"

	"blockslot/admission/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// session é uma conexão websocket. Só o writePump escreve em conn; os outros
// goroutines entregam mensagens pela fila out.
type session struct {
	id   domain.ClientID
	conn *websocket.Conn
	out  chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(id domain.ClientID, conn *websocket.Conn, buffer int) *session {
	return &session{
		id:     id,
		conn:   conn,
		out:    make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// enqueue nunca bloqueia.
func (s *session) enqueue(msg []byte) error {
	select {
	case <-s.closed:
		return domain.ErrNotConnected
	default:
	}

	select {
	case s.out <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

type pumpConfig struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
}

func (s *session) writePump(cfg pumpConfig, log logrus.FieldLogger) {
	ticker := time.NewTicker(cfg.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Debug("write failed")
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.closed:
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.writeWait),
			)
			return
		}
	}
}

// readPump entrega cada frame de texto para handle até a conexão cair.
func (s *session) readPump(cfg pumpConfig, log logrus.FieldLogger, handle func([]byte)) {
	s.conn.SetReadLimit(cfg.maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("connection lost")
			}
			return
		}
		select {
		case <-s.closed:
			return
		default:
		}
		handle(data)
	}
}
