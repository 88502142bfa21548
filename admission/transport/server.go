package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blockslot/admission/application"
	"blockslot/admission/domain"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Throttle   ThrottleOptions
	SessionCap SessionCapOptions
	// Metrics é servido em /metrics quando não for nil.
	Metrics http.Handler
	Logger  logrus.FieldLogger
	// CheckOrigin nil aceita qualquer origem.
	CheckOrigin func(r *http.Request) bool

	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

// Server traduz o protocolo websocket/HTTP para chamadas no Gateway.
type Server struct {
	hub      *Hub
	gw       *application.Gateway
	opts     Options
	log      logrus.FieldLogger
	pump     pumpConfig
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, gw *application.Gateway, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if opts.Throttle.Logger == nil {
		opts.Throttle.Logger = opts.Logger
	}

	return &Server{
		hub:  hub,
		gw:   gw,
		opts: opts,
		log:  opts.Logger,
		pump: pumpConfig{
			writeWait:      opts.WriteWait,
			pongWait:       opts.PongWait,
			pingPeriod:     opts.PongWait * 9 / 10,
			maxMessageSize: opts.MaxMessageSize,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Handler monta as rotas:
//   - GET /ws                  (throttle + limite de sessões)
//   - GET /api/state           (throttle)
//   - GET /api/accounts/{sid}  (throttle)
//   - GET /healthz
//   - GET /metrics             (se Options.Metrics)
func (s *Server) Handler() http.Handler {
	throttle := Throttle(s.opts.Throttle)
	capSessions := SessionCap(s.opts.SessionCap)

	r := mux.NewRouter()
	r.Handle("/ws", throttle(capSessions(http.HandlerFunc(s.ServeWS)))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(throttle)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{sid}", s.handleAccount).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

// ServeWS faz o upgrade e bloqueia enquanto a sessão viver.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade já respondeu com o erro HTTP.
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	id := domain.ClientID(uuid.NewString())
	sess := newSession(id, conn, s.hub.sendBuffer)
	log := s.log.WithFields(logrus.Fields{"sid": id, "remote": r.RemoteAddr})

	// "connected" entra na fila antes do registro: nenhum block_tick chega antes dele.
	s.reply(sess, log, domain.Event{Name: domain.EventConnected, Payload: s.gw.Connect(ctx, id)})
	s.hub.register(sess)
	defer s.hub.unregister(sess)

	go sess.writePump(s.pump, log)
	sess.readPump(s.pump, log, func(data []byte) {
		s.dispatch(ctx, sess, log, data)
	})
}

func (s *Server) dispatch(ctx context.Context, sess *session, log logrus.FieldLogger, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reply(sess, log, domain.Event{Name: domain.EventError, Payload: domain.ErrorPayload{Reason: reasonBadMessage}})
		return
	}

	switch env.Event {
	case domain.EventSubmitTx:
		ack := s.gw.Submit(ctx, sess.id)
		s.reply(sess, log, domain.Event{Name: domain.EventTxSubmitted, Payload: ack})

	case domain.EventReserveTx:
		ack, err := s.gw.Reserve(ctx, sess.id, parseCost(env.Data))
		var insufficient *domain.InsufficientTokensError
		switch {
		case errors.As(err, &insufficient):
			s.reply(sess, log, domain.Event{
				Name: domain.EventReserveFailed,
				Payload: domain.ReserveFailedPayload{
					Reason: domain.ReasonNotEnoughTokens,
					Tokens: insufficient.Tokens,
				},
			})
		case err != nil:
			log.WithError(err).Warn("reserve failed")
			s.reply(sess, log, domain.Event{Name: domain.EventError, Payload: domain.ErrorPayload{Reason: err.Error()}})
		default:
			s.reply(sess, log, domain.Event{Name: domain.EventReserveSuccess, Payload: ack})
		}

	case domain.EventConnect:
		// connect é implícito no upgrade; repetir só devolve o estado atual.
		s.reply(sess, log, domain.Event{Name: domain.EventConnected, Payload: s.gw.Connect(ctx, sess.id)})

	default:
		s.reply(sess, log, domain.Event{Name: domain.EventError, Payload: domain.ErrorPayload{Reason: reasonUnknownEvent}})
	}
}

func (s *Server) reply(sess *session, log logrus.FieldLogger, ev domain.Event) {
	msg, err := encodeEvent(ev)
	if err != nil {
		log.WithError(err).WithField("event", ev.Name).Error("encode reply")
		return
	}
	if err := sess.enqueue(msg); err != nil {
		log.WithError(err).WithField("event", ev.Name).Warn("reply dropped")
	}
}

type stateResponse struct {
	application.Snapshot
	Sessions int `json:"sessions"`
}

type accountResponse struct {
	SID    domain.ClientID `json:"sid"`
	Tokens int             `json:"tokens"`
	Score  int             `json:"score"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{Snapshot: s.gw.Snapshot(), Sessions: s.hub.Len()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := domain.ClientID(mux.Vars(r)["sid"])
	acct, ok := s.gw.Account(id)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{SID: id, Tokens: acct.Tokens, Score: acct.Score})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
