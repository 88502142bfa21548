package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blockslot/admission/application"
	"blockslot/admission/domain"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsRig struct {
	ts    *httptest.Server
	clk   *clock.Mock
	hub   *Hub
	gw    *application.Gateway
	sched *application.Scheduler
}

func newWSRig(t *testing.T, cfg application.Config) *wsRig {
	t.Helper()
	clk := clock.NewMock()
	log := quietLogger()

	st := application.NewState(cfg)
	hub := NewHub(WithHubLogger(log))
	gw := application.NewGateway(st, application.WithClock(clk), application.WithLogger(log))
	sched := application.NewScheduler(st, hub, application.WithClock(clk), application.WithLogger(log))

	srv := NewServer(hub, gw, Options{Logger: log})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &wsRig{ts: ts, clk: clk, hub: hub, gw: gw, sched: sched}
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (r *wsRig) dial(t *testing.T) (*websocket.Conn, domain.ConnectedPayload) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	ev := readEvent(t, conn)
	require.Equal(t, domain.EventConnected, ev.Event)
	var hello domain.ConnectedPayload
	require.NoError(t, json.Unmarshal(ev.Data, &hello))
	return conn, hello
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil descarta eventos até achar name.
func readUntil(t *testing.T, conn *websocket.Conn, name string) wireEvent {
	t.Helper()
	for i := 0; i < 16; i++ {
		ev := readEvent(t, conn)
		if ev.Event == name {
			return ev
		}
	}
	t.Fatalf("event %q not received", name)
	return wireEvent{}
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func waitSessions(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Len() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_ConnectAssignsSessionAndAccount(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	_, hello := r.dial(t)

	assert.NotEmpty(t, hello.SID)
	assert.Equal(t, domain.Height(0), hello.Block)
	assert.Equal(t, 10, hello.Tokens)
	assert.Equal(t, 0, hello.Score)

	acct, ok := r.gw.Account(hello.SID)
	require.True(t, ok)
	assert.Equal(t, 10, acct.Tokens)
	waitSessions(t, r.hub, 1)
}

func TestServer_ReserveIsConfirmedAtTargetBlock(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	conn, hello := r.dial(t)
	waitSessions(t, r.hub, 1)

	send(t, conn, `{"event":"reserve_tx","data":{"cost":3}}`)
	ev := readEvent(t, conn)
	require.Equal(t, domain.EventReserveSuccess, ev.Event)
	var ok domain.ReserveSuccessPayload
	require.NoError(t, json.Unmarshal(ev.Data, &ok))
	assert.Equal(t, domain.Height(2), ok.TargetBlock)
	assert.Equal(t, 7, ok.Tokens)

	ctx := context.Background()
	r.sched.Tick(ctx)
	tick := readUntil(t, conn, domain.EventBlockTick)
	assert.JSONEq(t, `{"block":1,"capacity":6}`, string(tick.Data))

	r.sched.Tick(ctx)
	res := readUntil(t, conn, domain.EventTxResult)
	assert.JSONEq(t, `{"status":"confirmed","block":2,"kind":"reserved","score":1}`, string(res.Data))

	acct, found := r.gw.Account(hello.SID)
	require.True(t, found)
	assert.Equal(t, 1, acct.Score)
}

func TestServer_SubmitAndReserveFailure(t *testing.T) {
	cfg := application.DefaultConfig()
	cfg.StartingTokens = 1
	r := newWSRig(t, cfg)
	conn, _ := r.dial(t)

	send(t, conn, `{"event":"reserve_tx","data":{}}`)
	ev := readEvent(t, conn)
	require.Equal(t, domain.EventReserveFailed, ev.Event)
	assert.JSONEq(t, `{"reason":"not_enough_tokens","tokens":1}`, string(ev.Data))

	r.clk.Add(90 * time.Second)
	send(t, conn, `{"event":"submit_tx"}`)
	ev = readEvent(t, conn)
	require.Equal(t, domain.EventTxSubmitted, ev.Event)
	var ack domain.SubmittedPayload
	require.NoError(t, json.Unmarshal(ev.Data, &ack))
	assert.Equal(t, 90.0, ack.Time)

	assert.Equal(t, 1, r.gw.Snapshot().Pending)
}

func TestServer_RejectsMalformedAndUnknownMessages(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	conn, _ := r.dial(t)

	send(t, conn, `not json`)
	ev := readEvent(t, conn)
	require.Equal(t, domain.EventError, ev.Event)
	assert.JSONEq(t, `{"reason":"bad_message"}`, string(ev.Data))

	send(t, conn, `{"event":"mine_block"}`)
	ev = readEvent(t, conn)
	require.Equal(t, domain.EventError, ev.Event)
	assert.JSONEq(t, `{"reason":"unknown_event"}`, string(ev.Data))
}

func TestServer_DisconnectKeepsAccount(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	conn, hello := r.dial(t)
	waitSessions(t, r.hub, 1)

	require.NoError(t, conn.Close())
	waitSessions(t, r.hub, 0)

	_, ok := r.gw.Account(hello.SID)
	assert.True(t, ok)

	// tick com cliente desconectado não quebra nada
	r.sched.Tick(context.Background())
}

func TestServer_StateAndAccountEndpoints(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	_, hello := r.dial(t)
	waitSessions(t, r.hub, 1)

	resp, err := http.Get(r.ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.EqualValues(t, 1, state["sessions"])
	assert.EqualValues(t, 1, state["accounts"])
	assert.EqualValues(t, 6, state["capacity"])
	assert.Equal(t, "8s", state["interval"])

	resp2, err := http.Get(r.ts.URL + "/api/accounts/" + string(hello.SID))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var acct accountResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&acct))
	assert.Equal(t, hello.SID, acct.SID)
	assert.Equal(t, 10, acct.Tokens)

	resp3, err := http.Get(r.ts.URL + "/api/accounts/nobody")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)

	resp4, err := http.Get(r.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestServer_CloseAllDisconnectsClients(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	conn, _ := r.dial(t)
	waitSessions(t, r.hub, 1)

	r.hub.CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	waitSessions(t, r.hub, 0)
}

func TestServer_ReserveCostAboveBalanceFails(t *testing.T) {
	r := newWSRig(t, application.DefaultConfig())
	conn, hello := r.dial(t)

	for _, raw := range []string{
		`{"event":"reserve_tx","data":{"cost":12.0}}`,
		`{"event":"reserve_tx","data":{"cost":1e2}}`,
		`{"event":"reserve_tx","data":{"cost":3000000000}}`,
	} {
		send(t, conn, raw)
		ev := readEvent(t, conn)
		require.Equal(t, domain.EventReserveFailed, ev.Event, raw)
		assert.JSONEq(t, `{"reason":"not_enough_tokens","tokens":10}`, string(ev.Data), raw)
	}

	acct, ok := r.gw.Account(hello.SID)
	require.True(t, ok)
	assert.Equal(t, 10, acct.Tokens)
	assert.Equal(t, 0, r.gw.Snapshot().Reservations)
}
