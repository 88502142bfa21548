package main

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blockslot/admission/application"
	"blockslot/admission/transport"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func startServer(t *testing.T, cfg application.Config) (string, *application.Scheduler) {
	t.Helper()
	log := quietLogger()
	st := application.NewState(cfg)
	hub := transport.NewHub(transport.WithHubLogger(log))
	gw := application.NewGateway(st, application.WithLogger(log))
	sched := application.NewScheduler(st, hub, application.WithLogger(log))

	ts := httptest.NewServer(transport.NewServer(hub, gw, transport.Options{Logger: log}).Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", sched
}

func TestBot_ReceivesAcksAndResults(t *testing.T) {
	url, sched := startServer(t, application.DefaultConfig())

	b := newBot(0, botConfig{url: url, every: 5 * time.Millisecond, reserveRatio: 0.5}, quietLogger(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.run(ctx) }()

	require.Eventually(t, func() bool {
		return b.submitted.Load() > 0 && b.reserved.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		sched.Tick(context.Background())
	}
	require.Eventually(t, func() bool {
		return b.ticks.Load() >= 3 && b.confirmed.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("bot did not stop")
	}
}

func TestBot_RunsOutOfTokens(t *testing.T) {
	cfg := application.DefaultConfig()
	cfg.StartingTokens = 3
	url, _ := startServer(t, cfg)

	b := newBot(1, botConfig{url: url, every: 5 * time.Millisecond, reserveRatio: 1, cost: 2}, quietLogger(), 7)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.run(ctx) }()

	require.Eventually(t, func() bool { return b.reserveFailed.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, b.reserved.Load())
	assert.Zero(t, b.submitted.Load())
}

func TestBot_DialFailure(t *testing.T) {
	b := newBot(2, botConfig{url: "ws://127.0.0.1:1/ws", every: time.Second}, quietLogger(), 1)
	err := b.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}

func TestOptions_Validate(t *testing.T) {
	ok := options{bots: 1, botConfig: botConfig{url: "ws://x/ws", every: time.Second, reserveRatio: 0.5}}
	require.NoError(t, ok.validate())

	bad := ok
	bad.bots = 0
	assert.Error(t, bad.validate())

	bad = ok
	bad.reserveRatio = 1.5
	assert.Error(t, bad.validate())

	bad = ok
	bad.every = 0
	assert.Error(t, bad.validate())
}
