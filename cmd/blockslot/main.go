package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockslot/admission/application"
	"blockslot/admission/infra"
	"blockslot/admission/transport"
	"blockslot/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "blockslot",
		Short:         "Block admission scheduler with paid reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cfg := readConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server and the block clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			log, err := logging.New(cfg.logLevel, cfg.logJSON)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, log)
		},
	}
	cfg.bindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg config, log *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := infra.NewPromStats(reg)

	sinks := infra.MultiStats{prom, infra.NewMemoryStatsStore()}
	if cfg.statsEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		sinks = append(sinks, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsTrackClients(cfg.statsTrackClients),
		))
	}

	state := application.NewState(cfg.admission())
	hub := transport.NewHub(
		transport.WithSendBuffer(cfg.sendBuffer),
		transport.WithHubLogger(log),
		transport.WithSessionObserver(prom),
	)
	appOpts := []application.Option{
		application.WithLogger(log),
		application.WithStats(sinks),
		application.WithStatsTimeout(cfg.statsTimeout),
	}
	gw := application.NewGateway(state, appOpts...)
	sched := application.NewScheduler(state, hub, appOpts...)

	opts := transport.Options{
		Logger:  log,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	var limiter *infra.LimiterStore
	if cfg.rateEnabled {
		limiter = infra.NewLimiterStore(cfg.rateRPS, cfg.rateBurst, infra.WithLimiterLogger(log), infra.WithKeyGauge(prom))
		opts.Throttle = transport.ThrottleOptions{
			Store:               limiter,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
			Observer:            prom,
		}
	}
	if cfg.sessionsMax > 0 {
		opts.SessionCap = transport.SessionCapOptions{
			Pool:           infra.NewSessionPool(cfg.sessionsMax),
			AcquireTimeout: cfg.sessionsTimeout,
			Observer:       prom,
		}
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           transport.NewServer(hub, gw, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"listen":            cfg.listenAddr,
		"interval":          cfg.blockInterval,
		"capacity":          cfg.capacity,
		"reservation_delay": cfg.reservationDelay,
		"reserve_cost":      cfg.reserveCost,
		"starting_tokens":   cfg.startingTokens,
	}).Info("blockslot starting")
	log.WithFields(logrus.Fields{
		"enabled":  cfg.rateEnabled,
		"rps":      cfg.rateRPS,
		"burst":    cfg.rateBurst,
		"trustXFF": cfg.trustXFF,
	}).Info("rate")
	log.WithFields(logrus.Fields{
		"sessions_max":  cfg.sessionsMax,
		"redis_stats":   cfg.statsEnabled(),
		"stats_prefix":  cfg.statsPrefix,
		"stats_ttl":     cfg.statsTTL,
		"track_clients": cfg.statsTrackClients,
	}).Info("limits and stats")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if limiter != nil {
		g.Go(func() error { return limiter.RunJanitor(gctx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Sessões websocket são conexões sequestradas; Shutdown não as fecha.
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	head := state.Snapshot()
	log.WithFields(logrus.Fields{
		"block":    head.Block,
		"pending":  head.Pending,
		"accounts": head.Accounts,
	}).Info("blockslot stopped")
	return err
}
