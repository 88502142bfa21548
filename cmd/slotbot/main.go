// Command slotbot abre N clientes websocket contra um blockslot e dispara
// submit_tx / reserve_tx em intervalos, para gerar carga e observar bumps.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blockslot/logging"

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

type options struct {
	bots     int
	duration time.Duration
	seed     int64
	logLevel string
	logJSON  bool
	botConfig
}

func newRootCmd() *cobra.Command {
	opts := options{
		bots:     5,
		seed:     time.Now().UnixNano(),
		logLevel: "info",
		botConfig: botConfig{
			url:          "ws://localhost:5000/ws",
			every:        time.Second,
			reserveRatio: 0.3,
		},
	}

	cmd := &cobra.Command{
		Use:           "slotbot",
		Short:         "Drive a blockslot server with websocket bots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			log, err := logging.New(opts.logLevel, opts.logJSON)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if opts.duration > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, opts.duration)
				defer stop()
			}
			return runBots(ctx, opts, log)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.url, "url", opts.url, "websocket endpoint")
	fs.IntVarP(&opts.bots, "bots", "n", opts.bots, "number of concurrent clients")
	fs.DurationVar(&opts.every, "every", opts.every, "time between actions per bot")
	fs.Float64Var(&opts.reserveRatio, "reserve-ratio", opts.reserveRatio, "probability of reserve_tx instead of submit_tx")
	fs.IntVar(&opts.cost, "cost", opts.cost, "cost sent with reserve_tx (0 = server default)")
	fs.DurationVar(&opts.duration, "duration", opts.duration, "stop after this long (0 = until signal)")
	fs.Int64Var(&opts.seed, "seed", opts.seed, "random seed")
	fs.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level")
	fs.BoolVar(&opts.logJSON, "log-json", opts.logJSON, "log as JSON")
	return cmd
}

func (o options) validate() error {
	if o.bots <= 0 {
		return errors.New("--bots must be > 0")
	}
	if o.every <= 0 {
		return errors.New("--every must be > 0")
	}
	if o.reserveRatio < 0 || o.reserveRatio > 1 {
		return errors.New("--reserve-ratio must be in [0,1]")
	}
	if o.url == "" {
		return errors.New("--url is required")
	}
	return nil
}

func runBots(ctx context.Context, opts options, log logrus.FieldLogger) error {
	bots := make([]*bot, opts.bots)
	g, gctx := errgroup.WithContext(ctx)
	for i := range bots {
		b := newBot(i, opts.botConfig, log, opts.seed+int64(i))
		bots[i] = b
		g.Go(func() error { return b.run(gctx) })
	}

	err := g.Wait()
	for _, b := range bots {
		log.WithFields(b.fields()).WithField("bot", b.n).Info("bot summary")
	}
	return err
}
