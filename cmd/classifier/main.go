// Command classifier runs the consumer-group worker that turns candles on
// the stream into regime results in the KV store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/classifier"
	"github.com/sithhades/regime-classifier/internal/config"
	"github.com/sithhades/regime-classifier/internal/logging"
	"github.com/sithhades/regime-classifier/internal/metrics"
	"github.com/sithhades/regime-classifier/internal/store/postgres"
	"github.com/sithhades/regime-classifier/internal/supervisor"
	"github.com/sithhades/regime-classifier/pkg/redisx"
)

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *postgres.Store
	redis   *redisx.Client
	metrics *metrics.Metrics
	worker  *classifier.Worker
	super   *supervisor.Supervisor

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	root := &cobra.Command{
		Use:   "classifier",
		Short: "Regime classification consumer-group worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	a := &app{}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "classifier: initialize failed: %v\n", err)
		return err
	}
	defer a.shutdown()

	if err := a.start(); err != nil {
		a.logger.Error("classifier: start failed", zap.Error(err))
		return err
	}

	a.waitForShutdown()
	return nil
}

func (a *app) initialize() error {
	var err error
	a.logger, err = logging.New("classifier")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	a.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	a.store, err = postgres.New(a.ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := a.store.EnsureSchema(a.ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	a.redis, err = redisx.New(a.ctx, a.cfg.RedisURL, a.logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	a.metrics = metrics.New()
	a.worker = classifier.New(a.cfg, a.redis, a.store, a.store, a.redis, a.metrics, a.logger)

	a.super = supervisor.New(a.logger)
	if err := a.super.AddWorker(supervisor.WorkerConfig{Name: "classifier"}, a.worker.Run); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	return nil
}

func (a *app) start() error {
	a.logger.Info("classifier: starting",
		zap.String("mode", string(a.cfg.Mode)),
		zap.String("group", a.cfg.ConsumerGroup),
		zap.String("consumer", a.cfg.ConsumerName))

	a.metrics.Start(fmt.Sprintf("%d", a.cfg.MetricsPort), a.logger)

	if err := a.super.Start(a.ctx); err != nil {
		return fmt.Errorf("supervisor start: %w", err)
	}

	return nil
}

func (a *app) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-a.ctx.Done():
	}
	a.logger.Info("classifier: shutdown signal received")
}

func (a *app) shutdown() {
	a.cancel()
	if a.super != nil {
		a.super.Stop()
	}
	if a.metrics != nil {
		a.metrics.Stop()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		a.logger.Info("classifier: stopped")
		a.logger.Sync()
	}
}
