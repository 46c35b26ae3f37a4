// Command ingestor runs the exchange WebSocket ingestor: it subscribes to
// the configured kline stream, persists closed candles, and republishes
// them onto the downstream stream for the classifier.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/config"
	"github.com/sithhades/regime-classifier/internal/exchange"
	"github.com/sithhades/regime-classifier/internal/ingestor"
	"github.com/sithhades/regime-classifier/internal/logging"
	"github.com/sithhades/regime-classifier/internal/metrics"
	"github.com/sithhades/regime-classifier/internal/store/postgres"
	"github.com/sithhades/regime-classifier/internal/supervisor"
	"github.com/sithhades/regime-classifier/pkg/redisx"
)

// app bundles the ingestor's wired components, built once in initialize and
// torn down once in shutdown.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *postgres.Store
	redis   *redisx.Client
	metrics *metrics.Metrics
	ing     *ingestor.Ingestor
	super   *supervisor.Supervisor

	healthServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	root := &cobra.Command{
		Use:   "ingestor",
		Short: "Exchange kline ingestor",
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
		fmt.Fprintf(os.Stderr, "ingestor: initialize failed: %v\n", err)
		return err
	}
	defer a.shutdown()

	if err := a.start(); err != nil {
		a.logger.Error("ingestor: start failed", zap.Error(err))
		return err
	}

	a.waitForShutdown()
	return nil
}

func (a *app) initialize() error {
	var err error
	a.logger, err = logging.New("ingestor")
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

	connector := exchange.New(a.cfg.BinanceWSBaseURL, a.cfg.WatchSymbols, a.cfg.KlineInterval, a.logger)
	a.ing = ingestor.New(connector, a.store, a.redis, "BINANCE", a.cfg.KlineInterval, a.cfg.RedisStreamKey, a.cfg.RedisStreamMaxLen, a.metrics, a.logger)

	a.super = supervisor.New(a.logger)
	if err := a.super.AddWorker(supervisor.WorkerConfig{Name: "ingestor"}, a.ing.Run); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	return nil
}

func (a *app) start() error {
	a.logger.Info("ingestor: starting",
		zap.Strings("symbols", a.cfg.WatchSymbols),
		zap.String("interval", a.cfg.KlineInterval))

	a.metrics.Start(fmt.Sprintf("%d", a.cfg.MetricsPort), a.logger)

	mux := http.NewServeMux()
	mux.Handle("/health", ingestor.HealthHandler(a.ing, a.cfg.HeartbeatDeadline()))
	a.healthServer = &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.HealthCheckPort), Handler: mux}
	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("ingestor: health server error", zap.Error(err))
		}
	}()

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
	a.logger.Info("ingestor: shutdown signal received")
}

func (a *app) shutdown() {
	a.cancel()
	if a.ing != nil {
		a.ing.Stop()
	}
	if a.super != nil {
		a.super.Stop()
	}
	if a.healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.healthServer.Shutdown(ctx)
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
		a.logger.Info("ingestor: stopped")
		a.logger.Sync()
	}
}
