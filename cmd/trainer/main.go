// Command trainer fits a fresh k-means regime model on a schedule (or once,
// with --once) and atomically promotes it in the model registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/config"
	"github.com/sithhades/regime-classifier/internal/logging"
	"github.com/sithhades/regime-classifier/internal/metrics"
	"github.com/sithhades/regime-classifier/internal/store/postgres"
	"github.com/sithhades/regime-classifier/internal/trainer"
)

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *postgres.Store
	metrics *metrics.Metrics
	tr      *trainer.Trainer

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var once bool

	root := &cobra.Command{
		Use:   "trainer",
		Short: "Regime model trainer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(once)
		},
	}
	root.Flags().BoolVar(&once, "once", false, "run a single training pass and exit instead of the weekly schedule")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(once bool) error {
	a := &app{}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "trainer: initialize failed: %v\n", err)
		return err
	}
	defer a.shutdown()

	if once {
		return a.runOnce()
	}
	return a.runScheduled()
}

func (a *app) initialize() error {
	var err error
	a.logger, err = logging.New("trainer")
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

	a.metrics = metrics.New()
	a.tr = trainer.New(a.store, trainer.Config{
		LookbackDays: a.cfg.LookbackDays,
		K:            a.cfg.K,
		Seed:         a.cfg.Seed,
	}, a.logger)

	return nil
}

func (a *app) runOnce() error {
	a.metrics.Start(fmt.Sprintf("%d", a.cfg.MetricsPort), a.logger)
	return a.runPass()
}

// runScheduled runs an immediate pass and then waits for each subsequent
// weekly Sunday-00:00-UTC boundary until a shutdown signal arrives.
func (a *app) runScheduled() error {
	a.metrics.Start(fmt.Sprintf("%d", a.cfg.MetricsPort), a.logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		if err := a.runPass(); err != nil {
			a.logger.Error("trainer: training run failed", zap.Error(err))
		}

		wait := nextSundayMidnightUTC(time.Now().UTC())
		select {
		case <-sigCh:
			a.logger.Info("trainer: shutdown signal received")
			return nil
		case <-a.ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (a *app) runPass() error {
	start := time.Now()
	err := a.tr.Run(a.ctx)
	a.metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	a.metrics.TrainingRuns.WithLabelValues(outcome).Inc()
	return err
}

// nextSundayMidnightUTC returns the duration from now until the next
// Sunday 00:00 UTC boundary strictly after now.
func nextSundayMidnightUTC(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysUntilSunday := (7 - int(midnight.Weekday())) % 7
	next := midnight.AddDate(0, 0, daysUntilSunday)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next.Sub(now)
}

func (a *app) shutdown() {
	a.cancel()
	if a.metrics != nil {
		a.metrics.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		a.logger.Info("trainer: stopped")
		a.logger.Sync()
	}
}
