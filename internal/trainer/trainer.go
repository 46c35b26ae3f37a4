// Package trainer fits a fresh k-means regime model over the historical
// candle table on a schedule and atomically promotes it in the registry.
package trainer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/feature"
	"github.com/sithhades/regime-classifier/internal/kmeans"
	"github.com/sithhades/regime-classifier/internal/model"
)

// FeatureCols is the trainer's canonical feature set, persisted in every
// model record so the classifier reads it back instead of hard-coding it.
var FeatureCols = []string{"log_return", "volatility", "rsi"}

// Store is the narrow slice of postgres.Store the trainer needs.
type Store interface {
	CandlesSince(ctx context.Context, since time.Time) ([]model.Candle, error)
	PromoteModel(ctx context.Context, algorithm string, params model.ModelParameters) error
}

// Config controls one training run.
type Config struct {
	LookbackDays int
	K            int
	Seed         int64
}

// Trainer owns a fit-and-promote pass.
type Trainer struct {
	store  Store
	logger *zap.Logger
	cfg    Config
}

// New builds a Trainer.
func New(store Store, cfg Config, logger *zap.Logger) *Trainer {
	return &Trainer{store: store, cfg: cfg, logger: logger}
}

// Run executes one training pass: fetch, feature, scale, fit, label, promote.
// Empty input or empty post-feature data aborts without error and without
// touching the registry, matching the no-op-on-insufficient-data contract.
func (t *Trainer) Run(ctx context.Context) error {
	since := time.Now().UTC().AddDate(0, 0, -t.cfg.LookbackDays)

	candles, err := t.store.CandlesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("trainer: fetch candles: %w", err)
	}
	if len(candles) == 0 {
		t.logger.Warn("trainer: no candles found in lookback window, aborting")
		return nil
	}

	bySymbol := groupBySymbol(candles)

	var pooled [][]float64
	for _, symbol := range sortedSymbols(bySymbol) {
		symCandles := bySymbol[symbol]
		rows := feature.DropNaN(feature.Compute(symCandles))
		for _, row := range rows {
			vec := make([]float64, len(FeatureCols))
			for i, col := range FeatureCols {
				v, _ := feature.Value(row, col)
				vec[i] = v
			}
			pooled = append(pooled, vec)
		}
		t.logger.Debug("trainer: computed features", zap.String("symbol", symbol), zap.Int("rows", len(rows)))
	}

	if len(pooled) == 0 {
		t.logger.Warn("trainer: no rows survived feature engineering, aborting")
		return nil
	}

	scaler := FitScaler(pooled)
	scaled := scaler.TransformAll(pooled)

	result := kmeans.Fit(scaled, kmeans.Config{K: t.cfg.K, Seed: t.cfg.Seed, NInit: 10})
	labels := AutoLabel(result.Centroids, scaler)

	params := model.ModelParameters{
		FeatureCols: FeatureCols,
		ScalerMean:  scaler.Mean,
		ScalerScale: scaler.Scale,
		Centroids:   result.Centroids,
		Labels:      labels,
	}

	if err := t.store.PromoteModel(ctx, "KMeans", params); err != nil {
		return fmt.Errorf("trainer: promote model: %w", err)
	}

	t.logger.Info("trainer: promoted new model", zap.Any("labels", labels), zap.Float64("inertia", result.Inertia))
	return nil
}

func groupBySymbol(candles []model.Candle) map[string][]model.Candle {
	groups := make(map[string][]model.Candle)
	for _, c := range candles {
		groups[c.Symbol] = append(groups[c.Symbol], c)
	}
	return groups
}

// sortedSymbols gives deterministic iteration order over the symbol groups,
// so pooled row order — and therefore the k-means fit — doesn't depend on Go's
// randomized map iteration.
func sortedSymbols(groups map[string][]model.Candle) []string {
	symbols := make([]string, 0, len(groups))
	for s := range groups {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
