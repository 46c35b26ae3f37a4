// Package classifier owns the consumer-group subscription on the candle
// stream and turns each new candle into a regime result, via either the
// rule engine or the nearest-centroid ML path.
package classifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/config"
	"github.com/sithhades/regime-classifier/internal/feature"
	"github.com/sithhades/regime-classifier/internal/metrics"
	"github.com/sithhades/regime-classifier/internal/model"
	"github.com/sithhades/regime-classifier/internal/resultstore"
	"github.com/sithhades/regime-classifier/pkg/redisx"
)

// HistoryStore is the narrow slice of postgres.Store the worker needs for
// its history merge.
type HistoryStore interface {
	RecentCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
}

// ModelStore is the narrow slice of postgres.Store the worker needs to load
// the active ML model.
type ModelStore interface {
	ActiveModel(ctx context.Context) (model.ModelRecord, error)
}

// StreamConsumer is the consumer-group vocabulary the worker drives; *redisx.Client
// satisfies it.
type StreamConsumer interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redisx.StreamEntry, error)
	Ack(ctx context.Context, stream, group, id string) error
}

// Worker consumes market_data_feed via a named consumer group and writes
// exactly one regime result per candle.
type Worker struct {
	stream   StreamConsumer
	history  HistoryStore
	models   ModelStore
	writer   resultstore.Writer
	metrics  *metrics.Metrics
	logger   *zap.Logger

	streamKey string
	group     string
	consumer  string
	timeframe string

	mode           config.Mode
	trendThreshold float64
	volThreshold   float64

	loggedFallback bool
}

// New builds a Worker from the process configuration and its collaborators.
// m may be nil, in which case metric recording is skipped.
func New(cfg *config.Config, stream StreamConsumer, history HistoryStore, models ModelStore, writer resultstore.Writer, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		stream:         stream,
		history:        history,
		models:         models,
		writer:         writer,
		metrics:        m,
		logger:         logger,
		streamKey:      cfg.RedisStreamKey,
		group:          cfg.ConsumerGroup,
		consumer:       cfg.ConsumerName,
		timeframe:      cfg.KlineInterval,
		mode:           cfg.Mode,
		trendThreshold: cfg.TrendThreshold,
		volThreshold:   cfg.VolatilityThreshold,
	}
}

// Run ensures the consumer group exists and loops XREADGROUP/process/XACK
// until ctx is cancelled. A block-timeout read (nil, nil) is not an error;
// it simply gives the loop a chance to observe cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureGroup(ctx, w.streamKey, w.group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := w.stream.ReadGroup(ctx, w.streamKey, w.group, w.consumer, 1, time.Second)
		if err != nil {
			w.logger.Error("classifier: read group failed", zap.Error(err))
			continue
		}

		for _, e := range entries {
			if procErr := w.processEntry(ctx, e); procErr != nil {
				w.logger.Error("classifier: processing failed, leaving pending", zap.String("id", e.ID), zap.Error(procErr))
				continue
			}
			if err := w.stream.Ack(ctx, w.streamKey, w.group, e.ID); err != nil {
				w.logger.Error("classifier: ack failed", zap.String("id", e.ID), zap.Error(err))
			}
		}
	}
}

func (w *Worker) processEntry(ctx context.Context, e redisx.StreamEntry) error {
	candle, err := ParsePayload(e.Values)
	if err != nil {
		return err
	}
	return w.Classify(ctx, candle)
}

// Classify runs the history merge, feature computation, and mode-selected
// classification for one candle, writing the result (unless the window is
// still warming up). It always returns nil on a successfully handled
// candle, including the insufficient-data and ML-fallback cases, so the
// caller acks.
func (w *Worker) Classify(ctx context.Context, candle model.Candle) error {
	start := time.Now()

	history, err := w.history.RecentCandles(ctx, candle.Symbol, candle.Timeframe, HistoryWindow)
	if err != nil {
		return err
	}
	window := MergeHistory(history, candle)

	row, ok := feature.ComputeLatest(window)
	if !ok || feature.HasNaN(row) {
		w.logger.Warn("classifier: insufficient history, skipping result", zap.String("symbol", candle.Symbol))
		if w.metrics != nil {
			w.metrics.InsufficientData.WithLabelValues(candle.Symbol).Inc()
		}
		return nil
	}

	var result model.RegimeResult
	switch w.mode {
	case config.ModeMLCluster:
		result, err = w.classifyML(ctx, row)
		if err != nil {
			if !w.loggedFallback {
				w.logger.Warn("classifier: ML model unavailable, falling back to rule path", zap.Error(err))
				w.loggedFallback = true
			}
			if w.metrics != nil {
				w.metrics.MLFallbacks.WithLabelValues("model_unavailable").Inc()
			}
			result = RuleClassify(row, w.trendThreshold, w.volThreshold)
		}
	default:
		result = RuleClassify(row, w.trendThreshold, w.volThreshold)
	}

	result.Symbol = candle.Symbol
	result.UpdatedAt = time.Now().UTC()

	if err := resultstore.Put(ctx, w.writer, candle.Timeframe, result); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.CandlesClassified.WithLabelValues(candle.Symbol, result.RegimeLabel).Inc()
		w.metrics.ClassifyLatency.WithLabelValues(string(w.mode)).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (w *Worker) classifyML(ctx context.Context, row model.FeatureRow) (model.RegimeResult, error) {
	rec, err := w.models.ActiveModel(ctx)
	if err != nil {
		return model.RegimeResult{}, err
	}
	return MLClassify(row, rec.Parameters)
}
