// Package metrics exposes the Prometheus counters/gauges/histograms shared
// by the ingestor, classifier, and trainer processes, and the /metrics HTTP
// server each one runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every counter/gauge/histogram the pipeline records.
type Metrics struct {
	// Ingestor
	CandlesIngested     *prometheus.CounterVec
	FramesDropped       *prometheus.CounterVec
	WebSocketReconnects *prometheus.CounterVec
	IngestHeartbeatAge  *prometheus.GaugeVec

	// Classifier
	CandlesClassified  *prometheus.CounterVec
	ClassifyLatency    *prometheus.HistogramVec
	MLFallbacks        *prometheus.CounterVec
	InsufficientData   *prometheus.CounterVec

	// Trainer
	TrainingRuns       *prometheus.CounterVec
	TrainingDuration   prometheus.Histogram
	ModelPromotions    *prometheus.CounterVec

	server *http.Server
}

// New builds and registers every metric against the default registry.
func New() *Metrics {
	m := &Metrics{
		CandlesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_candles_ingested_total",
				Help: "Total closed candles persisted by the ingestor.",
			},
			[]string{"exchange", "symbol"},
		),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_frames_dropped_total",
				Help: "Total WebSocket frames dropped (open candle or parse failure).",
			},
			[]string{"reason"},
		),
		WebSocketReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_websocket_reconnects_total",
				Help: "Total successful WebSocket reconnections.",
			},
			[]string{"exchange"},
		),
		IngestHeartbeatAge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regime_ingest_heartbeat_age_seconds",
				Help: "Seconds since the last successfully processed closed candle.",
			},
			[]string{"exchange"},
		),

		CandlesClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_candles_classified_total",
				Help: "Total candles classified, by resulting regime label.",
			},
			[]string{"symbol", "regime_label"},
		),
		ClassifyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regime_classify_latency_seconds",
				Help:    "Latency of one candle's history-merge-through-write path.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		MLFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_ml_fallbacks_total",
				Help: "Total times the ML path fell back to the rule engine.",
			},
			[]string{"reason"},
		),
		InsufficientData: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_insufficient_data_total",
				Help: "Total candles skipped because the feature window was still warming up.",
			},
			[]string{"symbol"},
		),

		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_training_runs_total",
				Help: "Total trainer runs, by outcome.",
			},
			[]string{"outcome"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regime_training_duration_seconds",
				Help:    "Wall-clock duration of a training run.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ModelPromotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regime_model_promotions_total",
				Help: "Total model_registry promotions, by outcome.",
			},
			[]string{"outcome"},
		),
	}

	prometheus.MustRegister(
		m.CandlesIngested,
		m.FramesDropped,
		m.WebSocketReconnects,
		m.IngestHeartbeatAge,
		m.CandlesClassified,
		m.ClassifyLatency,
		m.MLFallbacks,
		m.InsufficientData,
		m.TrainingRuns,
		m.TrainingDuration,
		m.ModelPromotions,
	)

	return m
}

// Start runs the /metrics HTTP server on port in a background goroutine.
func (m *Metrics) Start(port string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{Addr: ":" + port, Handler: mux}

	logger.Info("metrics server starting", zap.String("port", port))
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
