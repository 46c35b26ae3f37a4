// Package ingestor wires the exchange WebSocket connector to Postgres
// persistence and the downstream candle stream, and tracks the heartbeat
// the liveness endpoint reports on.
package ingestor

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/exchange"
	"github.com/sithhades/regime-classifier/internal/metrics"
	"github.com/sithhades/regime-classifier/internal/model"
)

// CandleStore is the narrow slice of postgres.Store the ingestor needs.
type CandleStore interface {
	InsertCandle(ctx context.Context, c model.Candle) error
}

// StreamPublisher is the narrow slice of redisx.Client the ingestor needs.
type StreamPublisher interface {
	XAddApproxTrim(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) error
}

// Ingestor owns one exchange connector and republishes its closed candles.
type Ingestor struct {
	connector *exchange.Connector
	store     CandleStore
	stream    StreamPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	exchangeName  string
	timeframe     string
	streamKey     string
	streamMaxLen  int64

	heartbeat atomic.Int64 // unix seconds of the last successfully processed candle
}

// New builds an Ingestor. connector is expected to already be configured
// with the exchange base URL, symbols, and interval. m may be nil, in which
// case metric recording is skipped.
func New(connector *exchange.Connector, store CandleStore, stream StreamPublisher, exchangeName, timeframe, streamKey string, streamMaxLen int64, m *metrics.Metrics, logger *zap.Logger) *Ingestor {
	ing := &Ingestor{
		connector:    connector,
		store:        store,
		stream:       stream,
		metrics:      m,
		logger:       logger,
		exchangeName: exchangeName,
		timeframe:    timeframe,
		streamKey:    streamKey,
		streamMaxLen: streamMaxLen,
	}
	if m != nil {
		connector.OnReconnect = func() {
			m.WebSocketReconnects.WithLabelValues(exchangeName).Inc()
		}
	}
	return ing
}

// Run drives the connector until ctx is cancelled, handing every frame to
// OnMessage.
func (i *Ingestor) Run(ctx context.Context) error {
	return i.connector.Run(ctx, func(raw []byte) {
		i.OnMessage(ctx, raw)
	})
}

// Stop requests cooperative shutdown of the underlying connector.
func (i *Ingestor) Stop() {
	i.connector.Stop()
}

// OnMessage parses one WebSocket frame, drops it if it isn't a closed
// candle, persists it, republishes it, and updates the heartbeat. DB
// failures abort the message (no publish); publish failures are logged and
// the DB remains authoritative; parse failures are logged and dropped.
func (i *Ingestor) OnMessage(ctx context.Context, raw []byte) {
	candle, err := exchange.ParseClosedCandle(raw, i.exchangeName, i.timeframe)
	if err != nil {
		if err == exchange.ErrNotClosed {
			i.recordDrop("open_candle")
			return
		}
		i.logger.Warn("ingestor: dropping malformed frame", zap.Error(err))
		i.recordDrop("parse_error")
		return
	}

	if err := i.store.InsertCandle(ctx, candle); err != nil {
		i.logger.Error("ingestor: insert candle failed, skipping publish", zap.String("symbol", candle.Symbol), zap.Error(err))
		return
	}

	if err := i.publish(ctx, candle); err != nil {
		i.logger.Error("ingestor: stream publish failed", zap.String("symbol", candle.Symbol), zap.Error(err))
	}

	i.heartbeat.Store(time.Now().UTC().Unix())
	if i.metrics != nil {
		i.metrics.CandlesIngested.WithLabelValues(i.exchangeName, candle.Symbol).Inc()
		i.metrics.IngestHeartbeatAge.WithLabelValues(i.exchangeName).Set(0)
	}
}

func (i *Ingestor) recordDrop(reason string) {
	if i.metrics != nil {
		i.metrics.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (i *Ingestor) publish(ctx context.Context, c model.Candle) error {
	values := map[string]interface{}{
		"event_type": "kline",
		"symbol":     c.Symbol,
		"exchange":   c.Exchange,
		"timestamp":  c.Timestamp.Format(time.RFC3339),
		"open":       formatFloat(c.Open),
		"high":       formatFloat(c.High),
		"low":        formatFloat(c.Low),
		"close":      formatFloat(c.Close),
		"volume":     formatFloat(c.Volume),
		"timeframe":  c.Timeframe,
	}
	return i.stream.XAddApproxTrim(ctx, i.streamKey, values, i.streamMaxLen)
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// Heartbeat returns the unix-seconds timestamp of the last successfully
// processed closed candle, or 0 if none has been processed yet.
func (i *Ingestor) Heartbeat() int64 {
	return i.heartbeat.Load()
}

// Alive reports whether the heartbeat is within threshold of now, the
// liveness endpoint's decision rule.
func (i *Ingestor) Alive(threshold time.Duration) bool {
	hb := i.heartbeat.Load()
	if hb == 0 {
		return false
	}
	return time.Since(time.Unix(hb, 0)) < threshold
}
