package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/config"
	"github.com/sithhades/regime-classifier/internal/model"
	"github.com/sithhades/regime-classifier/internal/resultstore"
)

type fakeHistoryStore struct {
	candles []model.Candle
}

func (f *fakeHistoryStore) RecentCandles(_ context.Context, _, _ string, _ int) ([]model.Candle, error) {
	return f.candles, nil
}

type fakeModelStore struct {
	rec model.ModelRecord
	err error
}

func (f *fakeModelStore) ActiveModel(_ context.Context) (model.ModelRecord, error) {
	return f.rec, f.err
}

type fakeWriter struct {
	lastKey   string
	lastValue []byte
}

func (f *fakeWriter) SetJSONWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.lastKey = key
	f.lastValue = value
	return nil
}

var errNoModel = errors.New("no active model")

func hourlyCandles(n int, startClose float64) []model.Candle {
	base := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	close := startClose
	for i := 0; i < n; i++ {
		close += 1
		candles[i] = model.Candle{
			Symbol: "BTC-USD", Exchange: "BINANCE", Timeframe: "1h",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
		}
	}
	return candles
}

func newTestWorker(mode config.Mode, history []model.Candle, models ModelStore, writer resultstore.Writer) *Worker {
	cfg := &config.Config{
		RedisStreamKey:      "market_data_feed",
		ConsumerGroup:       "quant_group",
		ConsumerName:        "quant_processor_1",
		KlineInterval:       "1h",
		Mode:                mode,
		TrendThreshold:      0.0,
		VolatilityThreshold: 0.02,
	}
	return New(cfg, nil, &fakeHistoryStore{candles: history}, models, writer, nil, zap.NewNop())
}

func TestClassify_RuleBasedWritesResult(t *testing.T) {
	history := hourlyCandles(60, 100)
	incoming := model.Candle{
		Symbol: "BTC-USD", Exchange: "BINANCE", Timeframe: "1h",
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
		Open: 200, High: 201, Low: 199, Close: 200, Volume: 10,
	}

	w := newTestWorker(config.ModeRuleBased, history, nil, &fakeWriter{})
	writer := w.writer.(*fakeWriter)

	err := w.Classify(context.Background(), incoming)
	require.NoError(t, err)
	assert.Equal(t, "regime:BTC-USD:1h", writer.lastKey)
}

func TestClassify_MLModeUsesActiveModel(t *testing.T) {
	history := hourlyCandles(60, 100)
	incoming := model.Candle{
		Symbol: "BTC-USD", Exchange: "BINANCE", Timeframe: "1h",
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
		Open: 200, High: 201, Low: 199, Close: 200, Volume: 10,
	}

	models := &fakeModelStore{rec: model.ModelRecord{
		Parameters: model.ModelParameters{
			FeatureCols: []string{"rsi"},
			ScalerMean:  []float64{0},
			ScalerScale: []float64{1},
			Centroids:   [][]float64{{0}, {100}},
			Labels:      map[int]string{0: "CALM", 1: "PANIC"},
		},
	}}

	w := newTestWorker(config.ModeMLCluster, history, models, &fakeWriter{})
	writer := w.writer.(*fakeWriter)

	err := w.Classify(context.Background(), incoming)
	require.NoError(t, err)
	assert.NotEmpty(t, writer.lastValue)
}

func TestClassify_MLFallsBackToRuleOnMissingModel(t *testing.T) {
	history := hourlyCandles(60, 100)
	incoming := model.Candle{
		Symbol: "BTC-USD", Exchange: "BINANCE", Timeframe: "1h",
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
		Open: 200, High: 201, Low: 199, Close: 200, Volume: 10,
	}

	models := &fakeModelStore{err: errNoModel}
	w := newTestWorker(config.ModeMLCluster, history, models, &fakeWriter{})
	writer := w.writer.(*fakeWriter)

	err := w.Classify(context.Background(), incoming)
	require.NoError(t, err)
	assert.NotEmpty(t, writer.lastValue)
	assert.True(t, w.loggedFallback)
}

func TestClassify_InsufficientHistorySkipsWrite(t *testing.T) {
	history := hourlyCandles(3, 100)
	incoming := model.Candle{
		Symbol: "BTC-USD", Exchange: "BINANCE", Timeframe: "1h",
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
		Open: 200, High: 201, Low: 199, Close: 200, Volume: 10,
	}

	w := newTestWorker(config.ModeRuleBased, history, nil, &fakeWriter{})
	writer := w.writer.(*fakeWriter)

	err := w.Classify(context.Background(), incoming)
	require.NoError(t, err)
	assert.Empty(t, writer.lastKey)
}
