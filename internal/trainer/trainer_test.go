package trainer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/model"
)

type fakeStore struct {
	candles      []model.Candle
	promoted     *model.ModelParameters
	promoteErr   error
	candlesSince time.Time
}

func (f *fakeStore) CandlesSince(_ context.Context, since time.Time) ([]model.Candle, error) {
	f.candlesSince = since
	return f.candles, nil
}

func (f *fakeStore) PromoteModel(_ context.Context, algorithm string, params model.ModelParameters) error {
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promoted = &params
	return nil
}

func syntheticCandles(symbol string, n int, seedClose float64, volatile bool) []model.Candle {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	close := seedClose
	for i := 0; i < n; i++ {
		step := 1.0
		if volatile {
			if i%2 == 0 {
				step = 5
			} else {
				step = -4
			}
		}
		close += step
		candles[i] = model.Candle{
			Symbol: symbol, Exchange: "BINANCE", Timeframe: "1h",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
		}
	}
	return candles
}

func TestRun_PromotesModelOnSufficientData(t *testing.T) {
	candles := append(syntheticCandles("BTC-USD", 80, 100, false), syntheticCandles("ETH-USD", 80, 50, true)...)
	store := &fakeStore{candles: candles}

	tr := New(store, Config{LookbackDays: 730, K: 2, Seed: 42}, zap.NewNop())
	err := tr.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, store.promoted)
	assert.Equal(t, FeatureCols, store.promoted.FeatureCols)
	assert.Len(t, store.promoted.Centroids, 2)
	assert.Len(t, store.promoted.Labels, 2)
}

func TestRun_NoCandlesAbortsWithoutError(t *testing.T) {
	store := &fakeStore{}
	tr := New(store, Config{LookbackDays: 730, K: 4, Seed: 42}, zap.NewNop())

	err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store.promoted)
}

func TestRun_AllWarmupRowsAbortsWithoutError(t *testing.T) {
	// Fewer candles than the SMA warm-up window means every feature row is NaN.
	store := &fakeStore{candles: syntheticCandles("BTC-USD", 5, 100, false)}
	tr := New(store, Config{LookbackDays: 730, K: 2, Seed: 42}, zap.NewNop())

	err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store.promoted)
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	candles := append(syntheticCandles("BTC-USD", 80, 100, false), syntheticCandles("ETH-USD", 80, 50, true)...)

	storeA := &fakeStore{candles: candles}
	trA := New(storeA, Config{LookbackDays: 730, K: 3, Seed: 7}, zap.NewNop())
	require.NoError(t, trA.Run(context.Background()))

	storeB := &fakeStore{candles: candles}
	trB := New(storeB, Config{LookbackDays: 730, K: 3, Seed: 7}, zap.NewNop())
	require.NoError(t, trB.Run(context.Background()))

	assert.Equal(t, storeA.promoted.Centroids, storeB.promoted.Centroids)
	assert.Equal(t, storeA.promoted.Labels, storeB.promoted.Labels)
}
