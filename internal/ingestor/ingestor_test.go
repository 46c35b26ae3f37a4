package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sithhades/regime-classifier/internal/exchange"
	"github.com/sithhades/regime-classifier/internal/model"
)

const closedFrame = `{"stream":"btcusdt@kline_1h","data":{"e":"kline","E":1698400800000,"s":"BTCUSDT","k":{"t":1698400800000,"T":1698404399999,"s":"BTCUSDT","i":"1h","o":"34000","c":"34050","h":"34100","l":"33900","v":"105.5","x":true}}}`
const openFrame = `{"stream":"btcusdt@kline_1h","data":{"e":"kline","E":1698400800000,"s":"BTCUSDT","k":{"t":1698400800000,"T":1698404399999,"s":"BTCUSDT","i":"1h","o":"34000","c":"34050","h":"34100","l":"33900","v":"105.5","x":false}}}`

type fakeStore struct {
	inserted []model.Candle
	err      error
}

func (f *fakeStore) InsertCandle(_ context.Context, c model.Candle) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, c)
	return nil
}

type fakeStream struct {
	published []map[string]interface{}
	err       error
}

func (f *fakeStream) XAddApproxTrim(_ context.Context, _ string, values map[string]interface{}, _ int64) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, values)
	return nil
}

func newTestIngestor(store CandleStore, stream StreamPublisher) *Ingestor {
	conn := exchange.New("wss://fstream.binance.com", []string{"btcusdt"}, "1h", zap.NewNop())
	return New(conn, store, stream, "BINANCE", "1h", "market_data_feed", 10000, nil, zap.NewNop())
}

func TestOnMessage_S1ClosedKlinePersistsPublishesAndHeartbeats(t *testing.T) {
	store := &fakeStore{}
	stream := &fakeStream{}
	ing := newTestIngestor(store, stream)

	ing.OnMessage(context.Background(), []byte(closedFrame))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "BTC-USD", store.inserted[0].Symbol)
	require.Len(t, stream.published, 1)
	assert.Equal(t, "BTC-USD", stream.published[0]["symbol"])
	assert.True(t, ing.Alive(time.Minute))
}

func TestOnMessage_S2OpenKlineDropped(t *testing.T) {
	store := &fakeStore{}
	stream := &fakeStream{}
	ing := newTestIngestor(store, stream)

	ing.OnMessage(context.Background(), []byte(openFrame))

	assert.Empty(t, store.inserted)
	assert.Empty(t, stream.published)
	assert.False(t, ing.Alive(time.Minute))
}

func TestOnMessage_DBFailureSkipsPublish(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	stream := &fakeStream{}
	ing := newTestIngestor(store, stream)

	ing.OnMessage(context.Background(), []byte(closedFrame))

	assert.Empty(t, store.inserted)
	assert.Empty(t, stream.published)
	assert.False(t, ing.Alive(time.Minute))
}

func TestOnMessage_PublishFailureStillHeartbeats(t *testing.T) {
	store := &fakeStore{}
	stream := &fakeStream{err: assert.AnError}
	ing := newTestIngestor(store, stream)

	ing.OnMessage(context.Background(), []byte(closedFrame))

	assert.Len(t, store.inserted, 1)
	assert.True(t, ing.Alive(time.Minute))
}

func TestAlive_FalseBeforeFirstHeartbeat(t *testing.T) {
	ing := newTestIngestor(&fakeStore{}, &fakeStream{})
	assert.False(t, ing.Alive(time.Minute))
}
