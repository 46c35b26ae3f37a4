package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sithhades/regime-classifier/internal/model"
	"github.com/sithhades/regime-classifier/internal/symbolmap"
)

// klineFrame matches the exchange's combined-stream envelope:
// {"stream": "...", "data": {"e":"kline", "E":..., "s":"BTCUSDT", "k": {...}}}
// Some feeds omit the "stream"/"data" wrapper and send the kline payload
// inline; both shapes are accepted.
type klineFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`

	// Inline fallback fields, present when Data is absent.
	EventType string     `json:"e"`
	Kline     *klinePart `json:"k"`
}

type klinePart struct {
	StartTime int64  `json:"t"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

type innerPayload struct {
	Kline *klinePart `json:"k"`
}

// ErrNotClosed signals a well-formed frame whose candle has not closed yet;
// callers should drop it without logging an error.
var ErrNotClosed = fmt.Errorf("exchange: candle not closed")

// ParseClosedCandle extracts a canonical, closed Candle from a raw WS frame.
// It returns ErrNotClosed for a well-formed frame whose kline.x is false,
// and a parse error for anything that doesn't match the expected shape.
func ParseClosedCandle(raw []byte, exchange, timeframe string) (model.Candle, error) {
	var frame klineFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return model.Candle{}, fmt.Errorf("exchange: unmarshal frame: %w", err)
	}

	k := frame.Kline
	if k == nil && len(frame.Data) > 0 {
		var inner innerPayload
		if err := json.Unmarshal(frame.Data, &inner); err != nil {
			return model.Candle{}, fmt.Errorf("exchange: unmarshal data: %w", err)
		}
		k = inner.Kline
	}

	if k == nil {
		return model.Candle{}, fmt.Errorf("exchange: missing kline field")
	}
	if !k.Closed {
		return model.Candle{}, ErrNotClosed
	}

	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse low: %w", err)
	}
	closeVal, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse volume: %w", err)
	}

	return model.Candle{
		Exchange:  exchange,
		Symbol:    symbolmap.Canonical(k.Symbol),
		Timeframe: timeframe,
		Timestamp: time.UnixMilli(k.StartTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeVal,
		Volume:    volume,
	}, nil
}
