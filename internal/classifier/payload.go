package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sithhades/regime-classifier/internal/model"
)

// flatFields mirrors the stream entry's field-value map when the producer
// writes individual fields rather than a single payload blob.
type flatFields struct {
	EventType string `json:"event_type"`
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Timestamp string `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	Timeframe string `json:"timeframe"`
}

// ParsePayload accepts either a flat field map (the values of a
// redis.XReadGroup entry, already string-valued) or a single "payload" field
// carrying the same object JSON-encoded, per the two serializations the
// stream tolerates.
func ParsePayload(values map[string]interface{}) (model.Candle, error) {
	if raw, ok := values["payload"]; ok {
		s, ok := raw.(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("classifier: payload field is not a string")
		}
		var ff flatFields
		if err := json.Unmarshal([]byte(s), &ff); err != nil {
			return model.Candle{}, fmt.Errorf("classifier: unmarshal payload: %w", err)
		}
		return ff.toCandle()
	}

	ff := flatFields{
		EventType: stringField(values, "event_type"),
		Symbol:    stringField(values, "symbol"),
		Exchange:  stringField(values, "exchange"),
		Timestamp: stringField(values, "timestamp"),
		Open:      stringField(values, "open"),
		High:      stringField(values, "high"),
		Low:       stringField(values, "low"),
		Close:     stringField(values, "close"),
		Volume:    stringField(values, "volume"),
		Timeframe: stringField(values, "timeframe"),
	}
	return ff.toCandle()
}

func stringField(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (ff flatFields) toCandle() (model.Candle, error) {
	if ff.Symbol == "" {
		return model.Candle{}, fmt.Errorf("classifier: missing symbol in payload")
	}

	ts, err := time.Parse(time.RFC3339, ff.Timestamp)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse timestamp: %w", err)
	}

	open, err := strconv.ParseFloat(ff.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse open: %w", err)
	}
	high, err := strconv.ParseFloat(ff.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse high: %w", err)
	}
	low, err := strconv.ParseFloat(ff.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse low: %w", err)
	}
	closeVal, err := strconv.ParseFloat(ff.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(ff.Volume, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("classifier: parse volume: %w", err)
	}

	return model.Candle{
		Exchange:  ff.Exchange,
		Symbol:    ff.Symbol,
		Timeframe: ff.Timeframe,
		Timestamp: ts.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeVal,
		Volume:    volume,
	}, nil
}
