package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sithhades/regime-classifier/internal/model"
)

func TestMergeHistory_AppendsNewCandle(t *testing.T) {
	t0 := time.Date(2023, 10, 27, 11, 0, 0, 0, time.UTC)
	history := []model.Candle{{Timestamp: t0, Close: 1}}
	incoming := model.Candle{Timestamp: t0.Add(time.Hour), Close: 2}

	merged := MergeHistory(history, incoming)
	assert.Len(t, merged, 2)
	assert.Equal(t, incoming, merged[1])
}

func TestMergeHistory_DedupesMatchingTimestamp(t *testing.T) {
	t0 := time.Date(2023, 10, 27, 11, 0, 0, 0, time.UTC)
	history := []model.Candle{{Timestamp: t0, Close: 1}}
	incoming := model.Candle{Timestamp: t0, Close: 999}

	merged := MergeHistory(history, incoming)
	assert.Len(t, merged, 1)
	assert.Equal(t, 1.0, merged[0].Close)
}
