package classifier

import "github.com/sithhades/regime-classifier/internal/model"

// HistoryWindow is the default number of trailing candles the worker pulls
// before classifying, per the history-merge contract.
const HistoryWindow = 100

// MergeHistory appends incoming to history unless history's last row already
// shares incoming's timestamp, in which case the DB row is authoritative and
// incoming is dropped. history is assumed sorted oldest-first.
func MergeHistory(history []model.Candle, incoming model.Candle) []model.Candle {
	if len(history) > 0 && history[len(history)-1].Timestamp.Equal(incoming.Timestamp) {
		return history
	}
	return append(history, incoming)
}
