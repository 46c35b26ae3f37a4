// Package resultstore implements the write/read side of the regime:{symbol}:{timeframe}
// KV contract that couples the classifier to the (externally owned) HTTP gateway.
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sithhades/regime-classifier/internal/model"
)

// DefaultTTL is the TTL every regime result is written with.
const DefaultTTL = time.Hour

// Writer is the subset of redisx.Client the classifier needs to publish a result.
type Writer interface {
	SetJSONWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds the canonical regime:{symbol}:{timeframe} key.
func Key(symbol, timeframe string) string {
	return fmt.Sprintf("regime:%s:%s", symbol, timeframe)
}

// Put serializes and writes a RegimeResult, replacing any prior value.
func Put(ctx context.Context, w Writer, timeframe string, result model.RegimeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("resultstore: marshal: %w", err)
	}
	return w.SetJSONWithTTL(ctx, Key(result.Symbol, timeframe), data, DefaultTTL)
}

// Reader is the subset of redisx.Client the gateway read-contract needs.
type Reader interface {
	GetJSON(ctx context.Context, key string) ([]byte, error)
}

// ErrNotFound mirrors the gateway's 404 for "no regime available".
var ErrNotFound = fmt.Errorf("resultstore: not found")

// GatewayReader is a read-only test double documenting the contract spec.md
// section 4.5 describes the HTTP gateway as consuming: a missing key means
// "no regime available", surfaced to gateway clients as 404. It exists so
// tests can read back what Put wrote through the same key contract, without
// the actual gateway process.
type GatewayReader struct {
	reader Reader
}

// NewGatewayReader wraps a Reader (typically *redisx.Client) for test use.
func NewGatewayReader(r Reader) *GatewayReader {
	return &GatewayReader{reader: r}
}

// Get returns the decoded RegimeResult for (symbol, timeframe), or
// ErrNotFound if no key is set.
func (g *GatewayReader) Get(ctx context.Context, symbol, timeframe string) (model.RegimeResult, error) {
	data, err := g.reader.GetJSON(ctx, Key(symbol, timeframe))
	if err != nil {
		return model.RegimeResult{}, fmt.Errorf("resultstore: get: %w", err)
	}
	if data == nil {
		return model.RegimeResult{}, ErrNotFound
	}

	var result model.RegimeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return model.RegimeResult{}, fmt.Errorf("resultstore: unmarshal: %w", err)
	}
	return result, nil
}
