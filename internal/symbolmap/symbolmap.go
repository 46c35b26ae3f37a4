// Package symbolmap normalizes exchange-native symbols to the pipeline's
// canonical form. A blind "USDT" -> "-USD" string replace mishandles
// names like BUSDUSDT, so the mapping is a suffix table instead.
package symbolmap

import "strings"

// suffixes is checked longest-first so "USDT" doesn't shadow a longer match.
var suffixes = []struct {
	exchange  string
	canonical string
}{
	{"USDT", "-USD"},
}

// Canonical maps an exchange symbol (e.g. "BTCUSDT") to its canonical form
// (e.g. "BTC-USD"). Symbols with an unrecognized suffix pass through unchanged,
// per spec: the source does not specify behavior for non-USDT suffixes.
func Canonical(exchangeSymbol string) string {
	upper := strings.ToUpper(exchangeSymbol)
	for _, s := range suffixes {
		if strings.HasSuffix(upper, s.exchange) {
			base := strings.TrimSuffix(upper, s.exchange)
			if base == "" {
				continue
			}
			return base + s.canonical
		}
	}
	return exchangeSymbol
}
