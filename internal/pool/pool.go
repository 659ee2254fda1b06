// Package pool builds the list of symbols scanned each hour: a base pool
// rebuilt once per UTC day from 24h tickers, merged with the hottest overlay
// symbols.
package pool

import (
	"math"
	"sort"
	"strings"

	"binance-ats/internal/binance"
)

// QuoteAsset is the only quote currency scanned.
const QuoteAsset = "USDT"

// Candidate is a base pool member with the ticker stats it was ranked by.
type Candidate struct {
	Symbol      string  `json:"symbol"`
	QuoteVolume float64 `json:"quote_volume"`
	ChangePct   float64 `json:"change_pct"`
}

// BuildBase filters tickers to USDT symbols with quote volume of at least
// minQuoteVol and an absolute 24h change of at least minAbsChange, ranks them
// by |change| then quote volume, both descending, and keeps the first size.
func BuildBase(tickers []binance.Ticker24h, size int, minQuoteVol, minAbsChange float64) []Candidate {
	out := make([]Candidate, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, QuoteAsset) {
			continue
		}
		if math.IsNaN(t.QuoteVolume) || t.QuoteVolume < minQuoteVol {
			continue
		}
		chg := math.Abs(t.PriceChangePercent)
		if math.IsNaN(chg) || chg < minAbsChange {
			continue
		}
		out = append(out, Candidate{Symbol: t.Symbol, QuoteVolume: t.QuoteVolume, ChangePct: t.PriceChangePercent})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := math.Abs(out[i].ChangePct), math.Abs(out[j].ChangePct)
		if ci != cj {
			return ci > cj
		}
		return out[i].QuoteVolume > out[j].QuoteVolume
	})

	if size >= 0 && len(out) > size {
		out = out[:size]
	}
	return out
}

// Symbols extracts the symbol names in order.
func Symbols(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Symbol
	}
	return out
}

// Merge puts overlay symbols first, then the base pool, dropping duplicates
// and truncating to max. A max of zero or less keeps everything.
func Merge(overlayTop, base []string, max int) []string {
	seen := make(map[string]bool, len(overlayTop)+len(base))
	out := make([]string, 0, len(overlayTop)+len(base))
	for _, list := range [][]string{overlayTop, base} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
