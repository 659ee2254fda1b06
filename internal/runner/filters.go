package runner

import (
	"fmt"
	"strings"

	"binance-ats/internal/binance"

	"github.com/shopspring/decimal"
)

// Filter type names from exchangeInfo.
const (
	filterPrice       = "PRICE_FILTER"
	filterLotSize     = "LOT_SIZE"
	filterMinNotional = "MIN_NOTIONAL"
)

// Filters are the symbol trading rules used to round a leg.
type Filters struct {
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// FiltersFor extracts the rounding rules of symbol from exchangeInfo.
func FiltersFor(info *binance.ExchangeInfo, symbol string) (Filters, error) {
	si, ok := info.Symbol(symbol)
	if !ok {
		return Filters{}, fmt.Errorf("symbol %s not listed", symbol)
	}

	var f Filters
	var err error
	pf, ok := si.Filter(filterPrice)
	if !ok {
		return Filters{}, fmt.Errorf("%s has no %s", symbol, filterPrice)
	}
	if f.TickSize, err = parsePositive(pf.TickSize); err != nil {
		return Filters{}, fmt.Errorf("%s tick size: %w", symbol, err)
	}

	lf, ok := si.Filter(filterLotSize)
	if !ok {
		return Filters{}, fmt.Errorf("%s has no %s", symbol, filterLotSize)
	}
	if f.StepSize, err = parsePositive(lf.StepSize); err != nil {
		return Filters{}, fmt.Errorf("%s step size: %w", symbol, err)
	}
	if lf.MinQty != "" {
		if f.MinQty, err = decimal.NewFromString(lf.MinQty); err != nil {
			return Filters{}, fmt.Errorf("%s min qty: %w", symbol, err)
		}
	}

	if nf, ok := si.Filter(filterMinNotional); ok && nf.MinNotional != "" {
		if f.MinNotional, err = decimal.NewFromString(nf.MinNotional); err != nil {
			return Filters{}, fmt.Errorf("%s min notional: %w", symbol, err)
		}
	}
	return f, nil
}

func parsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%q is not positive", s)
	}
	return d, nil
}

// FloorTo rounds v down to a multiple of step.
func FloorTo(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// Format renders v with as many decimals as step carries.
func Format(v, step decimal.Decimal) string {
	places := int32(0)
	if i := strings.IndexByte(step.String(), '.'); i >= 0 {
		places = int32(len(step.String()) - i - 1)
	}
	return v.StringFixed(places)
}
