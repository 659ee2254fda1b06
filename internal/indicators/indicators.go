// Package indicators computes technical series over candle columns. Every
// function returns a slice aligned to its input with NaN where history is
// insufficient.
package indicators

import (
	"math"
)

// ============================================================================
// ROLLING PRIMITIVES
// ============================================================================

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rolling applies f to every full window of n values. Windows containing a
// NaN produce NaN.
func rolling(x []float64, n int, f func(w []float64) float64) []float64 {
	out := nanSlice(len(x))
	if n <= 0 {
		return out
	}
	lastNaN := -1
	for i := range x {
		if math.IsNaN(x[i]) {
			lastNaN = i
		}
		if i < n-1 || lastNaN > i-n {
			continue
		}
		out[i] = f(x[i-n+1 : i+1])
	}
	return out
}

// RollingSum is the trailing sum over n values.
func RollingSum(x []float64, n int) []float64 {
	return rolling(x, n, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s
	})
}

// RollingMean is the trailing mean over n values.
func RollingMean(x []float64, n int) []float64 {
	return rolling(x, n, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s / float64(len(w))
	})
}

// RollingMeanAbs is the trailing mean of absolute values over n values.
func RollingMeanAbs(x []float64, n int) []float64 {
	return rolling(x, n, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += math.Abs(v)
		}
		return s / float64(len(w))
	})
}

func RollingMax(x []float64, n int) []float64 {
	return rolling(x, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

func RollingMin(x []float64, n int) []float64 {
	return rolling(x, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

// BackFill replaces each NaN with the next defined value. Trailing NaNs stay.
func BackFill(x []float64) []float64 {
	out := make([]float64, len(x))
	next := math.NaN()
	for i := len(x) - 1; i >= 0; i-- {
		if !math.IsNaN(x[i]) {
			next = x[i]
		}
		out[i] = next
	}
	return out
}

// Last returns the final element, or NaN for an empty slice.
func Last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// DropNaN returns the defined values of x in order.
func DropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// EMA is the exponential moving average with smoothing 2/(n+1). The recursion
// is seeded by the first sample and the first defined output is at index n-1.
func EMA(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || len(values) == 0 {
		return out
	}

	alpha := 2.0 / float64(n+1)
	ema := values[0]
	for i, v := range values {
		if i > 0 {
			ema = alpha*v + (1-alpha)*ema
		}
		if i >= n-1 {
			out[i] = ema
		}
	}
	return out
}

// ============================================================================
// VOLATILITY
// ============================================================================

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). The first
// bar has no previous close and is NaN.
func TrueRange(high, low, close []float64) []float64 {
	out := nanSlice(len(close))
	for i := 1; i < len(close); i++ {
		prevClose := close[i-1]
		out[i] = math.Max(
			high[i]-low[i],
			math.Max(
				math.Abs(high[i]-prevClose),
				math.Abs(low[i]-prevClose),
			),
		)
	}
	return out
}

// ATR is the rolling mean of true range over n bars.
func ATR(high, low, close []float64, n int) []float64 {
	return RollingMean(TrueRange(high, low, close), n)
}

// Chop is the Choppiness Index:
// 100 * log10(sum(TR, n) / (maxHigh(n) - minLow(n))) / log10(n), clamped to [0, 100].
// A flat range or short history yields NaN.
func Chop(high, low, close []float64, n int) []float64 {
	out := nanSlice(len(close))
	if n <= 1 {
		return out
	}

	sumTR := RollingSum(TrueRange(high, low, close), n)
	hh := RollingMax(high, n)
	ll := RollingMin(low, n)
	logN := math.Log10(float64(n))

	for i := range close {
		rng := hh[i] - ll[i]
		if math.IsNaN(sumTR[i]) || math.IsNaN(rng) || rng <= 0 || sumTR[i] <= 0 {
			continue
		}
		v := 100 * math.Log10(sumTR[i]/rng) / logN
		out[i] = math.Max(0, math.Min(100, v))
	}
	return out
}

// ============================================================================
// STRUCTURE
// ============================================================================

// Zigzag marks direction flips: +1 when close rises more than atrMult*ATR(14)
// above the last pivot while not already up, -1 for the mirror case, 0
// elsewhere. ATR warmup is back-filled.
func Zigzag(high, low, close []float64, atrMult float64) []int {
	piv := make([]int, len(close))
	if len(close) == 0 {
		return piv
	}

	atr := BackFill(ATR(high, low, close, 14))
	lastPivot := close[0]
	lastDir := 0
	for i, c := range close {
		tr := atr[i]
		if math.IsNaN(tr) {
			continue
		}
		if lastDir <= 0 && c > lastPivot+atrMult*tr {
			lastDir = 1
			piv[i] = 1
			lastPivot = c
		} else if lastDir >= 0 && c < lastPivot-atrMult*tr {
			lastDir = -1
			piv[i] = -1
			lastPivot = c
		}
	}
	return piv
}

// PivotBias is (#up pivots - #down pivots) over the trailing window.
func PivotBias(piv []int, window int) int {
	start := len(piv) - window
	if start < 0 || window <= 0 {
		start = 0
	}
	bias := 0
	for _, p := range piv[start:] {
		bias += p
	}
	return bias
}

// ============================================================================
// TREND
// ============================================================================

// EMASlopeR2 fits a least squares line through the last win values of EMA(n)
// and returns the slope normalised by the window mean and the R² of the fit.
// It returns (0, 0) when fewer than win defined EMA values exist.
func EMASlopeR2(closes []float64, n, win int) (slope, r2 float64) {
	if win < 2 || len(closes) < win {
		return 0, 0
	}
	y := EMA(closes, n)[len(closes)-win:]
	for _, v := range y {
		if math.IsNaN(v) {
			return 0, 0
		}
	}

	w := float64(win)
	xMean := (w - 1) / 2
	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= w

	var sxy, sxx float64
	for i, v := range y {
		dx := float64(i) - xMean
		sxy += dx * (v - yMean)
		sxx += dx * dx
	}
	m := sxy / sxx
	b := yMean - m*xMean

	var ssRes, ssTot float64
	for i, v := range y {
		fit := m*float64(i) + b
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - yMean) * (v - yMean)
	}
	ssTot += 1e-12

	return m / (yMean + 1e-9), 1 - ssRes/ssTot
}

// ============================================================================
// VOLUME
// ============================================================================

// VBoost is volume over its trailing n-bar mean.
func VBoost(volume []float64, n int) []float64 {
	ma := RollingMean(volume, n)
	out := make([]float64, len(volume))
	for i := range volume {
		out[i] = volume[i] / (ma[i] + 1e-9)
	}
	return out
}

// CVDProxy is the trailing n-bar sum of sign(return) * volume. The first bar
// has a zero return.
func CVDProxy(closes, volume []float64, n int) []float64 {
	signed := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		ret := closes[i]/closes[i-1] - 1
		switch {
		case ret > 0:
			signed[i] = volume[i]
		case ret < 0:
			signed[i] = -volume[i]
		}
	}
	return RollingSum(signed, n)
}

// TIB is the trailing n-bar mean of |close-open| / ATR(14).
func TIB(open, high, low, close []float64, n int) []float64 {
	atr := ATR(high, low, close, 14)
	ratio := make([]float64, len(close))
	for i := range close {
		ratio[i] = math.Abs(close[i]-open[i]) / (atr[i] + 1e-12)
	}
	return RollingMean(ratio, n)
}

// ============================================================================
// STATISTICS
// ============================================================================

// Returns is the simple percentage change between consecutive closes; the
// result has len(closes)-1 elements.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// MeanStd returns the mean and the sample standard deviation. The deviation
// is NaN for fewer than two values.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	if len(x) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)-1))
}

// PercentRank is 100 * count(pop <= x) / len(pop); an empty population ranks 0.
func PercentRank(pop []float64, x float64) float64 {
	if len(pop) == 0 {
		return 0
	}
	count := 0
	for _, v := range pop {
		if v <= x {
			count++
		}
	}
	return 100 * float64(count) / float64(len(pop))
}
