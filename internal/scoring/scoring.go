// Package scoring rates a candle series on trend, structure and volume and
// decides the A+ pre-filter.
package scoring

import (
	"math"

	"binance-ats/config"
	"binance-ats/internal/indicators"
	"binance-ats/internal/series"
)

// Block ceilings and weights of the total score.
const (
	trendSlopePoints = 60.0
	trendR2Max       = 40.0

	structureBase      = 30.0
	structureChopMax   = 15.0
	structurePivotMax  = 15.0
	structurePivotNorm = 10.0

	volumeBoostPoints = 12.0
	volumeCVDPoints   = 9.0
	volumeTIBPoints   = 9.0

	weightTrend     = 0.4
	weightStructure = 0.3
	weightVolume    = 0.3
)

// Trailing windows of the volume block.
const (
	vboostWindow = 20
	volumeMA     = 20
	cvdWindow    = 50
	tibWindow    = 20
)

// Detail carries the diagnostics behind the block scores. Undefined values
// are reported as 0.
type Detail struct {
	EMASlope  float64 `json:"ema30_slope"`
	R2        float64 `json:"r2"`
	Chop      float64 `json:"chop"`
	PivotBias int     `json:"piv_bias"`
	CVD       float64 `json:"cvd"`
	TIB       float64 `json:"tib"`
	VBoost    float64 `json:"vboost"`
}

// Result is the score of one symbol for one pass.
type Result struct {
	Trend     float64 `json:"trend"`
	Structure float64 `json:"structure"`
	Volume    float64 `json:"volume"`
	Total     int     `json:"total"`
	Detail    Detail  `json:"detail"`
}

// Score computes every block and the weighted total.
func Score(s series.Series, th config.Thresholds) Result {
	var r Result
	r.Trend = trendScore(s, th.Trend, &r.Detail)
	r.Structure = structureScore(s, th.Structure, &r.Detail)
	r.Volume = volumeScore(s, th.Volume, &r.Detail)
	r.Total = int(math.Round(weightTrend*r.Trend + weightStructure*r.Structure + weightVolume*r.Volume))
	return r
}

func trendScore(s series.Series, th config.TrendThresholds, d *Detail) float64 {
	slope, r2 := indicators.EMASlopeR2(s.Closes(), th.EMAPeriod, th.Window)
	d.EMASlope, d.R2 = finite(slope), finite(r2)

	score := 0.0
	if slope >= th.SlopeMin {
		score += trendSlopePoints
	}
	if !math.IsNaN(r2) {
		score += math.Min(trendR2Max, math.Max(0, r2*trendR2Max))
	}
	return score
}

// structureScore penalises choppiness above 50 and rewards net upward pivots.
// An undefined chop value takes the full penalty.
func structureScore(s series.Series, th config.StructureThresholds, d *Detail) float64 {
	h, l, c := s.Highs(), s.Lows(), s.Closes()

	ch := indicators.Last(indicators.Chop(h, l, c, th.ChopPeriod))
	piv := indicators.PivotBias(indicators.Zigzag(h, l, c, th.ZigzagATRMult), th.PivotWindow)
	d.Chop, d.PivotBias = finite(ch), piv

	penalty := structureChopMax
	if !math.IsNaN(ch) {
		penalty = math.Min(structureChopMax, math.Max(0, ch-50)/50*structureChopMax)
	}
	bonus := math.Min(structurePivotMax, math.Max(0, float64(piv))/structurePivotNorm*structurePivotMax)

	return math.Max(0, structureBase-penalty+bonus)
}

func volumeScore(s series.Series, th config.VolumeThresholds, d *Detail) float64 {
	o, h, l, c, v := s.Opens(), s.Highs(), s.Lows(), s.Closes(), s.Volumes()

	vb := indicators.Last(indicators.VBoost(v, vboostWindow))
	cvd := indicators.Last(indicators.CVDProxy(c, v, cvdWindow))
	tib := indicators.Last(indicators.TIB(o, h, l, c, tibWindow))
	volMA := indicators.Last(indicators.RollingMean(v, volumeMA))
	d.VBoost, d.CVD, d.TIB = finite(vb), finite(cvd), finite(tib)

	score := 0.0
	if vb >= th.VBoostMin {
		score += volumeBoostPoints
	}
	if math.Abs(cvd) >= volMA*math.Abs(th.CVDMix) {
		score += volumeCVDPoints
	}
	if tib >= th.TIBMin {
		score += volumeTIBPoints
	}
	return score
}

// APlus passes when the total reaches the minimum and every configured
// per-block minimum is met. A zero block minimum is not checked.
func APlus(r Result, th config.APlusThresholds) bool {
	if r.Total < th.MinTotal {
		return false
	}
	if th.MinTrend > 0 && r.Trend < th.MinTrend {
		return false
	}
	if th.MinStructure > 0 && r.Structure < th.MinStructure {
		return false
	}
	if th.MinVolume > 0 && r.Volume < th.MinVolume {
		return false
	}
	return true
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
