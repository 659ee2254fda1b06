package gates

import (
	"fmt"
	"math"

	"binance-ats/config"
	"binance-ats/internal/indicators"
	"binance-ats/internal/series"
)

const (
	speedWindow = 6
	zMinReturns = 10
)

// Crowding holds the gate C metrics.
type Crowding struct {
	FundingPctl float64 `json:"funding_pctl"`
	SpeedPctl   float64 `json:"speed_pctl"`
	ZAbs        float64 `json:"z_abs"`
}

// CrowdingMetrics ranks the latest |funding| against its own history, ranks
// the current 6-bar mean absolute return against its history and measures
// the z-score of the latest return.
func CrowdingMetrics(s series.Series, fundingRates []float64) Crowding {
	var m Crowding

	ret := indicators.Returns(s.Closes())
	speed := indicators.DropNaN(indicators.RollingMeanAbs(ret, speedWindow))
	if len(speed) > 0 {
		m.SpeedPctl = indicators.PercentRank(speed, speed[len(speed)-1])
	}

	if len(ret) >= zMinReturns {
		mean, std := indicators.MeanStd(ret)
		if std > 0 {
			m.ZAbs = math.Abs((ret[len(ret)-1] - mean) / (std + 1e-12))
		}
	}

	if len(fundingRates) > 0 {
		abs := make([]float64, len(fundingRates))
		for i, f := range fundingRates {
			abs[i] = math.Abs(f)
		}
		m.FundingPctl = indicators.PercentRank(abs, abs[len(abs)-1])
	}
	return m
}

// GateC rejects crowded setups.
func GateC(m Crowding, th config.GateCThresholds) (bool, string) {
	if m.FundingPctl >= th.FundingPctl {
		return false, fmt.Sprintf("funding percentile %.1f >= %.1f", m.FundingPctl, th.FundingPctl)
	}
	if m.SpeedPctl >= th.SpeedPctl {
		return false, fmt.Sprintf("speed percentile %.1f >= %.1f", m.SpeedPctl, th.SpeedPctl)
	}
	zMax := math.Min(th.ZBig, th.ZSmall)
	if m.ZAbs >= zMax {
		return false, fmt.Sprintf("return z %.2f >= %.2f", m.ZAbs, zMax)
	}
	return true, ""
}
