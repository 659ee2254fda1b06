package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Thresholds groups every scoring and gate threshold.
type Thresholds struct {
	Trend     TrendThresholds     `yaml:"trend" json:"trend"`
	Structure StructureThresholds `yaml:"struct" json:"struct"`
	Volume    VolumeThresholds    `yaml:"volume" json:"volume"`
	APlus     APlusThresholds     `yaml:"aplus" json:"aplus"`
	Gates     GateThresholds      `yaml:"gates" json:"gates"`
}

type TrendThresholds struct {
	EMAPeriod int     `yaml:"ema_period" json:"ema_period"`
	Window    int     `yaml:"window" json:"window"`
	SlopeMin  float64 `yaml:"ema30_slope_min" json:"ema30_slope_min"`
}

type StructureThresholds struct {
	ZigzagATRMult float64 `yaml:"zigzag_min_atr" json:"zigzag_min_atr"`
	ChopPeriod    int     `yaml:"chop_period" json:"chop_period"`
	PivotWindow   int     `yaml:"pivot_window" json:"pivot_window"`
}

type VolumeThresholds struct {
	VBoostMin float64 `yaml:"vboost_min" json:"vboost_min"`
	CVDMix    float64 `yaml:"cvd_mix_pct" json:"cvd_mix_pct"`
	TIBMin    float64 `yaml:"tib_abs_min" json:"tib_abs_min"`
}

// APlusThresholds: a zero per-block minimum disables that block check.
type APlusThresholds struct {
	MinTotal     int     `yaml:"min_total" json:"min_total"`
	MinTrend     float64 `yaml:"min_trend" json:"min_trend"`
	MinStructure float64 `yaml:"min_structure" json:"min_structure"`
	MinVolume    float64 `yaml:"min_volume" json:"min_volume"`
}

type GateThresholds struct {
	A GateAThresholds `yaml:"A" json:"A"`
	B GateBThresholds `yaml:"B" json:"B"`
	C GateCThresholds `yaml:"C" json:"C"`
	D GateDThresholds `yaml:"D" json:"D"`
}

type GateAThresholds struct {
	Lookback       int     `yaml:"lookback" json:"lookback"`
	BreakoutPad    float64 `yaml:"breakout_pad" json:"breakout_pad"`
	CloseMarginATR float64 `yaml:"close_margin_atr" json:"close_margin_atr"`
	BodyATRMax     float64 `yaml:"body_atr_max" json:"body_atr_max"`
}

// Body normalisation modes for gate B.
const (
	BodyNormATR   = "atr"
	BodyNormRange = "range"
)

type GateBThresholds struct {
	EMAPeriod  int     `yaml:"ema_period" json:"ema_period"`
	NearEMAATR float64 `yaml:"near_ema_atr" json:"near_ema_atr"`
	BodyMin    float64 `yaml:"body_min" json:"body_min"`
	BodyNorm   string  `yaml:"body_norm" json:"body_norm"`
	CloseZone  float64 `yaml:"close_zone" json:"close_zone"`
}

type GateCThresholds struct {
	FundingPctl  float64 `yaml:"funding_pctl" json:"funding_pctl"`
	SpeedPctl    float64 `yaml:"speed_pctl" json:"speed_pctl"`
	ZBig         float64 `yaml:"z_extreme_big" json:"z_extreme_big"`
	ZSmall       float64 `yaml:"z_extreme_small" json:"z_extreme_small"`
	FundingLimit int     `yaml:"funding_limit" json:"funding_limit"`
}

type GateDThresholds struct {
	SpreadBps    float64 `yaml:"spread_bps" json:"spread_bps"`
	ImpactBps    float64 `yaml:"impact_bps" json:"impact_bps"`
	OBIAbs       float64 `yaml:"obi_abs" json:"obi_abs"`
	RoomATRMin   float64 `yaml:"room_atr_min" json:"room_atr_min"`
	CostRMax     float64 `yaml:"cost_R_max" json:"cost_R_max"`
	NotionalUSDT float64 `yaml:"notional_usdt" json:"notional_usdt"`
	DepthLevels  int     `yaml:"depth_levels" json:"depth_levels"`
}

// PlannerConfig: entry, stop and target distances are ATR multiples.
type PlannerConfig struct {
	ATRPeriod int        `yaml:"atr_period" json:"atr_period"`
	Entry     [3]float64 `yaml:"entry" json:"entry"`
	SL        float64    `yaml:"sl" json:"sl"`
	TP1       float64    `yaml:"tp1" json:"tp1"`
	TP2       float64    `yaml:"tp2" json:"tp2"`
	Weights   [3]float64 `yaml:"weights" json:"weights"`
	CostR     float64    `yaml:"cost_r" json:"cost_r"`
	CostBps   float64    `yaml:"cost_bps" json:"cost_bps"`
}

// Default returns a complete configuration with production defaults.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:           "https://fapi.binance.com",
			RecvWindow:        10 * time.Second,
			Timeout:           10 * time.Second,
			MaxAttempts:       6,
			BackoffMin:        400 * time.Millisecond,
			BackoffMax:        16 * time.Second,
			BackoffFactor:     1.6,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		SamplingConfig: SamplingConfig{Interval: "1h", Bars: 200},
		PoolConfig: PoolConfig{
			MaxSymbols:      60,
			MinQuoteVolume:  50_000_000,
			MinAbsChangePct: 1.0,
			ScanLimit:       30,
			SnapshotDir:     "data",
			TickerTTL:       time.Minute,
		},
		OverlayConfig: OverlayConfig{
			Enabled:       true,
			HalfLifeHours: 2.0,
			TopK:          30,
			Limit:         18,
			MinHeat:       0.01,
			Weight:        1.0,
		},
		Thresholds: Thresholds{
			Trend:     TrendThresholds{EMAPeriod: 30, Window: 30, SlopeMin: 0.0005},
			Structure: StructureThresholds{ZigzagATRMult: 0.5, ChopPeriod: 14, PivotWindow: 40},
			Volume:    VolumeThresholds{VBoostMin: 1.2, CVDMix: 0.3, TIBMin: 0.4},
			APlus:     APlusThresholds{MinTotal: 50},
			Gates: GateThresholds{
				A: GateAThresholds{Lookback: 72, BreakoutPad: 0.002},
				B: GateBThresholds{EMAPeriod: 20, NearEMAATR: 1.0, BodyMin: 0.3, BodyNorm: BodyNormATR},
				C: GateCThresholds{FundingPctl: 95, SpeedPctl: 75, ZBig: 3.0, ZSmall: 2.5, FundingLimit: 30},
				D: GateDThresholds{
					SpreadBps:    8,
					ImpactBps:    15,
					OBIAbs:       0.6,
					RoomATRMin:   1.0,
					CostRMax:     0.2,
					NotionalUSDT: 200,
					DepthLevels:  20,
				},
			},
		},
		PlannerConfig: PlannerConfig{
			ATRPeriod: 14,
			Entry:     [3]float64{0, 0.5, 1.0},
			SL:        1.5,
			TP1:       1.0,
			TP2:       2.0,
			Weights:   [3]float64{0.6, 0.3, 0.1},
			CostBps:   5,
		},
		RunnerConfig: RunnerConfig{
			NotionalUSDT:  100,
			MakerOnly:     true,
			Cooldown:      6 * time.Hour,
			MaxNewPerHour: 3,
		},
		ScannerConfig: ScannerConfig{
			SymbolPause:  300 * time.Millisecond,
			TopN:         5,
			ErrorSamples: 5,
		},
		DatabaseConfig: DatabaseConfig{Driver: "sqlite", DSN: "db/state.db"},
		RedisConfig:    RedisConfig{Address: "localhost:6379", PoolSize: 10},
		VaultConfig:    VaultConfig{MountPath: "secret", SecretPath: "ats/binance"},
		NotificationConfig: NotificationConfig{
			Enabled: true,
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8088,
			AllowedOrigins:  "*",
			ShutdownTimeout: 10 * time.Second,
		},
		LoggingConfig: LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
	}
}

// Validate turns threshold mistakes into a startup failure instead of a
// per-symbol error during the first scan.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.SamplingConfig.Bars <= 0 {
		add("sampling.bars must be positive")
	}
	if c.SamplingConfig.Interval == "" {
		add("sampling.main_interval is required")
	}
	if c.PoolConfig.MaxSymbols <= 0 || c.PoolConfig.ScanLimit <= 0 {
		add("symbol_pool.max_symbols and scan_limit must be positive")
	}
	if c.OverlayConfig.HalfLifeHours <= 0 {
		add("overlay.half_life_hours must be positive")
	}

	th := c.Thresholds
	if th.Trend.EMAPeriod <= 0 || th.Trend.Window < 2 {
		add("thresholds.trend periods must be positive")
	}
	if th.Structure.ChopPeriod < 2 || th.Structure.PivotWindow <= 0 {
		add("thresholds.struct periods must be positive")
	}
	if th.Gates.A.Lookback <= 0 {
		add("thresholds.gates.A.lookback must be positive")
	}
	if th.Gates.A.BreakoutPad < 0 {
		add("thresholds.gates.A.breakout_pad must not be negative")
	}
	if th.Gates.B.EMAPeriod <= 0 {
		add("thresholds.gates.B.ema_period must be positive")
	}
	if th.Gates.B.BodyNorm != BodyNormATR && th.Gates.B.BodyNorm != BodyNormRange {
		add("thresholds.gates.B.body_norm must be %q or %q", BodyNormATR, BodyNormRange)
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"funding_pctl", th.Gates.C.FundingPctl},
		{"speed_pctl", th.Gates.C.SpeedPctl},
	} {
		if p.v <= 0 || p.v > 100 {
			add("thresholds.gates.C.%s must be in (0,100]", p.name)
		}
	}
	if th.Gates.C.ZBig <= 0 || th.Gates.C.ZSmall <= 0 {
		add("thresholds.gates.C z limits must be positive")
	}
	d := th.Gates.D
	if d.SpreadBps <= 0 || d.ImpactBps <= 0 || d.OBIAbs <= 0 || d.CostRMax <= 0 {
		add("thresholds.gates.D ceilings must be positive")
	}
	if d.NotionalUSDT <= 0 || d.DepthLevels <= 0 {
		add("thresholds.gates.D notional and depth levels must be positive")
	}

	p := c.PlannerConfig
	if p.ATRPeriod <= 0 {
		add("planner.atr_period must be positive")
	}
	if p.SL <= 0 {
		add("planner.sl must be positive")
	}
	sum := 0.0
	for _, w := range p.Weights {
		if w < 0 {
			add("planner.weights must not be negative")
			break
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		add("planner.weights must sum to 1, got %.10f", sum)
	}

	switch c.DatabaseConfig.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver must be sqlite or postgres")
	}
	if c.DatabaseConfig.DSN == "" {
		add("database.dsn is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
