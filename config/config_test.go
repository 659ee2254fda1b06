package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Thresholds.Gates.A.Lookback != 72 {
		t.Errorf("lookback = %d, want 72", cfg.Thresholds.Gates.A.Lookback)
	}
	if cfg.PlannerConfig.Weights != [3]float64{0.6, 0.3, 0.1} {
		t.Errorf("weights = %v", cfg.PlannerConfig.Weights)
	}
}

func TestLoadOverlaysDocumentOnDefaults(t *testing.T) {
	path := writeParams(t, `
sampling:
  main_interval: 4h
thresholds:
  gates:
    A:
      lookback: 48
      breakout_pad: 0.001
planner:
  weights: [0.5, 0.3, 0.2]
scanner:
  symbol_pause: 750ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SamplingConfig.Interval != "4h" {
		t.Errorf("interval = %q", cfg.SamplingConfig.Interval)
	}
	if cfg.SamplingConfig.Bars != 200 {
		t.Errorf("bars = %d, want default 200", cfg.SamplingConfig.Bars)
	}
	if cfg.Thresholds.Gates.A.Lookback != 48 || cfg.Thresholds.Gates.A.BreakoutPad != 0.001 {
		t.Errorf("gate A = %+v", cfg.Thresholds.Gates.A)
	}
	if cfg.Thresholds.Gates.C.FundingPctl != 95 {
		t.Errorf("gate C funding pctl = %v, want default", cfg.Thresholds.Gates.C.FundingPctl)
	}
	if cfg.ScannerConfig.SymbolPause != 750*time.Millisecond {
		t.Errorf("symbol pause = %v", cfg.ScannerConfig.SymbolPause)
	}
}

func TestLoadRejectsWeightsNotSummingToOne(t *testing.T) {
	path := writeParams(t, "planner:\n  weights: [0.6, 0.3, 0.3]\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	path := writeParams(t, "thresholds: [not, a, map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://ats@localhost/ats")
	t.Setenv("BINANCE_BASE_DELAY_MS", "250")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseConfig.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.DatabaseConfig.Driver)
	}
	if cfg.BinanceConfig.BackoffMin != 250*time.Millisecond {
		t.Errorf("backoff min = %v", cfg.BinanceConfig.BackoffMin)
	}
	if !cfg.NotificationConfig.Telegram.Enabled {
		t.Error("telegram should be enabled when token and chat id are present")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.PlannerConfig.Weights = [3]float64{1.2, -0.1, -0.1} }},
		{"zero lookback", func(c *Config) { c.Thresholds.Gates.A.Lookback = 0 }},
		{"percentile above 100", func(c *Config) { c.Thresholds.Gates.C.SpeedPctl = 120 }},
		{"unknown body norm", func(c *Config) { c.Thresholds.Gates.B.BodyNorm = "wick" }},
		{"zero spread ceiling", func(c *Config) { c.Thresholds.Gates.D.SpreadBps = 0 }},
		{"unknown driver", func(c *Config) { c.DatabaseConfig.Driver = "mysql" }},
		{"zero half life", func(c *Config) { c.OverlayConfig.HalfLifeHours = 0 }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestGenerateSampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yml")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.OverlayConfig.Limit != 18 {
		t.Errorf("overlay limit = %d", cfg.OverlayConfig.Limit)
	}
}

func TestValidateReportsProblemsInStableOrder(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.Gates.C.FundingPctl = 0
	cfg.Thresholds.Gates.C.SpeedPctl = 150

	first := cfg.Validate()
	if first == nil {
		t.Fatal("expected a validation error")
	}
	want := "thresholds.gates.C.funding_pctl must be in (0,100]; thresholds.gates.C.speed_pctl must be in (0,100]"
	if !strings.Contains(first.Error(), want) {
		t.Fatalf("Validate() = %q, want it to contain %q", first.Error(), want)
	}
	for i := 0; i < 20; i++ {
		if err := cfg.Validate(); err.Error() != first.Error() {
			t.Fatalf("run %d: %q differs from %q", i, err.Error(), first.Error())
		}
	}
}
