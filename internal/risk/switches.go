package risk

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBlackoutMinutes is the half width of the funding blackout window.
const DefaultBlackoutMinutes = 5

// fundingHours are the UTC hours at which funding settles.
var fundingHours = []int{0, 8, 16}

// Switches are the process-wide trading flags. They are read from the
// environment on every decision so an operator can flip them without a restart.
type Switches struct {
	TradingEnabled  bool `json:"trading_enabled"`
	DryRun          bool `json:"dry_run"`
	BlackoutMinutes int  `json:"blackout_minutes"`
	NotifyMute      bool `json:"notify_mute"`
}

// LoadSwitches reads TRADING_ENABLED, DRY_RUN, BLACKOUT_MINUTES and NOTIFY_MUTE.
// DRY_RUN is on unless explicitly set to false.
func LoadSwitches() Switches {
	return Switches{
		TradingEnabled:  envBool("TRADING_ENABLED", false),
		DryRun:          envBool("DRY_RUN", true),
		BlackoutMinutes: envInt("BLACKOUT_MINUTES", DefaultBlackoutMinutes),
		NotifyMute:      envBool("NOTIFY_MUTE", false),
	}
}

// Mode returns "live" when orders would reach the exchange, "dry" otherwise.
func (s Switches) Mode() string {
	if s.TradingEnabled && !s.DryRun {
		return "live"
	}
	return "dry"
}

// InFundingBlackout reports whether now lies within span minutes of a funding
// settlement (00:00, 08:00, 16:00 UTC). The window is centered on the
// settlement, so 23:57 is inside the 00:00 window.
func InFundingBlackout(now time.Time, span int) bool {
	if span <= 0 {
		return false
	}
	now = now.UTC()
	minuteOfDay := now.Hour()*60 + now.Minute()
	const day = 24 * 60
	for _, h := range fundingHours {
		d := minuteOfDay - h*60
		if d < 0 {
			d = -d
		}
		if day-d < d {
			d = day - d
		}
		if d <= span {
			return true
		}
	}
	return false
}

// AllowNewOpen is the switch gate: trading must be enabled, dry-run off and
// now outside the funding blackout.
func AllowNewOpen(sw Switches, now time.Time) (bool, string) {
	if !sw.TradingEnabled {
		return false, "trading disabled"
	}
	if sw.DryRun {
		return false, "dry run"
	}
	if InFundingBlackout(now, sw.BlackoutMinutes) {
		return false, "funding blackout"
	}
	return true, ""
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
