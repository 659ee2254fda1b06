package notification

import (
	"fmt"
	"strings"
	"time"
)

// SummaryRow is one scored symbol in a scan summary.
type SummaryRow struct {
	Symbol    string
	Trend     int
	Structure int
	Volume    int
	Total     int
	Gates     bool
}

// ErrorSample is one per-symbol failure shown in a summary.
type ErrorSample struct {
	Symbol string
	Error  string
}

// Summary is the notification view of a scan pass.
type Summary struct {
	TS           time.Time
	PoolSize     int
	Scanned      int
	Mode         string
	Rows         []SummaryRow // sorted by total, best first
	APlus        []SummaryRow
	Plans        []string
	ErrorCount   int
	ErrorSamples []ErrorSample
}

// FormatScanSummary renders the summary as plain text with the topN rows.
func FormatScanSummary(s Summary, topN int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Scan complete %s UTC\n", s.TS.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Pool: %d | scanned: %d", s.PoolSize, s.Scanned)
	if s.Mode != "" {
		fmt.Fprintf(&b, " | mode: %s", s.Mode)
	}
	b.WriteString("\n")

	rows := s.Rows
	if topN >= 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	if len(rows) > 0 {
		b.WriteString("Top:\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "• %s | Trend %d / Struct %d / Flow %d → %d\n", r.Symbol, r.Trend, r.Structure, r.Volume, r.Total)
		}
	}

	if len(s.APlus) > 0 {
		b.WriteString("✅ A+ candidates:\n")
		for _, r := range s.APlus {
			gates := "N"
			if r.Gates {
				gates = "Y"
			}
			fmt.Fprintf(&b, "  - %s | %d | Gates=%s\n", r.Symbol, r.Total, gates)
		}
	} else {
		b.WriteString("❎ No A+ this pass\n")
	}

	if len(s.Plans) > 0 {
		fmt.Fprintf(&b, "📝 Plans: %s\n", strings.Join(s.Plans, ", "))
	}

	if s.ErrorCount > 0 {
		fmt.Fprintf(&b, "⚠️ Errors: %d\n", s.ErrorCount)
		for _, e := range s.ErrorSamples {
			fmt.Fprintf(&b, "  - %s: %s\n", e.Symbol, e.Error)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
