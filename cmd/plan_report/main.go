// plan_report prints per-symbol statistics of the recorded plans.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"binance-ats/config"
	"binance-ats/internal/store"

	"github.com/spf13/cobra"
)

type SymbolStats struct {
	Symbol    string
	Plans     int
	Live      int
	Dry       int
	AvgCostR  float64
	AvgRoom   float64
	AvgRiskPc float64 // R as a percentage of L1
	LastTS    int64
}

var (
	configPath string
	limit      int
)

func main() {
	cmd := &cobra.Command{
		Use:          "plan_report",
		Short:        "Summarise recorded plans by symbol",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to the parameter document")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Number of most recent plans to read")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	plans, err := st.RecentPlans(ctx, limit)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintln(out, "❌ No plans recorded")
		return nil
	}

	printReport(out, summarize(plans))
	return nil
}

// summarize groups plans by symbol, most planned first.
func summarize(plans []store.PlanRecord) []*SymbolStats {
	bySymbol := make(map[string]*SymbolStats)
	for _, p := range plans {
		s, ok := bySymbol[p.Symbol]
		if !ok {
			s = &SymbolStats{Symbol: p.Symbol}
			bySymbol[p.Symbol] = s
		}
		s.Plans++
		if p.Mode == store.ModeLive {
			s.Live++
		} else {
			s.Dry++
		}
		s.AvgCostR += p.CostR
		s.AvgRoom += p.Room
		if p.L1 > 0 {
			s.AvgRiskPc += p.R / p.L1 * 100
		}
		if p.TS > s.LastTS {
			s.LastTS = p.TS
		}
	}

	out := make([]*SymbolStats, 0, len(bySymbol))
	for _, s := range bySymbol {
		n := float64(s.Plans)
		s.AvgCostR /= n
		s.AvgRoom /= n
		s.AvgRiskPc /= n
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plans != out[j].Plans {
			return out[i].Plans > out[j].Plans
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func printReport(out io.Writer, stats []*SymbolStats) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(out, line)
	fmt.Fprintln(out, "📝 RECORDED PLANS BY SYMBOL")
	fmt.Fprintln(out, line)

	fmt.Fprintln(out, "┌──────────────┬───────┬──────┬──────┬─────────┬─────────┬─────────┬──────────────────┐")
	fmt.Fprintln(out, "│ Symbol       │ Plans │ Live │ Dry  │ Avg CR  │ Room    │ Risk %  │ Last (UTC)       │")
	fmt.Fprintln(out, "├──────────────┼───────┼──────┼──────┼─────────┼─────────┼─────────┼──────────────────┤")

	var total, live int
	for _, s := range stats {
		fmt.Fprintf(out, "│ %-12s │ %5d │ %4d │ %4d │ %7.3f │ %7.2f │ %7.2f │ %-16s │\n",
			truncate(s.Symbol, 12), s.Plans, s.Live, s.Dry, s.AvgCostR, s.AvgRoom, s.AvgRiskPc,
			time.Unix(s.LastTS, 0).UTC().Format("2006-01-02 15:04"))
		total += s.Plans
		live += s.Live
	}

	fmt.Fprintln(out, "└──────────────┴───────┴──────┴──────┴─────────┴─────────┴─────────┴──────────────────┘")
	fmt.Fprintf(out, "\nTotal: %d plans across %d symbols (%d live, %d dry)\n", total, len(stats), live, total-live)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
