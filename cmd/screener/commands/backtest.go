package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// backtestCmd replays the full pipeline over a date range.
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the pipeline over a date range",
	Long: `Walks every session between start and end, rebalancing on the
configured cadence and monitoring exits in between, then prints the
equity summary.

Example:
  go run ./cmd/screener backtest --start 2026-01-05 --end 2026-06-30 --cash 1000000`,
	RunE: runBacktest,
}

var (
	backtestStart string
	backtestEnd   string
	backtestCash  float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringVar(&backtestStart, "start", "", "start date YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&backtestEnd, "end", "", "end date YYYY-MM-DD (required)")
	backtestCmd.Flags().Float64Var(&backtestCash, "cash", 1_000_000, "starting cash")
	_ = backtestCmd.MarkFlagRequired("start")
	_ = backtestCmd.MarkFlagRequired("end")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	start, err := resolveDate(backtestStart)
	if err != nil {
		return err
	}
	end, err := resolveDate(backtestEnd)
	if err != nil {
		return err
	}

	d, err := buildDeps(backtestCash)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.orchestrator.Backtest(context.Background(), start, end)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	fmt.Printf("Period:        %s .. %s (%d sessions)\n",
		report.Start.Format("2006-01-02"), report.End.Format("2006-01-02"), len(report.Equity))
	fmt.Printf("Starting cash: %.2f\n", report.StartingCash)
	fmt.Printf("Final value:   %.2f\n", report.FinalValue)
	fmt.Printf("Rebalances:    %d\n\n", len(report.Records))

	m := report.Metrics
	fmt.Printf("CAGR:          %8.2f%%\n", m.CAGR*100)
	fmt.Printf("Sharpe:        %8.2f\n", m.Sharpe)
	fmt.Printf("Sortino:       %8.2f\n", m.Sortino)
	fmt.Printf("Max drawdown:  %8.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Win rate:      %8.2f%% over %d periods\n", m.WinRate*100, m.Periods)

	skipped := 0
	for _, rec := range report.Records {
		if rec.Reason != "" {
			skipped++
		}
	}
	if skipped > 0 {
		fmt.Printf("\nSkipped or short-circuited periods: %d\n", skipped)
	}
	return nil
}
