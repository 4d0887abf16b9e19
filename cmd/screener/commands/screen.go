package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// screenCmd runs one screening pass and prints the qualified candidates.
var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run one screening pass",
	Long: `Runs coarse filtering and fine scoring for one date and prints
the qualified candidates. No orders are produced.

Example:
  go run ./cmd/screener screen --date 2026-08-21`,
	RunE: runScreen,
}

var screenDate string

func init() {
	rootCmd.AddCommand(screenCmd)
	screenCmd.Flags().StringVar(&screenDate, "date", "", "screening date YYYY-MM-DD (default: today)")
}

func runScreen(cmd *cobra.Command, args []string) error {
	date, err := resolveDate(screenDate)
	if err != nil {
		return err
	}

	d, err := buildDeps(0)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.orchestrator.Screen(context.Background(), date)
	if err != nil {
		return fmt.Errorf("screen %s: %w", date.Format("2006-01-02"), err)
	}

	fmt.Printf("Date:             %s\n", result.Date.Format("2006-01-02"))
	fmt.Printf("Universe:         %d\n", result.UniverseSize)
	fmt.Printf("Coarse survivors: %d\n", result.CoarseSurvivors)
	fmt.Printf("Relax level:      %d\n", result.RelaxLevel)
	fmt.Printf("Qualified:        %d\n\n", len(result.Candidates))

	if len(result.Candidates) == 0 {
		return nil
	}

	fmt.Printf("%-8s %-10s %5s %6s %9s %8s\n", "CODE", "INDUSTRY", "SCORE", "PULSES", "QUANTILE", "SLOPE")
	for _, c := range result.Candidates {
		fmt.Printf("%-8s %-10s %5d %6d %9.2f %8.2f\n",
			c.Code, c.Industry, c.Score,
			c.Diagnostics.PulseCount,
			c.Diagnostics.PriceQuantile,
			c.Diagnostics.MA60Slope,
		)
	}
	return nil
}

// resolveDate parses a YYYY-MM-DD flag, defaulting to today.
func resolveDate(flag string) (time.Time, error) {
	if flag == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	date, err := time.Parse("2006-01-02", flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", flag)
	}
	return date, nil
}
