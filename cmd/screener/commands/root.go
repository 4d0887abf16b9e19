package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wqlab/screener/internal/strategyconfig"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "A-share multi-factor screening and simulated portfolio engine",
	Long: `screener runs the multi-factor pipeline: coarse market-wide
filtering, fine per-candidate scoring, regime-aware sizing and the
simulated execution cycle.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener screen --date 2026-08-21
  go run ./cmd/screener backtest --start 2026-01-05 --end 2026-06-30
  go run ./cmd/screener serve
  go run ./cmd/screener scheduler start`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML file (default: built-in baseline)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadStrategy resolves the strategy parameter set from the flag or the
// built-in baseline.
func loadStrategy() (strategyconfig.Config, error) {
	if strategyFile == "" {
		return strategyconfig.Default(), nil
	}

	cfg, err := strategyconfig.Load(strategyFile)
	if err != nil {
		return strategyconfig.Config{}, fmt.Errorf("load strategy %s: %w", strategyFile, err)
	}

	hash, err := strategyconfig.Hash(cfg)
	if err == nil {
		fmt.Printf("Strategy: %s %s (%s)\n", cfg.Meta.StrategyID, cfg.Meta.Version, hash[:12])
	}
	return *cfg, nil
}
