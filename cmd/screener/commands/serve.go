package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wqlab/screener/internal/api"
	"github.com/wqlab/screener/internal/api/handlers"
	"github.com/wqlab/screener/internal/feed"
	"github.com/wqlab/screener/internal/scheduler"
	"github.com/wqlab/screener/internal/scheduler/jobs"
	"github.com/wqlab/screener/pkg/metrics"
)

// serveCmd runs the long-lived service: API, scheduler, live quote
// stream and the metrics endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with the rebalance scheduler",
	Long: `Starts the read-only HTTP API, the cron scheduler for the
rebalance and monitor jobs, the live quote stream feeding intraday
exit checks, and the Prometheus metrics endpoint.

Endpoints:
  GET /health                          - health check
  GET /api/v1/screening/results        - screening results
  GET /api/v1/screening/results/latest - most recent result
  GET /api/v1/rebalance/records        - rebalance audit log
  GET /api/v1/portfolio                - simulated portfolio snapshot
  GET /api/v1/quotes                   - live price book

Example:
  go run ./cmd/screener serve --cash 1000000`,
	RunE: runServe,
}

var serveCash float64

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Float64Var(&serveCash, "cash", 1_000_000, "starting cash for the simulated account")
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := buildDeps(serveCash)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduler: rebalance at close, monitor before close.
	sched := scheduler.New(d.log)
	if err := sched.AddJob(jobs.NewRebalanceJob(d.orchestrator, d.log)); err != nil {
		return fmt.Errorf("register rebalance job: %w", err)
	}
	if err := sched.AddJob(jobs.NewMonitorJob(d.orchestrator, d.log)); err != nil {
		return fmt.Errorf("register monitor job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Live quotes feed the intraday exit monitor and the /quotes view.
	book := feed.NewPriceBook()
	stream := feed.NewStream(d.cfg.Quote.WSURL, d.log)
	go book.Consume(stream.Subscribe(ctx, heldAndSelected(d)))
	go watchExits(ctx, d, book)

	// API server.
	handler := handlers.NewEngineHandler(d.orchestrator, book, d.log)
	server := api.New(d.cfg, d.log, api.NewRouter(handler, d.log))

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	// Metrics endpoint.
	var metricsSrv *metrics.Server
	if d.cfg.MetricsEnabled {
		metricsSrv = metrics.NewServer(d.cfg.MetricsPort, d.registry, d.log)
		go func() { errCh <- metricsSrv.Start() }()
	}

	fmt.Println("screener serving; press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		_ = metricsSrv.Stop(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}

// heldAndSelected lists the codes worth streaming: current holdings plus
// the latest selection.
func heldAndSelected(d *deps) []string {
	seen := make(map[string]struct{})
	var codes []string

	for _, pos := range d.orchestrator.PortfolioSnapshot().Positions {
		if pos.Shares > 0 {
			seen[pos.Code] = struct{}{}
			codes = append(codes, pos.Code)
		}
	}

	results := d.orchestrator.Results()
	if len(results) > 0 {
		for _, c := range results[len(results)-1].Candidates {
			if _, dup := seen[c.Code]; !dup {
				codes = append(codes, c.Code)
			}
		}
	}
	return codes
}

// watchExits periodically applies the exit rules against the live book.
func watchExits(ctx context.Context, d *deps, book *feed.PriceBook) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prices := book.Snapshot()
			if len(prices) == 0 {
				continue
			}
			now := time.Now()
			date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			d.orchestrator.MonitorPrices(ctx, date, prices)
		}
	}
}
