package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wqlab/screener/internal/scheduler"
	"github.com/wqlab/screener/internal/scheduler/jobs"
)

// schedulerCmd manages the standalone scheduler daemon.
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage the rebalance scheduler",
	Long: `Runs the cron scheduler without the API server, or inspects
registered jobs.

Registered jobs:
  rebalance      - weekdays 15:30 (after close)
  daily_monitor  - weekdays 15:10 (exit checks before close)

Example:
  go run ./cmd/screener scheduler start
  go run ./cmd/screener scheduler list
  go run ./cmd/screener scheduler run rebalance
  go run ./cmd/screener scheduler status`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		RunE:  runSchedulerDaemon,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listSchedulerJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job execution history",
		RunE:  showSchedulerStatus,
	}
)

var schedulerCash float64

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerCmd.PersistentFlags().Float64Var(&schedulerCash, "cash", 1_000_000, "starting cash for the simulated account")
}

// initScheduler builds the scheduler with both engine jobs registered.
func initScheduler() (*scheduler.Scheduler, *deps, error) {
	d, err := buildDeps(schedulerCash)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(d.log)
	if err := sched.AddJob(jobs.NewRebalanceJob(d.orchestrator, d.log)); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("register rebalance job: %w", err)
	}
	if err := sched.AddJob(jobs.NewMonitorJob(d.orchestrator, d.log)); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("register monitor job: %w", err)
	}
	return sched, d, nil
}

func runSchedulerDaemon(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return err
	}
	defer d.Close()

	sched.Start()

	fmt.Println("Scheduler started. Registered jobs:")
	for _, name := range sched.JobNames() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down scheduler...")
	sched.Stop()
	return nil
}

func listSchedulerJobs(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Println("Registered jobs:")
	for _, name := range sched.JobNames() {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return err
	}
	defer d.Close()

	name := args[0]
	if err := sched.RunJob(name); err != nil {
		return err
	}

	fmt.Printf("Job %s triggered\n", name)
	return nil
}

func showSchedulerStatus(cmd *cobra.Command, args []string) error {
	sched, d, err := initScheduler()
	if err != nil {
		return err
	}
	defer d.Close()

	for _, name := range sched.JobNames() {
		history, err := sched.History(name)
		if err != nil {
			continue
		}

		results := history.LatestResults(5)
		fmt.Printf("%s (success rate %.0f%%):\n", name, history.SuccessRate()*100)
		if len(results) == 0 {
			fmt.Println("  no runs yet")
			continue
		}
		for _, r := range results {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.Error
			}
			fmt.Printf("  %s  %-8s %s\n", r.StartTime.Format("2006-01-02 15:04:05"), r.Duration, status)
		}
	}
	return nil
}
