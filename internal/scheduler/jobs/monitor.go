package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wqlab/screener/internal/engine"
	"github.com/wqlab/screener/pkg/logger"
)

// MonitorJob marks held positions to market and applies the exit rules
// on the days between rebalances.
type MonitorJob struct {
	orchestrator *engine.Orchestrator
	logger       *logger.Logger
}

// NewMonitorJob creates the daily monitoring job.
func NewMonitorJob(o *engine.Orchestrator, log *logger.Logger) *MonitorJob {
	return &MonitorJob{orchestrator: o, logger: log}
}

func (j *MonitorJob) Name() string {
	return "daily_monitor"
}

// Schedule fires at 15:10 CST on weekdays, right after the close.
func (j *MonitorJob) Schedule() string {
	return "0 10 15 * * 1-5"
}

func (j *MonitorJob) Run(ctx context.Context) error {
	date := time.Now().Truncate(24 * time.Hour)

	if err := j.orchestrator.Monitor(ctx, date); err != nil {
		return fmt.Errorf("daily monitor: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"date":        date.Format("2006-01-02"),
		"total_value": j.orchestrator.PortfolioSnapshot().TotalValue,
	}).Info("Daily monitoring finished")

	return nil
}
