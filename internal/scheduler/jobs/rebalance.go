package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wqlab/screener/internal/engine"
	"github.com/wqlab/screener/pkg/logger"
)

// RebalanceJob runs the full screening and rebalance cycle after the
// close on rebalance days.
type RebalanceJob struct {
	orchestrator *engine.Orchestrator
	logger       *logger.Logger
}

// NewRebalanceJob creates the rebalance job.
func NewRebalanceJob(o *engine.Orchestrator, log *logger.Logger) *RebalanceJob {
	return &RebalanceJob{orchestrator: o, logger: log}
}

func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Schedule fires at 15:30 CST on weekdays, after the A-share close.
func (j *RebalanceJob) Schedule() string {
	return "0 30 15 * * 1-5"
}

func (j *RebalanceJob) Run(ctx context.Context) error {
	date := time.Now().Truncate(24 * time.Hour)

	record, err := j.orchestrator.Rebalance(ctx, date)
	if err != nil {
		return fmt.Errorf("scheduled rebalance: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"selected": len(record.SelectedCodes),
		"reason":   record.Reason,
	}).Info("Scheduled rebalance finished")

	return nil
}
