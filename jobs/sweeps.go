package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-sales/internal/jobs"
)

// SweepFunc runs one idempotent bulk update and reports how many documents
// it changed.
type SweepFunc func(ctx context.Context) (int, error)

// SweepJob adapts a SweepFunc to an asynq handler with metrics and logging.
type SweepJob struct {
	Name    string
	Run     SweepFunc
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewSweepJob wires a sweep under the task type name.
func NewSweepJob(name string, run SweepFunc, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{Name: name, Run: run, Logger: logger, Metrics: metrics, Timeout: 2 * time.Minute}
}

// Handle executes the sweep. Re-running it right after a success changes
// nothing.
func (j *SweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Run == nil {
		return errors.New("sweep: handler not configured")
	}
	tracker := j.Metrics.Track(j.Name)
	defer func() {
		err = tracker.End(err)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.logger().With(slog.String("job", j.Name))
	start := time.Now()
	n, err := j.Run(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(j.Name, n)
	logger.Info("sweep completed", slog.Int("affected", n), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
