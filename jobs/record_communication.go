package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	jobmetrics "github.com/odyssey-erp/odyssey-sales/internal/jobs"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// CommunicationRecorder stores a communication keeping its id.
type CommunicationRecorder interface {
	Record(ctx context.Context, c communications.Communication) error
}

// RecordCommunicationJob retries communication inserts that failed inline.
type RecordCommunicationJob struct {
	Recorder CommunicationRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewRecordCommunicationJob wires the fallback handler.
func NewRecordCommunicationJob(recorder CommunicationRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecordCommunicationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCommunicationJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle stores the payload. Malformed payloads are not retried.
func (j *RecordCommunicationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Recorder == nil {
		return errors.New("record communication: handler not configured")
	}
	tracker := j.Metrics.Track(TaskRecordCommunication)
	defer func() {
		err = tracker.End(err)
	}()

	var payload RecordCommunicationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	c := payload.Communication
	if err := j.Recorder.Record(ctx, c); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			j.Logger.Error("dropping invalid communication record", slog.String("communication_id", c.ID), slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.Logger.Info("communication recorded from fallback", slog.String("communication_id", c.ID))
	return nil
}
