package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries communication records that must not be lost.
	QueueCritical = "critical"

	// TaskExpireQuotations marks quotations past their validity EXPIRED.
	TaskExpireQuotations = "sales:quotations:expire"
	// TaskMarkOverdueInvoices marks unpaid invoices past their due date OVERDUE.
	TaskMarkOverdueInvoices = "sales:invoices:overdue"
	// TaskRecordCommunication stores a sent message whose log write failed.
	TaskRecordCommunication = "followup:communication:record"
	// TaskWarmMetrics precomputes the default communication report.
	TaskWarmMetrics = "followup:metrics:warmup"
	// TaskPurgeIdempotencyKeys drops request keys past their retention.
	TaskPurgeIdempotencyKeys = "platform:idempotency:purge"
)

// NewSweepTask builds one of the payload-less sweep tasks.
func NewSweepTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskExpireQuotations, TaskMarkOverdueInvoices, TaskWarmMetrics, TaskPurgeIdempotencyKeys:
		return asynq.NewTask(taskType, nil), nil
	}
	return nil, fmt.Errorf("jobs: %s is not a sweep task", taskType)
}

// RecordCommunicationPayload carries the full communication row.
type RecordCommunicationPayload struct {
	Communication communications.Communication `json:"communication"`
}

// NewRecordCommunicationTask constructs the fallback record task.
func NewRecordCommunicationTask(c communications.Communication) (*asynq.Task, error) {
	data, err := json.Marshal(RecordCommunicationPayload{Communication: c})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecordCommunication, data), nil
}
