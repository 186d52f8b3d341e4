package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpireQuotes sweeps pending quotes past their due date.
	TaskExpireQuotes = "quotes:expire"
	// TaskExpireInvoices sweeps sent and pending invoices past their due date.
	TaskExpireInvoices = "invoices:expire"
	// TaskCleanupIdempotency prunes aged idempotency keys.
	TaskCleanupIdempotency = "idempotency:cleanup"
)

// NewExpireQuotesTask constructs the quote expiry task.
func NewExpireQuotesTask() *asynq.Task {
	return asynq.NewTask(TaskExpireQuotes, nil)
}

// NewExpireInvoicesTask constructs the invoice expiry task.
func NewExpireInvoicesTask() *asynq.Task {
	return asynq.NewTask(TaskExpireInvoices, nil)
}

// NewCleanupIdempotencyTask constructs the idempotency cleanup task.
func NewCleanupIdempotencyTask() *asynq.Task {
	return asynq.NewTask(TaskCleanupIdempotency, nil)
}
