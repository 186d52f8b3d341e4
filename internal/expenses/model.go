// Package expenses is the read model over recorded expenses. The engine never
// mutates expenses; it only excludes cancelled ones when generating invoices
// and aggregating reports.
package expenses

import "time"

// ExpenseStatus enumerates expense lifecycle values.
type ExpenseStatus string

const (
	StatusPending   ExpenseStatus = "PENDING"
	StatusPaid      ExpenseStatus = "PAID"
	StatusCancelled ExpenseStatus = "CANCELLED"
	StatusOverdue   ExpenseStatus = "OVERDUE"
)

// Expense model.
type Expense struct {
	ID          int64         `json:"id" db:"id"`
	EventID     int64         `json:"event_id" db:"event_id"`
	ProviderID  *int64        `json:"provider_id,omitempty" db:"provider_id"`
	Description string        `json:"description" db:"description"`
	Category    string        `json:"category" db:"category"`
	Amount      float64       `json:"amount" db:"amount"`
	Tax         float64       `json:"tax" db:"tax"`
	Total       float64       `json:"total" db:"total"`
	Status      ExpenseStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}
