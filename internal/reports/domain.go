package reports

import (
	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/expenses"
)

// deviationAlertPct is the absolute budget-deviation percentage beyond which
// an event is flagged.
const deviationAlertPct = 10.0

// CategoryTotal aggregates spend or billing per category.
type CategoryTotal struct {
	Category billing.Category `json:"category"`
	Amount   float64          `json:"amount"`
}

// StatusTotal aggregates expense spend per lifecycle status.
type StatusTotal struct {
	Status expenses.ExpenseStatus `json:"status"`
	Amount float64                `json:"amount"`
}

// ExpenseSummary reports event spend against its budget, partitioned by
// expense status alongside the category breakdown.
type ExpenseSummary struct {
	EventID      int64           `json:"event_id"`
	EventName    string          `json:"event_name"`
	Budget       float64         `json:"budget"`
	TotalSpent   float64         `json:"total_spent"`
	TotalPaid    float64         `json:"total_paid"`
	TotalPending float64         `json:"total_pending"`
	TotalOverdue float64         `json:"total_overdue"`
	Deviation    float64         `json:"deviation"`
	DeviationPct float64         `json:"deviation_pct"`
	Alert        bool            `json:"alert"`
	ByCategory   []CategoryTotal `json:"by_category"`
}

// CategoryVariance compares billed income against spend for one category.
type CategoryVariance struct {
	Category billing.Category `json:"category"`
	Income   float64          `json:"income"`
	Spent    float64          `json:"spent"`
	Variance float64          `json:"variance"`
}

// ProfitabilityReport sets invoiced income against expense spend for an event.
// Income counts every non-cancelled invoice total.
type ProfitabilityReport struct {
	EventID          int64              `json:"event_id"`
	EventName        string             `json:"event_name"`
	Income           float64            `json:"income"`
	TotalSpent       float64            `json:"total_spent"`
	Profitability    float64            `json:"profitability"`
	ProfitabilityPct float64            `json:"profitability_pct"`
	ByCategory       []CategoryVariance `json:"by_category"`
}
