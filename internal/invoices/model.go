package invoices

import (
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusPending   InvoiceStatus = "PENDING"
	StatusSent      InvoiceStatus = "SENT"
	StatusPaid      InvoiceStatus = "PAID"
	StatusExpired   InvoiceStatus = "EXPIRED"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// Terminal reports whether the invoice admits no further writes. Once PAID or
// CANCELLED the write guard rejects every change.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Invoice is a billing document for a client/event pair, optionally derived
// from an approved quote. total == subtotal + tax + margin_amount always holds
// after a committed recalculation, with tax being the sum of line taxes.
type Invoice struct {
	ID           int64         `json:"id" db:"id"`
	Number       string        `json:"number" db:"number"`
	ClientID     int64         `json:"client_id" db:"client_id"`
	EventID      int64         `json:"event_id" db:"event_id"`
	QuoteID      *int64        `json:"quote_id,omitempty" db:"quote_id"`
	MarginPct    float64       `json:"margin_pct" db:"margin_pct"`
	Subtotal     float64       `json:"subtotal" db:"subtotal"`
	Tax          float64       `json:"tax" db:"tax"`
	MarginAmount float64       `json:"margin_amount" db:"margin_amount"`
	Total        float64       `json:"total" db:"total"`
	Status       InvoiceStatus `json:"status" db:"status"`
	IssueDate    time.Time     `json:"issue_date" db:"issue_date"`
	DueDate      *time.Time    `json:"due_date,omitempty" db:"due_date"`
	PaymentDate  *time.Time    `json:"payment_date,omitempty" db:"payment_date"`
	Observations *string       `json:"observations,omitempty" db:"observations"`
	CreatedBy    int64         `json:"created_by" db:"created_by"`
	ApprovedBy   *int64        `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt   *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	Items        []InvoiceItem `json:"items,omitempty" db:"-"`
}

// InvoiceItem is one priced row belonging to exactly one invoice. Tax is
// carried per line because generated lines may copy individually-sourced tax
// from expenses.
type InvoiceItem struct {
	ID          int64            `json:"id" db:"id"`
	InvoiceID   int64            `json:"invoice_id" db:"invoice_id"`
	Description string           `json:"description" db:"description"`
	Category    billing.Category `json:"category" db:"category"`
	Quantity    float64          `json:"quantity" db:"quantity"`
	UnitPrice   float64          `json:"unit_price" db:"unit_price"`
	Subtotal    float64          `json:"subtotal" db:"subtotal"`
	Tax         float64          `json:"tax" db:"tax"`
	Total       float64          `json:"total" db:"total"`
	LineOrder   int              `json:"line_order" db:"line_order"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
