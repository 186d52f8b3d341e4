package quotes

import (
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
)

// QuoteStatus enumerates quote lifecycle values.
type QuoteStatus string

const (
	StatusDraft    QuoteStatus = "DRAFT"
	StatusPending  QuoteStatus = "PENDING"
	StatusApproved QuoteStatus = "APPROVED"
	StatusRejected QuoteStatus = "REJECTED"
	StatusExpired  QuoteStatus = "EXPIRED"
)

// Terminal reports whether the status ends the lifecycle of this version.
// Further changes go through CreateVersion.
func (s QuoteStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Quote is a priced proposal for a client/event pair. Derived totals always
// satisfy total == subtotal + margin_amount + tax after a committed
// recalculation.
type Quote struct {
	ID                int64       `json:"id" db:"id"`
	Number            string      `json:"number" db:"number"`
	ClientID          int64       `json:"client_id" db:"client_id"`
	EventID           int64       `json:"event_id" db:"event_id"`
	MarginPct         float64     `json:"margin_pct" db:"margin_pct"`
	Subtotal          float64     `json:"subtotal" db:"subtotal"`
	MarginAmount      float64     `json:"margin_amount" db:"margin_amount"`
	Tax               float64     `json:"tax" db:"tax"`
	Total             float64     `json:"total" db:"total"`
	Status            QuoteStatus `json:"status" db:"status"`
	Version           int         `json:"version" db:"version"`
	PreviousVersionID *int64      `json:"previous_version_id,omitempty" db:"previous_version_id"`
	Observations      *string     `json:"observations,omitempty" db:"observations"`
	SentAt            *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	DueDate           *time.Time  `json:"due_date,omitempty" db:"due_date"`
	CreatedBy         int64       `json:"created_by" db:"created_by"`
	ApprovedBy        *int64      `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt        *time.Time  `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy        *int64      `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt        *time.Time  `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason   *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
	Items             []QuoteItem `json:"items,omitempty" db:"-"`
}

// QuoteItem is one priced row belonging to exactly one quote.
type QuoteItem struct {
	ID          int64            `json:"id" db:"id"`
	QuoteID     int64            `json:"quote_id" db:"quote_id"`
	ProviderID  int64            `json:"provider_id" db:"provider_id"`
	Description string           `json:"description" db:"description"`
	Category    billing.Category `json:"category" db:"category"`
	Quantity    float64          `json:"quantity" db:"quantity"`
	Unit        string           `json:"unit" db:"unit"`
	UnitPrice   float64          `json:"unit_price" db:"unit_price"`
	Subtotal    float64          `json:"subtotal" db:"subtotal"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
