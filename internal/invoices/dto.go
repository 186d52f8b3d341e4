package invoices

import (
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
)

type CreateInvoiceRequest struct {
	ClientID     int64                  `json:"client_id" validate:"required,gt=0"`
	EventID      int64                  `json:"event_id" validate:"required,gt=0"`
	Number       string                 `json:"number,omitempty"`
	MarginPct    *float64               `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	DueDate      *time.Time             `json:"due_date,omitempty"`
	Observations *string                `json:"observations,omitempty"`
	Items        []CreateInvoiceItemReq `json:"items,omitempty" validate:"omitempty,dive"`
}

type CreateInvoiceItemReq struct {
	Description string           `json:"description" validate:"required"`
	Category    billing.Category `json:"category" validate:"required"`
	Quantity    float64          `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   float64          `json:"unit_price" validate:"gte=0"`
	Tax         *float64         `json:"tax,omitempty" validate:"omitempty,gte=0"`
	LineOrder   int              `json:"line_order,omitempty" validate:"gte=0"`
}

type UpdateInvoiceItemRequest struct {
	Description *string           `json:"description,omitempty"`
	Category    *billing.Category `json:"category,omitempty"`
	Quantity    *float64          `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *float64          `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Tax         *float64          `json:"tax,omitempty" validate:"omitempty,gte=0"`
	LineOrder   *int              `json:"line_order,omitempty" validate:"omitempty,gte=0"`
}

type UpdateInvoiceRequest struct {
	MarginPct    *float64   `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Observations *string    `json:"observations,omitempty"`
}

type SendInvoiceRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

type MarkPaidRequest struct {
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

type GenerateFromExpensesRequest struct {
	ClientID  *int64   `json:"client_id,omitempty" validate:"omitempty,gt=0"`
	MarginPct *float64 `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type GenerateFromQuoteRequest struct {
	MarginPct *float64 `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type ListInvoicesRequest struct {
	ClientID *int64         `json:"client_id,omitempty"`
	EventID  *int64         `json:"event_id,omitempty"`
	Status   *InvoiceStatus `json:"status,omitempty"`
	Limit    int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int            `json:"offset" validate:"gte=0"`
}

// ItemFailure reports one line item that could not be created during a
// generation workflow. The workflow still returns the invoice built from the
// lines that succeeded.
type ItemFailure struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// GenerationResult is the outcome of a generation workflow.
type GenerationResult struct {
	Invoice      *Invoice      `json:"invoice"`
	ItemFailures []ItemFailure `json:"item_failures,omitempty"`
}
