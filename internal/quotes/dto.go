package quotes

import (
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
)

type CreateQuoteRequest struct {
	ClientID     int64                  `json:"client_id" validate:"required,gt=0"`
	EventID      int64                  `json:"event_id" validate:"required,gt=0"`
	Number       string                 `json:"number,omitempty"`
	MarginPct    *float64               `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	Observations *string                `json:"observations,omitempty"`
	Items        []CreateQuoteItemReq   `json:"items,omitempty" validate:"omitempty,dive"`
}

type CreateQuoteItemReq struct {
	ProviderID  int64            `json:"provider_id" validate:"required,gt=0"`
	Description string           `json:"description" validate:"required"`
	Category    billing.Category `json:"category" validate:"required"`
	Quantity    float64          `json:"quantity" validate:"required,gt=0"`
	Unit        string           `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPrice   float64          `json:"unit_price" validate:"gte=0"`
}

type UpdateQuoteItemRequest struct {
	ProviderID  *int64            `json:"provider_id,omitempty" validate:"omitempty,gt=0"`
	Description *string           `json:"description,omitempty"`
	Category    *billing.Category `json:"category,omitempty"`
	Quantity    *float64          `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Unit        *string           `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPrice   *float64          `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}

type SendQuoteRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

type RejectQuoteRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateVersionRequest overrides fields on the new version; unspecified fields
// are copied from the source quote.
type CreateVersionRequest struct {
	MarginPct    *float64              `json:"margin_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	Observations *string               `json:"observations,omitempty"`
	Items        *[]CreateQuoteItemReq `json:"items,omitempty" validate:"omitempty,dive"`
}

type ListQuotesRequest struct {
	ClientID *int64       `json:"client_id,omitempty"`
	EventID  *int64       `json:"event_id,omitempty"`
	Status   *QuoteStatus `json:"status,omitempty"`
	Limit    int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int          `json:"offset" validate:"gte=0"`
}
