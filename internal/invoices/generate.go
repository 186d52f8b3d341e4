package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/quotes"
	"github.com/encore-erp/encore-erp/internal/shared"
)

// ErrQuoteNotApproved rejects generation from a quote that has not been
// approved.
var ErrQuoteNotApproved = fmt.Errorf("%w: quote is not approved", shared.ErrInvalidTransition)

// QuoteSource loads quotes for the from-quote generation workflow.
type QuoteSource interface {
	Get(ctx context.Context, id int64) (*quotes.Quote, error)
}

// GenerateFromExpenses synthesizes a draft invoice from the event's
// non-cancelled expenses: one line per expense with amount and tax copied 1:1
// and quantity 1. Margin is not applied unless the caller passes one. If the
// invoice itself cannot be created nothing is persisted; an individual line
// failure is collected and the invoice is recalculated from whatever
// succeeded.
func (s *Service) GenerateFromExpenses(ctx context.Context, eventID int64, req GenerateFromExpensesRequest, actorID int64) (*GenerationResult, error) {
	event, err := s.dir.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("verify event: %w", err)
	}

	expenseList, err := s.expenseRepo.ListActiveByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if len(expenseList) == 0 {
		return nil, fmt.Errorf("%w: event %d has no billable expenses", shared.ErrValidation, eventID)
	}

	clientID := int64(0)
	switch {
	case req.ClientID != nil:
		clientID = *req.ClientID
		if _, err := s.dir.GetClient(ctx, clientID); err != nil {
			return nil, fmt.Errorf("verify client: %w", err)
		}
	case event.ClientID != nil:
		clientID = *event.ClientID
	default:
		return nil, fmt.Errorf("%w: no client supplied and event %d has none", shared.ErrReferenceNotFound, eventID)
	}

	marginPct := 0.0
	if req.MarginPct != nil {
		marginPct = *req.MarginPct
	}

	if err := s.checkIdempotency(ctx, fmt.Sprintf("expenses:%d", eventID)); err != nil {
		return nil, err
	}

	number, err := s.repo.GenerateNumber(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate invoice number: %w", err)
	}

	invoiceID, err := s.repo.Create(ctx, Invoice{
		Number:    number,
		ClientID:  clientID,
		EventID:   eventID,
		MarginPct: marginPct,
		Status:    StatusDraft,
		IssueDate: time.Now(),
		CreatedBy: actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	var failures []ItemFailure
	for i, exp := range expenseList {
		item := InvoiceItem{
			InvoiceID:   invoiceID,
			Description: exp.Description,
			Category:    billing.Category(exp.Category),
			Quantity:    1,
			UnitPrice:   exp.Amount,
			Subtotal:    billing.Round2(exp.Amount),
			Tax:         billing.Round2(exp.Tax),
			Total:       billing.Round2(exp.Amount + exp.Tax),
			LineOrder:   i + 1,
		}
		if !billing.ValidInvoiceCategory(item.Category) {
			item.Category = billing.CategoryOther
		}
		if _, err := s.repo.InsertItem(ctx, item); err != nil {
			failures = append(failures, ItemFailure{Description: exp.Description, Reason: err.Error()})
		}
	}

	if _, err := s.Recalculate(ctx, invoiceID); err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.generate.expenses", invoiceID, nil, map[string]any{"event_id": eventID, "lines": len(expenseList) - len(failures)})
	invoice, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &GenerationResult{Invoice: invoice, ItemFailures: failures}, nil
}

// GenerateFromQuote turns an approved quote into a draft invoice carrying the
// quote's client, event and margin (margin overridable). Each quote line
// becomes an invoice line; quote lines carry no explicit tax, so line tax
// defaults to subtotal x the fixed rate.
func (s *Service) GenerateFromQuote(ctx context.Context, quoteID int64, req GenerateFromQuoteRequest, actorID int64) (*GenerationResult, error) {
	quote, err := s.quoteSource.Get(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status != quotes.StatusApproved {
		return nil, fmt.Errorf("%w (status %s)", ErrQuoteNotApproved, quote.Status)
	}

	marginPct := quote.MarginPct
	if req.MarginPct != nil {
		marginPct = *req.MarginPct
	}

	if err := s.checkIdempotency(ctx, fmt.Sprintf("quote:%d", quoteID)); err != nil {
		return nil, err
	}

	number, err := s.repo.GenerateNumber(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate invoice number: %w", err)
	}

	qID := quote.ID
	invoiceID, err := s.repo.Create(ctx, Invoice{
		Number:    number,
		ClientID:  quote.ClientID,
		EventID:   quote.EventID,
		QuoteID:   &qID,
		MarginPct: marginPct,
		Status:    StatusDraft,
		IssueDate: time.Now(),
		CreatedBy: actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	var failures []ItemFailure
	for i, line := range quote.Items {
		item := InvoiceItem{
			InvoiceID:   invoiceID,
			Description: line.Description,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
			Tax:         billing.LineTax(line.Subtotal),
			Total:       billing.Round2(line.Subtotal + billing.LineTax(line.Subtotal)),
			LineOrder:   i + 1,
		}
		if _, err := s.repo.InsertItem(ctx, item); err != nil {
			failures = append(failures, ItemFailure{Description: line.Description, Reason: err.Error()})
		}
	}

	if _, err := s.Recalculate(ctx, invoiceID); err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.generate.quote", invoiceID, nil, map[string]any{"quote_id": quoteID, "lines": len(quote.Items) - len(failures)})
	invoice, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &GenerationResult{Invoice: invoice, ItemFailures: failures}, nil
}

// checkIdempotency guards a generation request against duplicate submission.
// Requests without an explicit key get a fresh one, which always passes.
func (s *Service) checkIdempotency(ctx context.Context, scope string) error {
	key := shared.IdempotencyKeyFromContext(ctx)
	if key == "" {
		key = uuid.NewString()
	}
	if err := s.idempotency.CheckAndInsert(ctx, scope+":"+key, "invoices.generate"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return fmt.Errorf("%w: generation already processed", shared.ErrValidation)
		}
		return err
	}
	return nil
}
