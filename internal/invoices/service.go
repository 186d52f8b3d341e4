package invoices

import (
	"context"
	"fmt"
	"strconv"
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/expenses"
	"github.com/encore-erp/encore-erp/internal/shared"
)

// ReportInvalidator bumps the reporting cache version after billing writes.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service implements the invoice aggregate: creation, line-item mutations with
// in-transaction recalculation, the state machine with its terminal-state
// write guard, and the two generation workflows.
type Service struct {
	repo        Repository
	dir         directory.Repository
	expenseRepo expenses.Repository
	quoteSource QuoteSource
	idempotency *shared.IdempotencyStore
	audit       *shared.AuditLogger
	reports     ReportInvalidator
}

// SetReportInvalidator wires the reporting cache so committed invoice writes
// invalidate stale aggregates.
func (s *Service) SetReportInvalidator(inv ReportInvalidator) {
	s.reports = inv
}

// NewService builds a Service instance.
func NewService(repo Repository, dir directory.Repository, expenseRepo expenses.Repository, quoteSource QuoteSource, idempotency *shared.IdempotencyStore, audit *shared.AuditLogger) *Service {
	return &Service{
		repo:        repo,
		dir:         dir,
		expenseRepo: expenseRepo,
		quoteSource: quoteSource,
		idempotency: idempotency,
		audit:       audit,
	}
}

// Create validates references and persists the invoice with its items in one
// transaction.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest, createdBy int64) (*Invoice, error) {
	if createdBy == 0 {
		return nil, fmt.Errorf("%w: creator required", shared.ErrValidation)
	}
	marginPct := 0.0
	if req.MarginPct != nil {
		marginPct = *req.MarginPct
	}
	if marginPct < 0 || marginPct > 100 {
		return nil, fmt.Errorf("%w: margin_pct must be between 0 and 100", shared.ErrValidation)
	}

	if _, err := s.dir.GetClient(ctx, req.ClientID); err != nil {
		return nil, fmt.Errorf("verify client: %w", err)
	}
	if _, err := s.dir.GetEvent(ctx, req.EventID); err != nil {
		return nil, fmt.Errorf("verify event: %w", err)
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	number := req.Number
	if number == "" {
		number, err = s.repo.GenerateNumber(ctx, time.Now())
		if err != nil {
			return nil, fmt.Errorf("generate invoice number: %w", err)
		}
	}

	invoice := Invoice{
		Number:       number,
		ClientID:     req.ClientID,
		EventID:      req.EventID,
		MarginPct:    marginPct,
		Status:       StatusDraft,
		IssueDate:    time.Now(),
		DueDate:      req.DueDate,
		Observations: req.Observations,
		CreatedBy:    createdBy,
	}
	applyDerived(&invoice, items)

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, invoice)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id
		for _, it := range items {
			it.InvoiceID = invoiceID
			if _, err := repo.InsertItem(ctx, it); err != nil {
				return fmt.Errorf("insert invoice item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, createdBy, "invoice.create", invoiceID, nil, map[string]any{"number": number, "total": invoice.Total})
	return s.repo.Get(ctx, invoiceID)
}

// Update patches header fields. Rejected with ErrTerminalState on paid or
// cancelled invoices, leaving every field unchanged.
func (s *Service) Update(ctx context.Context, id int64, req UpdateInvoiceRequest, actorID int64) (*Invoice, error) {
	invoice, err := s.writableInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MarginPct != nil && (*req.MarginPct < 0 || *req.MarginPct > 100) {
		return nil, fmt.Errorf("%w: margin_pct must be between 0 and 100", shared.ErrValidation)
	}

	before := map[string]any{"margin_pct": invoice.MarginPct}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateHeader(ctx, id, req); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		marginPct := invoice.MarginPct
		if req.MarginPct != nil {
			marginPct = *req.MarginPct
		}
		return recalcTx(ctx, repo, id, marginPct, invoice.MarginAmount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.update", id, before, map[string]any{"margin_pct": req.MarginPct})
	return s.repo.Get(ctx, id)
}

// AddItem appends a line item and recalculates the invoice before returning.
func (s *Service) AddItem(ctx context.Context, invoiceID int64, req CreateInvoiceItemReq, actorID int64) (*Invoice, error) {
	invoice, err := s.writableInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	item, err := buildItem(req)
	if err != nil {
		return nil, err
	}
	item.InvoiceID = invoice.ID

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
		return recalcTx(ctx, repo, invoice.ID, invoice.MarginPct, invoice.MarginAmount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.item.add", invoice.ID, nil, map[string]any{"description": item.Description})
	return s.repo.Get(ctx, invoice.ID)
}

// UpdateItem patches a line item and recalculates the invoice.
func (s *Service) UpdateItem(ctx context.Context, invoiceID, itemID int64, req UpdateInvoiceItemRequest, actorID int64) (*Invoice, error) {
	invoice, err := s.writableInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, invoiceID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get invoice item: %w", err)
	}
	before := map[string]any{"quantity": item.Quantity, "unit_price": item.UnitPrice, "tax": item.Tax}

	explicitTax := req.Tax != nil
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Category != nil {
		if !billing.ValidInvoiceCategory(*req.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", shared.ErrValidation, *req.Category)
		}
		item.Category = *req.Category
	}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
		}
		item.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: unit_price must not be negative", shared.ErrValidation)
		}
		item.UnitPrice = *req.UnitPrice
	}
	if req.LineOrder != nil {
		item.LineOrder = *req.LineOrder
	}
	item.Subtotal = billing.LineSubtotal(item.Quantity, item.UnitPrice)
	if explicitTax {
		item.Tax = billing.Round2(*req.Tax)
	} else if req.Quantity != nil || req.UnitPrice != nil {
		item.Tax = billing.LineTax(item.Subtotal)
	}
	item.Total = billing.Round2(item.Subtotal + item.Tax)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateItem(ctx, *item); err != nil {
			return fmt.Errorf("update invoice item: %w", err)
		}
		return recalcTx(ctx, repo, invoice.ID, invoice.MarginPct, invoice.MarginAmount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.item.update", invoice.ID, before, map[string]any{"quantity": item.Quantity, "unit_price": item.UnitPrice, "tax": item.Tax})
	return s.repo.Get(ctx, invoice.ID)
}

// RemoveItem deletes a line item and recalculates the invoice.
func (s *Service) RemoveItem(ctx context.Context, invoiceID, itemID int64, actorID int64) (*Invoice, error) {
	invoice, err := s.writableInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetItem(ctx, invoiceID, itemID); err != nil {
		return nil, fmt.Errorf("get invoice item: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.DeleteItem(ctx, invoiceID, itemID); err != nil {
			return fmt.Errorf("delete invoice item: %w", err)
		}
		return recalcTx(ctx, repo, invoice.ID, invoice.MarginPct, invoice.MarginAmount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "invoice.item.remove", invoice.ID, map[string]any{"item_id": itemID}, nil)
	return s.repo.Get(ctx, invoice.ID)
}

// Send moves a DRAFT or PENDING invoice to SENT, stamping the approver and
// approval date. In the billing workflow this means "send to client", not
// settlement.
func (s *Service) Send(ctx context.Context, id int64, req SendInvoiceRequest, actorID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Status != StatusDraft && invoice.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot send a %s invoice", shared.ErrInvalidTransition, invoice.Status)
	}
	if err := s.repo.MarkSent(ctx, id, actorID, time.Now(), req.DueDate); err != nil {
		return nil, fmt.Errorf("send invoice: %w", err)
	}
	s.record(ctx, actorID, "invoice.send", id, map[string]any{"status": invoice.Status}, map[string]any{"status": StatusSent})
	return s.repo.Get(ctx, id)
}

// MarkPaid settles the invoice from any non-terminal state, stamping the
// payment date. Re-marking a paid invoice is rejected.
func (s *Service) MarkPaid(ctx context.Context, id int64, req MarkPaidRequest, actorID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Status.Terminal() {
		return nil, fmt.Errorf("%w: invoice %s is already %s", shared.ErrTerminalState, invoice.Number, invoice.Status)
	}
	paymentDate := time.Now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}
	if err := s.repo.MarkPaid(ctx, id, paymentDate); err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	s.record(ctx, actorID, "invoice.pay", id, map[string]any{"status": invoice.Status}, map[string]any{"status": StatusPaid})
	return s.repo.Get(ctx, id)
}

// Cancel moves a non-terminal invoice to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Status.Terminal() {
		return nil, fmt.Errorf("%w: invoice %s is already %s", shared.ErrTerminalState, invoice.Number, invoice.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	s.record(ctx, actorID, "invoice.cancel", id, map[string]any{"status": invoice.Status}, map[string]any{"status": StatusCancelled})
	return s.repo.Get(ctx, id)
}

// Recalculate re-derives totals from current line items: subtotal and tax are
// line sums, margin follows the percentage rule. Idempotent and safe to retry.
func (s *Service) Recalculate(ctx context.Context, id int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return recalcTx(ctx, repo, invoice.ID, invoice.MarginPct, invoice.MarginAmount)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return s.repo.Get(ctx, id)
}

// ExpireOverdue flips SENT and PENDING invoices whose due date has passed to
// EXPIRED. Monotonic, safe to run concurrently.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.repo.ExpireOverdue(ctx, time.Now())
}

// Get returns the populated invoice.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber looks the invoice up by its document number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns invoices matching the filter plus the total count.
func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) writableInvoice(ctx context.Context, id int64) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Status.Terminal() {
		return nil, fmt.Errorf("%w: invoice %s is %s", shared.ErrTerminalState, invoice.Number, invoice.Status)
	}
	return invoice, nil
}

func buildItems(reqs []CreateInvoiceItemReq) ([]InvoiceItem, error) {
	var items []InvoiceItem
	for i, req := range reqs {
		item, err := buildItem(req)
		if err != nil {
			return nil, err
		}
		if item.LineOrder == 0 {
			item.LineOrder = i + 1
		}
		items = append(items, item)
	}
	return items, nil
}

func buildItem(req CreateInvoiceItemReq) (InvoiceItem, error) {
	if !billing.ValidInvoiceCategory(req.Category) {
		return InvoiceItem{}, fmt.Errorf("%w: unknown category %q", shared.ErrValidation, req.Category)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return InvoiceItem{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if req.UnitPrice < 0 {
		return InvoiceItem{}, fmt.Errorf("%w: unit_price must not be negative", shared.ErrValidation)
	}
	subtotal := billing.LineSubtotal(quantity, req.UnitPrice)
	tax := billing.LineTax(subtotal)
	if req.Tax != nil {
		tax = billing.Round2(*req.Tax)
	}
	return InvoiceItem{
		Description: req.Description,
		Category:    req.Category,
		Quantity:    quantity,
		UnitPrice:   req.UnitPrice,
		Subtotal:    subtotal,
		Tax:         tax,
		Total:       billing.Round2(subtotal + tax),
		LineOrder:   req.LineOrder,
	}, nil
}

func applyDerived(inv *Invoice, items []InvoiceItem) {
	var subtotal, taxSum float64
	for _, it := range items {
		subtotal += it.Subtotal
		taxSum += it.Tax
	}
	subtotal = billing.Round2(subtotal)
	margin, tax, total := billing.InvoiceTotals(subtotal, taxSum, inv.MarginPct, inv.MarginAmount)
	inv.Subtotal = subtotal
	inv.Tax = tax
	inv.MarginAmount = margin
	inv.Total = total
}

func recalcTx(ctx context.Context, repo Repository, invoiceID int64, marginPct, storedMargin float64) error {
	items, err := repo.ListItems(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("list invoice items: %w", err)
	}
	var subtotal, taxSum float64
	for _, it := range items {
		subtotal += it.Subtotal
		taxSum += it.Tax
	}
	subtotal = billing.Round2(subtotal)
	margin, tax, total := billing.InvoiceTotals(subtotal, taxSum, marginPct, storedMargin)
	if err := repo.UpdateTotals(ctx, invoiceID, subtotal, tax, margin, total); err != nil {
		return fmt.Errorf("update invoice totals: %w", err)
	}
	return nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	_ = s.reports.Invalidate(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, invoiceID int64, before, after map[string]any) {
	s.invalidateReports(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Before:   before,
		After:    after,
		At:       time.Now(),
	})
}
