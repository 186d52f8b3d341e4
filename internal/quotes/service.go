package quotes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/shared"
)

const defaultMarginPct = 20

// Service implements the quote aggregate: creation, line-item mutations with
// in-transaction recalculation, the state machine and version chaining.
type Service struct {
	repo  Repository
	dir   directory.Repository
	audit *shared.AuditLogger
}

// NewService builds a Service instance.
func NewService(repo Repository, dir directory.Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, dir: dir, audit: audit}
}

// Create validates references, persists the quote with its items in one
// transaction and returns the populated aggregate. If any item's provider is
// missing the whole call fails before anything is written.
func (s *Service) Create(ctx context.Context, req CreateQuoteRequest, createdBy int64) (*Quote, error) {
	if createdBy == 0 {
		return nil, fmt.Errorf("%w: creator required", shared.ErrValidation)
	}
	marginPct := float64(defaultMarginPct)
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

	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	number := req.Number
	if number == "" {
		number, err = s.repo.GenerateNumber(ctx, time.Now())
		if err != nil {
			return nil, fmt.Errorf("generate quote number: %w", err)
		}
	}

	var subtotal float64
	for _, it := range items {
		subtotal += it.Subtotal
	}
	subtotal = billing.Round2(subtotal)
	marginAmount, tax, total := billing.QuoteTotals(subtotal, marginPct)

	quote := Quote{
		Number:       number,
		ClientID:     req.ClientID,
		EventID:      req.EventID,
		MarginPct:    marginPct,
		Subtotal:     subtotal,
		MarginAmount: marginAmount,
		Tax:          tax,
		Total:        total,
		Status:       StatusDraft,
		Version:      1,
		Observations: req.Observations,
		CreatedBy:    createdBy,
	}

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, quote)
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		quoteID = id
		for _, it := range items {
			it.QuoteID = quoteID
			if _, err := repo.InsertItem(ctx, it); err != nil {
				return fmt.Errorf("insert quote item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, createdBy, "quote.create", quoteID, nil, map[string]any{"number": number, "total": total})
	return s.repo.Get(ctx, quoteID)
}

// AddItem appends a line item and recalculates the parent quote before
// returning.
func (s *Service) AddItem(ctx context.Context, quoteID int64, req CreateQuoteItemReq, actorID int64) (*Quote, error) {
	quote, err := s.editableQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	item, err := s.buildItem(ctx, req)
	if err != nil {
		return nil, err
	}
	item.QuoteID = quote.ID

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
		return recalcTx(ctx, repo, quote.ID, quote.MarginPct)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "quote.item.add", quote.ID, nil, map[string]any{"description": item.Description})
	return s.repo.Get(ctx, quote.ID)
}

// UpdateItem patches a line item and recalculates the parent quote.
func (s *Service) UpdateItem(ctx context.Context, quoteID, itemID int64, req UpdateQuoteItemRequest, actorID int64) (*Quote, error) {
	quote, err := s.editableQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, quoteID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get quote item: %w", err)
	}
	before := map[string]any{"quantity": item.Quantity, "unit_price": item.UnitPrice}

	if req.ProviderID != nil {
		if _, err := s.dir.GetProvider(ctx, *req.ProviderID); err != nil {
			return nil, fmt.Errorf("verify provider: %w", err)
		}
		item.ProviderID = *req.ProviderID
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Category != nil {
		if !billing.ValidQuoteCategory(*req.Category) {
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
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: unit_price must not be negative", shared.ErrValidation)
		}
		item.UnitPrice = *req.UnitPrice
	}
	item.Subtotal = billing.LineSubtotal(item.Quantity, item.UnitPrice)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateItem(ctx, *item); err != nil {
			return fmt.Errorf("update quote item: %w", err)
		}
		return recalcTx(ctx, repo, quote.ID, quote.MarginPct)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "quote.item.update", quote.ID, before, map[string]any{"quantity": item.Quantity, "unit_price": item.UnitPrice})
	return s.repo.Get(ctx, quote.ID)
}

// RemoveItem deletes a line item and recalculates the parent quote.
func (s *Service) RemoveItem(ctx context.Context, quoteID, itemID int64, actorID int64) (*Quote, error) {
	quote, err := s.editableQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetItem(ctx, quoteID, itemID); err != nil {
		return nil, fmt.Errorf("get quote item: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.DeleteItem(ctx, quoteID, itemID); err != nil {
			return fmt.Errorf("delete quote item: %w", err)
		}
		return recalcTx(ctx, repo, quote.ID, quote.MarginPct)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, "quote.item.remove", quote.ID, map[string]any{"item_id": itemID}, nil)
	return s.repo.Get(ctx, quote.ID)
}

// Send moves the quote to PENDING, stamping the send date and optional due
// date. Legal from DRAFT or PENDING.
func (s *Service) Send(ctx context.Context, id int64, req SendQuoteRequest, actorID int64) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status != StatusDraft && quote.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot send a %s quote", shared.ErrInvalidTransition, quote.Status)
	}
	if err := s.repo.MarkSent(ctx, id, time.Now(), req.DueDate); err != nil {
		return nil, fmt.Errorf("send quote: %w", err)
	}
	s.record(ctx, actorID, "quote.send", id, map[string]any{"status": quote.Status}, map[string]any{"status": StatusPending})
	return s.repo.Get(ctx, id)
}

// Approve finalises a PENDING quote, stamping approver and approval date.
func (s *Service) Approve(ctx context.Context, id int64, approverID int64) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status != StatusPending {
		return nil, fmt.Errorf("%w: can only approve PENDING quotes, got %s", shared.ErrInvalidTransition, quote.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusApproved, approverID, nil); err != nil {
		return nil, fmt.Errorf("approve quote: %w", err)
	}
	after := map[string]any{"status": StatusApproved}
	if emp, err := s.dir.GetEmployee(ctx, approverID); err == nil {
		after["approved_by_name"] = emp.FullName
	}
	s.record(ctx, approverID, "quote.approve", id, map[string]any{"status": quote.Status}, after)
	return s.repo.Get(ctx, id)
}

// Reject rejects a PENDING quote.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64, reason string) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status != StatusPending {
		return nil, fmt.Errorf("%w: can only reject PENDING quotes, got %s", shared.ErrInvalidTransition, quote.Status)
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusRejected, actorID, reasonPtr); err != nil {
		return nil, fmt.Errorf("reject quote: %w", err)
	}
	s.record(ctx, actorID, "quote.reject", id, map[string]any{"status": quote.Status}, map[string]any{"status": StatusRejected})
	return s.repo.Get(ctx, id)
}

// CreateVersion produces a brand-new quote superseding the source: fresh
// number, version+1, previous_version_id pointing at the source. The source is
// never mutated. Two concurrent calls on the same source may both succeed,
// producing two branches.
func (s *Service) CreateVersion(ctx context.Context, sourceID int64, req CreateVersionRequest, createdBy int64) (*Quote, error) {
	source, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source quote: %w", err)
	}

	marginPct := source.MarginPct
	if req.MarginPct != nil {
		marginPct = *req.MarginPct
	}
	if marginPct < 0 || marginPct > 100 {
		return nil, fmt.Errorf("%w: margin_pct must be between 0 and 100", shared.ErrValidation)
	}
	observations := source.Observations
	if req.Observations != nil {
		observations = req.Observations
	}

	var items []QuoteItem
	if req.Items != nil {
		items, err = s.buildItems(ctx, *req.Items)
		if err != nil {
			return nil, err
		}
	} else {
		existing, err := s.repo.ListItems(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("list source items: %w", err)
		}
		for _, it := range existing {
			items = append(items, QuoteItem{
				ProviderID:  it.ProviderID,
				Description: it.Description,
				Category:    it.Category,
				Quantity:    it.Quantity,
				Unit:        it.Unit,
				UnitPrice:   it.UnitPrice,
				Subtotal:    it.Subtotal,
			})
		}
	}

	number, err := s.repo.GenerateNumber(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate quote number: %w", err)
	}

	var subtotal float64
	for _, it := range items {
		subtotal += it.Subtotal
	}
	subtotal = billing.Round2(subtotal)
	marginAmount, tax, total := billing.QuoteTotals(subtotal, marginPct)

	prevID := source.ID
	next := Quote{
		Number:            number,
		ClientID:          source.ClientID,
		EventID:           source.EventID,
		MarginPct:         marginPct,
		Subtotal:          subtotal,
		MarginAmount:      marginAmount,
		Tax:               tax,
		Total:             total,
		Status:            StatusDraft,
		Version:           source.Version + 1,
		PreviousVersionID: &prevID,
		Observations:      observations,
		CreatedBy:         createdBy,
	}

	var nextID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, next)
		if err != nil {
			return fmt.Errorf("create quote version: %w", err)
		}
		nextID = id
		for _, it := range items {
			it.QuoteID = nextID
			if _, err := repo.InsertItem(ctx, it); err != nil {
				return fmt.Errorf("insert quote item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, createdBy, "quote.version", nextID, map[string]any{"source": source.ID}, map[string]any{"version": next.Version})
	return s.repo.Get(ctx, nextID)
}

// GetHistory walks the previous-version chain and returns versions ordered
// oldest first. A dangling reference or a cycle terminates the walk instead of
// looping.
func (s *Service) GetHistory(ctx context.Context, id int64) ([]Quote, error) {
	var chain []Quote
	visited := make(map[int64]bool)

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	for current != nil && !visited[current.ID] {
		visited[current.ID] = true
		chain = append(chain, *current)
		if current.PreviousVersionID == nil {
			break
		}
		prev, err := s.repo.Get(ctx, *current.PreviousVersionID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("walk quote history: %w", err)
		}
		current = prev
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Recalculate re-derives totals from current line items and persists them.
// Idempotent: with no intervening mutation a second call stores identical
// values, so it is always safe to retry.
func (s *Service) Recalculate(ctx context.Context, id int64) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return recalcTx(ctx, repo, quote.ID, quote.MarginPct)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ExpireOverdue flips PENDING quotes whose due date has passed to EXPIRED.
// The predicate is monotonic, so concurrent sweeps converge.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.repo.ExpireOverdue(ctx, time.Now())
}

// Get returns the populated quote.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber looks the quote up by its document number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns quotes matching the filter plus the total count.
func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) editableQuote(ctx context.Context, id int64) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status.Terminal() {
		return nil, fmt.Errorf("%w: quote %s is %s, create a new version instead", shared.ErrTerminalState, quote.Number, quote.Status)
	}
	return quote, nil
}

// buildItems validates every item before any persistence. All-or-nothing: the
// first missing provider or bad field aborts the whole batch.
func (s *Service) buildItems(ctx context.Context, reqs []CreateQuoteItemReq) ([]QuoteItem, error) {
	var items []QuoteItem
	for _, req := range reqs {
		item, err := s.buildItem(ctx, req)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) buildItem(ctx context.Context, req CreateQuoteItemReq) (QuoteItem, error) {
	if req.Quantity <= 0 {
		return QuoteItem{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if req.UnitPrice < 0 {
		return QuoteItem{}, fmt.Errorf("%w: unit_price must not be negative", shared.ErrValidation)
	}
	if !billing.ValidQuoteCategory(req.Category) {
		return QuoteItem{}, fmt.Errorf("%w: unknown category %q", shared.ErrValidation, req.Category)
	}
	if _, err := s.dir.GetProvider(ctx, req.ProviderID); err != nil {
		return QuoteItem{}, fmt.Errorf("verify provider: %w", err)
	}
	unit := req.Unit
	if unit == "" {
		unit = "unit"
	}
	return QuoteItem{
		ProviderID:  req.ProviderID,
		Description: req.Description,
		Category:    req.Category,
		Quantity:    req.Quantity,
		Unit:        unit,
		UnitPrice:   req.UnitPrice,
		Subtotal:    billing.LineSubtotal(req.Quantity, req.UnitPrice),
	}, nil
}

func recalcTx(ctx context.Context, repo Repository, quoteID int64, marginPct float64) error {
	items, err := repo.ListItems(ctx, quoteID)
	if err != nil {
		return fmt.Errorf("list quote items: %w", err)
	}
	var subtotal float64
	for _, it := range items {
		subtotal += it.Subtotal
	}
	subtotal = billing.Round2(subtotal)
	marginAmount, tax, total := billing.QuoteTotals(subtotal, marginPct)
	if err := repo.UpdateTotals(ctx, quoteID, subtotal, marginAmount, tax, total); err != nil {
		return fmt.Errorf("update quote totals: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, quoteID int64, before, after map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quote",
		EntityID: strconv.FormatInt(quoteID, 10),
		Before:   before,
		After:    after,
		At:       time.Now(),
	})
}
