package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/expenses"
	"github.com/encore-erp/encore-erp/internal/quotes"
	"github.com/encore-erp/encore-erp/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices   map[int64]*Invoice
	items      map[int64][]InvoiceItem
	nextID     int64
	nextItemID int64
	seq        int64

	// failItemDesc makes InsertItem fail for a matching description.
	failItemDesc string
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{
		invoices: make(map[int64]*Invoice),
		items:    make(map[int64][]InvoiceItem),
	}
}

func (r *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *inv
	clone.Items = append([]InvoiceItem(nil), r.items[id]...)
	return &clone, nil
}

func (r *memoryInvoiceRepo) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	for id, inv := range r.invoices {
		if inv.Number == number {
			return r.Get(ctx, id)
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryInvoiceRepo) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if req.Status != nil && inv.Status != *req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryInvoiceRepo) Create(ctx context.Context, inv Invoice) (int64, error) {
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = time.Now()
	r.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (r *memoryInvoiceRepo) UpdateTotals(ctx context.Context, id int64, subtotal, tax, marginAmount, total float64) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Subtotal = subtotal
	inv.Tax = tax
	inv.MarginAmount = marginAmount
	inv.Total = total
	return nil
}

func (r *memoryInvoiceRepo) UpdateHeader(ctx context.Context, id int64, req UpdateInvoiceRequest) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	if req.MarginPct != nil {
		inv.MarginPct = *req.MarginPct
	}
	if req.DueDate != nil {
		inv.DueDate = req.DueDate
	}
	if req.Observations != nil {
		inv.Observations = req.Observations
	}
	return nil
}

func (r *memoryInvoiceRepo) MarkSent(ctx context.Context, id int64, actorID int64, sentAt time.Time, dueDate *time.Time) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = StatusSent
	if actorID != 0 {
		inv.ApprovedBy = &actorID
	}
	inv.ApprovedAt = &sentAt
	if dueDate != nil {
		inv.DueDate = dueDate
	}
	return nil
}

func (r *memoryInvoiceRepo) MarkPaid(ctx context.Context, id int64, paymentDate time.Time) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = StatusPaid
	inv.PaymentDate = &paymentDate
	return nil
}

func (r *memoryInvoiceRepo) UpdateStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = status
	return nil
}

func (r *memoryInvoiceRepo) InsertItem(ctx context.Context, item InvoiceItem) (int64, error) {
	if r.failItemDesc != "" && item.Description == r.failItemDesc {
		return 0, fmt.Errorf("insert item %q: value too long", item.Description)
	}
	r.nextItemID++
	item.ID = r.nextItemID
	r.items[item.InvoiceID] = append(r.items[item.InvoiceID], item)
	return item.ID, nil
}

func (r *memoryInvoiceRepo) UpdateItem(ctx context.Context, item InvoiceItem) error {
	list := r.items[item.InvoiceID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = item
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryInvoiceRepo) DeleteItem(ctx context.Context, invoiceID, itemID int64) error {
	list := r.items[invoiceID]
	for i := range list {
		if list[i].ID == itemID {
			r.items[invoiceID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryInvoiceRepo) GetItem(ctx context.Context, invoiceID, itemID int64) (*InvoiceItem, error) {
	for _, it := range r.items[invoiceID] {
		if it.ID == itemID {
			clone := it
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryInvoiceRepo) ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	return append([]InvoiceItem(nil), r.items[invoiceID]...), nil
}

func (r *memoryInvoiceRepo) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	r.seq++
	return fmt.Sprintf("FC-%s-%06d", date.Format("2006"), r.seq), nil
}

func (r *memoryInvoiceRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, inv := range r.invoices {
		if (inv.Status == StatusSent || inv.Status == StatusPending) && inv.DueDate != nil && inv.DueDate.Before(now) {
			inv.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

type memoryDirectory struct {
	clients map[int64]*directory.Client
	events  map[int64]*directory.Event
}

func newMemoryDirectory() *memoryDirectory {
	eventClient := int64(1)
	return &memoryDirectory{
		clients: map[int64]*directory.Client{1: {ID: 1, Name: "Acme Events"}, 2: {ID: 2, Name: "Beta Corp"}},
		events:  map[int64]*directory.Event{1: {ID: 1, Name: "Summer Gala", ClientID: &eventClient, Budget: 5000}},
	}
}

func (d *memoryDirectory) GetClient(ctx context.Context, id int64) (*directory.Client, error) {
	c, ok := d.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d", shared.ErrReferenceNotFound, id)
	}
	return c, nil
}

func (d *memoryDirectory) GetEvent(ctx context.Context, id int64) (*directory.Event, error) {
	e, ok := d.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", shared.ErrReferenceNotFound, id)
	}
	return e, nil
}

func (d *memoryDirectory) GetProvider(ctx context.Context, id int64) (*directory.Provider, error) {
	return &directory.Provider{ID: id, Name: "Provider"}, nil
}

func (d *memoryDirectory) GetEmployee(ctx context.Context, id int64) (*directory.Employee, error) {
	return &directory.Employee{ID: id, FullName: "Test User"}, nil
}

type memoryExpenseRepo struct {
	byEvent map[int64][]expenses.Expense
}

func (r *memoryExpenseRepo) ListActiveByEvent(ctx context.Context, eventID int64) ([]expenses.Expense, error) {
	var out []expenses.Expense
	for _, e := range r.byEvent[eventID] {
		if e.Status != expenses.StatusCancelled {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryQuoteSource struct {
	quotes map[int64]*quotes.Quote
}

func (s *memoryQuoteSource) Get(ctx context.Context, id int64) (*quotes.Quote, error) {
	q, ok := s.quotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return q, nil
}

type testDeps struct {
	repo        *memoryInvoiceRepo
	expenseRepo *memoryExpenseRepo
	quoteSource *memoryQuoteSource
}

func newTestService() (*Service, *testDeps) {
	deps := &testDeps{
		repo:        newMemoryInvoiceRepo(),
		expenseRepo: &memoryExpenseRepo{byEvent: make(map[int64][]expenses.Expense)},
		quoteSource: &memoryQuoteSource{quotes: make(map[int64]*quotes.Quote)},
	}
	svc := NewService(deps.repo, newMemoryDirectory(), deps.expenseRepo, deps.quoteSource, nil, nil)
	return svc, deps
}

func floatPtr(v float64) *float64 { return &v }

func TestCreateInvoiceDerivesTotals(t *testing.T) {
	svc, _ := newTestService()

	invoice, err := svc.Create(context.Background(), CreateInvoiceRequest{
		ClientID:  1,
		EventID:   1,
		MarginPct: floatPtr(20),
		Items: []CreateInvoiceItemReq{
			{Description: "Sound production", Category: billing.CategorySound, Quantity: 1, UnitPrice: 1000},
			{Description: "Catering", Category: billing.CategoryCatering, Quantity: 1, UnitPrice: 2000},
		},
	}, 7)
	require.NoError(t, err)

	require.Equal(t, StatusDraft, invoice.Status)
	require.InDelta(t, 3000.0, invoice.Subtotal, 0.001)
	require.InDelta(t, 630.0, invoice.Tax, 0.001)
	require.InDelta(t, 600.0, invoice.MarginAmount, 0.001)
	require.InDelta(t, 4230.0, invoice.Total, 0.001)
}

func TestExplicitLineTaxIsKept(t *testing.T) {
	svc, _ := newTestService()

	invoice, err := svc.Create(context.Background(), CreateInvoiceRequest{
		ClientID: 1,
		EventID:  1,
		Items: []CreateInvoiceItemReq{
			{Description: "Exempt service", Category: billing.CategoryServices, Quantity: 1, UnitPrice: 500, Tax: floatPtr(0)},
		},
	}, 7)
	require.NoError(t, err)
	require.InDelta(t, 500.0, invoice.Subtotal, 0.001)
	require.InDelta(t, 0.0, invoice.Tax, 0.001)
	require.InDelta(t, 500.0, invoice.Total, 0.001)
}

func TestTerminalInvoiceRejectsWrites(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		ClientID: 1, EventID: 1,
		Items: []CreateInvoiceItemReq{{Description: "Sound", Category: billing.CategorySound, Quantity: 1, UnitPrice: 100}},
	}, 7)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, invoice.ID, MarkPaidRequest{}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)

	_, err = svc.AddItem(ctx, invoice.ID, CreateInvoiceItemReq{Description: "Extra", Category: billing.CategoryOther, Quantity: 1, UnitPrice: 10}, 7)
	require.ErrorIs(t, err, shared.ErrTerminalState)

	_, err = svc.Update(ctx, invoice.ID, UpdateInvoiceRequest{MarginPct: floatPtr(50)}, 7)
	require.ErrorIs(t, err, shared.ErrTerminalState)

	_, err = svc.MarkPaid(ctx, invoice.ID, MarkPaidRequest{}, 7)
	require.ErrorIs(t, err, shared.ErrTerminalState)

	_, err = svc.Cancel(ctx, invoice.ID, 7)
	require.ErrorIs(t, err, shared.ErrTerminalState)

	after, err := svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, paid.Total, after.Total)
	require.Len(t, after.Items, 1)
}

func TestGetByNumberFindsInvoice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)

	found, err := svc.GetByNumber(ctx, invoice.Number)
	require.NoError(t, err)
	require.Equal(t, invoice.ID, found.ID)

	_, err = svc.GetByNumber(ctx, "FC-1999-000000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSendRequiresDraftOrPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)

	sent, err := svc.Send(ctx, invoice.ID, SendInvoiceRequest{}, 9)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.ApprovedBy)
	require.Equal(t, int64(9), *sent.ApprovedBy)

	_, err = svc.Send(ctx, invoice.ID, SendInvoiceRequest{}, 9)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestUpdateItemRederivesTax(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{
		ClientID: 1, EventID: 1,
		Items: []CreateInvoiceItemReq{{Description: "Lighting", Category: billing.CategoryLighting, Quantity: 1, UnitPrice: 100}},
	}, 7)
	require.NoError(t, err)

	itemID := invoice.Items[0].ID
	updated, err := svc.UpdateItem(ctx, invoice.ID, itemID, UpdateInvoiceItemRequest{UnitPrice: floatPtr(200)}, 7)
	require.NoError(t, err)
	require.InDelta(t, 200.0, updated.Subtotal, 0.001)
	require.InDelta(t, 42.0, updated.Tax, 0.001)
	require.InDelta(t, 242.0, updated.Total, 0.001)
}

func TestExpireOverdueSweepsSentPastDue(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	invoice, err := svc.Create(ctx, CreateInvoiceRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)
	past := time.Now().Add(-24 * time.Hour)
	_, err = svc.Send(ctx, invoice.ID, SendInvoiceRequest{DueDate: &past}, 7)
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, StatusExpired, deps.repo.invoices[invoice.ID].Status)
}
