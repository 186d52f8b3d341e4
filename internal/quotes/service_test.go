package quotes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/shared"
)

type memoryQuoteRepo struct {
	quotes     map[int64]*Quote
	items      map[int64][]QuoteItem
	nextID     int64
	nextItemID int64
	seq        int64
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{
		quotes: make(map[int64]*Quote),
		items:  make(map[int64][]QuoteItem),
	}
}

func (r *memoryQuoteRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryQuoteRepo) Get(ctx context.Context, id int64) (*Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *q
	clone.Items = append([]QuoteItem(nil), r.items[id]...)
	return &clone, nil
}

func (r *memoryQuoteRepo) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	for id, q := range r.quotes {
		if q.Number == number {
			return r.Get(ctx, id)
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryQuoteRepo) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var out []Quote
	for _, q := range r.quotes {
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (r *memoryQuoteRepo) Create(ctx context.Context, q Quote) (int64, error) {
	r.nextID++
	q.ID = r.nextID
	q.CreatedAt = time.Now()
	q.UpdatedAt = time.Now()
	r.quotes[q.ID] = &q
	return q.ID, nil
}

func (r *memoryQuoteRepo) UpdateTotals(ctx context.Context, id int64, subtotal, marginAmount, tax, total float64) error {
	q, ok := r.quotes[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Subtotal = subtotal
	q.MarginAmount = marginAmount
	q.Tax = tax
	q.Total = total
	return nil
}

func (r *memoryQuoteRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time, dueDate *time.Time) error {
	q, ok := r.quotes[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Status = StatusPending
	q.SentAt = &sentAt
	if dueDate != nil {
		q.DueDate = dueDate
	}
	return nil
}

func (r *memoryQuoteRepo) UpdateStatus(ctx context.Context, id int64, status QuoteStatus, userID int64, reason *string) error {
	q, ok := r.quotes[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Status = status
	now := time.Now()
	switch status {
	case StatusApproved:
		q.ApprovedBy = &userID
		q.ApprovedAt = &now
	case StatusRejected:
		q.RejectedBy = &userID
		q.RejectedAt = &now
		q.RejectionReason = reason
	}
	return nil
}

func (r *memoryQuoteRepo) InsertItem(ctx context.Context, item QuoteItem) (int64, error) {
	r.nextItemID++
	item.ID = r.nextItemID
	r.items[item.QuoteID] = append(r.items[item.QuoteID], item)
	return item.ID, nil
}

func (r *memoryQuoteRepo) UpdateItem(ctx context.Context, item QuoteItem) error {
	list := r.items[item.QuoteID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = item
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryQuoteRepo) DeleteItem(ctx context.Context, quoteID, itemID int64) error {
	list := r.items[quoteID]
	for i := range list {
		if list[i].ID == itemID {
			r.items[quoteID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memoryQuoteRepo) GetItem(ctx context.Context, quoteID, itemID int64) (*QuoteItem, error) {
	for _, it := range r.items[quoteID] {
		if it.ID == itemID {
			clone := it
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryQuoteRepo) ListItems(ctx context.Context, quoteID int64) ([]QuoteItem, error) {
	return append([]QuoteItem(nil), r.items[quoteID]...), nil
}

func (r *memoryQuoteRepo) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	r.seq++
	return fmt.Sprintf("COT-%s-%04d", date.Format("2006"), r.seq), nil
}

func (r *memoryQuoteRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, q := range r.quotes {
		if q.Status == StatusPending && q.DueDate != nil && q.DueDate.Before(now) {
			q.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

type memoryDirectory struct {
	clients       map[int64]*directory.Client
	events        map[int64]*directory.Event
	providers     map[int64]*directory.Provider
	employeeCalls int
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		clients:   map[int64]*directory.Client{1: {ID: 1, Name: "Acme Events"}},
		events:    map[int64]*directory.Event{1: {ID: 1, Name: "Summer Gala", Budget: 5000}},
		providers: map[int64]*directory.Provider{1: {ID: 1, Name: "Sound Co"}, 2: {ID: 2, Name: "Catering SL"}},
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
	p, ok := d.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: provider %d", shared.ErrReferenceNotFound, id)
	}
	return p, nil
}

func (d *memoryDirectory) GetEmployee(ctx context.Context, id int64) (*directory.Employee, error) {
	d.employeeCalls++
	return &directory.Employee{ID: id, FullName: "Test User"}, nil
}

func newTestService() (*Service, *memoryQuoteRepo) {
	svc, repo, _ := newTestServiceWithDirectory()
	return svc, repo
}

func newTestServiceWithDirectory() (*Service, *memoryQuoteRepo, *memoryDirectory) {
	repo := newMemoryQuoteRepo()
	dir := newMemoryDirectory()
	return NewService(repo, dir, nil), repo, dir
}

func floatPtr(v float64) *float64 { return &v }

func TestCreateQuoteDerivesTotals(t *testing.T) {
	svc, _ := newTestService()

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{
		ClientID:  1,
		EventID:   1,
		MarginPct: floatPtr(20),
		Items: []CreateQuoteItemReq{
			{ProviderID: 1, Description: "PA system", Category: billing.CategorySound, Quantity: 2, UnitPrice: 300},
			{ProviderID: 2, Description: "Dinner service", Category: billing.CategoryCatering, Quantity: 40, UnitPrice: 10},
		},
	}, 7)
	require.NoError(t, err)

	require.Equal(t, StatusDraft, quote.Status)
	require.Equal(t, 1, quote.Version)
	require.InDelta(t, 1000.0, quote.Subtotal, 0.001)
	require.InDelta(t, 200.0, quote.MarginAmount, 0.001)
	require.InDelta(t, 252.0, quote.Tax, 0.001)
	require.InDelta(t, 1452.0, quote.Total, 0.001)
	require.Len(t, quote.Items, 2)
}

func TestCreateQuoteUnknownProviderWritesNothing(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.Create(context.Background(), CreateQuoteRequest{
		ClientID: 1,
		EventID:  1,
		Items: []CreateQuoteItemReq{
			{ProviderID: 1, Description: "PA system", Category: billing.CategorySound, Quantity: 1, UnitPrice: 100},
			{ProviderID: 99, Description: "Ghost", Category: billing.CategoryOther, Quantity: 1, UnitPrice: 50},
		},
	}, 7)
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
	require.Empty(t, repo.quotes)
}

func TestItemMutationRecalculates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{
		ClientID:  1,
		EventID:   1,
		MarginPct: floatPtr(10),
		Items: []CreateQuoteItemReq{
			{ProviderID: 1, Description: "Lighting rig", Category: billing.CategoryLighting, Quantity: 1, UnitPrice: 500},
		},
	}, 7)
	require.NoError(t, err)

	quote, err = svc.AddItem(ctx, quote.ID, CreateQuoteItemReq{
		ProviderID: 2, Description: "Canapes", Category: billing.CategoryCatering, Quantity: 10, UnitPrice: 50,
	}, 7)
	require.NoError(t, err)
	require.InDelta(t, 1000.0, quote.Subtotal, 0.001)
	require.InDelta(t, 100.0, quote.MarginAmount, 0.001)

	itemID := quote.Items[0].ID
	quote, err = svc.UpdateItem(ctx, quote.ID, itemID, UpdateQuoteItemRequest{Quantity: floatPtr(2)}, 7)
	require.NoError(t, err)
	require.InDelta(t, 1500.0, quote.Subtotal, 0.001)

	quote, err = svc.RemoveItem(ctx, quote.ID, itemID, 7)
	require.NoError(t, err)
	require.InDelta(t, 500.0, quote.Subtotal, 0.001)
	require.Len(t, quote.Items, 1)
}

func TestApproveRequiresPending(t *testing.T) {
	svc, _, dir := newTestServiceWithDirectory()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, quote.ID, 9)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	quote, err = svc.Send(ctx, quote.ID, SendQuoteRequest{}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPending, quote.Status)
	require.NotNil(t, quote.SentAt)

	quote, err = svc.Approve(ctx, quote.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, quote.Status)
	require.NotNil(t, quote.ApprovedBy)
	require.Equal(t, int64(9), *quote.ApprovedBy)

	// The approver is resolved against the employee directory for the audit
	// trail.
	require.Equal(t, 1, dir.employeeCalls)
}

func TestGetByNumberFindsQuote(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)

	found, err := svc.GetByNumber(ctx, quote.Number)
	require.NoError(t, err)
	require.Equal(t, quote.ID, found.ID)

	_, err = svc.GetByNumber(ctx, "COT-1999-0000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTerminalQuoteRejectsItemWrites(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{
		ClientID: 1, EventID: 1,
		Items: []CreateQuoteItemReq{{ProviderID: 1, Description: "Stage", Category: billing.CategoryLogistics, Quantity: 1, UnitPrice: 800}},
	}, 7)
	require.NoError(t, err)
	_, err = svc.Send(ctx, quote.ID, SendQuoteRequest{}, 7)
	require.NoError(t, err)
	approved, err := svc.Approve(ctx, quote.ID, 9)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, quote.ID, CreateQuoteItemReq{ProviderID: 1, Description: "Extra", Category: billing.CategoryOther, Quantity: 1, UnitPrice: 10}, 7)
	require.ErrorIs(t, err, shared.ErrTerminalState)

	after, err := svc.Get(ctx, quote.ID)
	require.NoError(t, err)
	require.Equal(t, approved.Total, after.Total)
	require.Len(t, after.Items, 1)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{
		ClientID: 1, EventID: 1, MarginPct: floatPtr(20),
		Items: []CreateQuoteItemReq{{ProviderID: 1, Description: "Decor", Category: billing.CategoryDecoration, Quantity: 3, UnitPrice: 333.33}},
	}, 7)
	require.NoError(t, err)

	first, err := svc.Recalculate(ctx, quote.ID)
	require.NoError(t, err)
	second, err := svc.Recalculate(ctx, quote.ID)
	require.NoError(t, err)

	require.Equal(t, first.Subtotal, second.Subtotal)
	require.Equal(t, first.MarginAmount, second.MarginAmount)
	require.Equal(t, first.Tax, second.Tax)
	require.Equal(t, first.Total, second.Total)
}

func TestCreateVersionChainsHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	v1, err := svc.Create(ctx, CreateQuoteRequest{
		ClientID: 1, EventID: 1,
		Items: []CreateQuoteItemReq{{ProviderID: 1, Description: "PA system", Category: billing.CategorySound, Quantity: 1, UnitPrice: 400}},
	}, 7)
	require.NoError(t, err)

	v2, err := svc.CreateVersion(ctx, v1.ID, CreateVersionRequest{MarginPct: floatPtr(30)}, 7)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
	require.NotEqual(t, v1.Number, v2.Number)
	require.NotNil(t, v2.PreviousVersionID)
	require.Equal(t, v1.ID, *v2.PreviousVersionID)
	require.InDelta(t, 30.0, v2.MarginPct, 0.001)

	source, err := svc.Get(ctx, v1.ID)
	require.NoError(t, err)
	require.InDelta(t, v1.Total, source.Total, 0.001)
	require.Equal(t, v1.Status, source.Status)

	v3, err := svc.CreateVersion(ctx, v2.ID, CreateVersionRequest{}, 7)
	require.NoError(t, err)

	history, err := svc.GetHistory(ctx, v3.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, v1.ID, history[0].ID)
	require.Equal(t, v2.ID, history[1].ID)
	require.Equal(t, v3.ID, history[2].ID)
}

func TestHistoryStopsAtDanglingReference(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)

	missing := int64(999)
	repo.quotes[quote.ID].PreviousVersionID = &missing

	history, err := svc.GetHistory(ctx, quote.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, quote.ID, history[0].ID)
}

func TestHistoryTerminatesOnVersionCycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	v1, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)
	v2, err := svc.CreateVersion(ctx, v1.ID, CreateVersionRequest{}, 7)
	require.NoError(t, err)

	// Corrupt the chain so the oldest version points back at the newest.
	v2ID := v2.ID
	repo.quotes[v1.ID].PreviousVersionID = &v2ID

	history, err := svc.GetHistory(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, v1.ID, history[0].ID)
	require.Equal(t, v2.ID, history[1].ID)
}

func TestExpireOverdueSweepsPendingPastDue(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	quote, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	_, err = svc.Send(ctx, quote.ID, SendQuoteRequest{DueDate: &past}, 7)
	require.NoError(t, err)

	fresh, err := svc.Create(ctx, CreateQuoteRequest{ClientID: 1, EventID: 1}, 7)
	require.NoError(t, err)
	future := time.Now().Add(48 * time.Hour)
	_, err = svc.Send(ctx, fresh.ID, SendQuoteRequest{DueDate: &future}, 7)
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, StatusExpired, repo.quotes[quote.ID].Status)
	require.Equal(t, StatusPending, repo.quotes[fresh.ID].Status)

	// Re-running the sweep never un-expires.
	n, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
