package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/platform/db"
	"github.com/encore-erp/encore-erp/internal/shared"
)

// Repository defines data access for quotes and their line items. WithTx
// yields a transaction-bound Repository so callers batch a line mutation with
// the parent recalculation in one commit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quote, error)
	GetByNumber(ctx context.Context, number string) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	Create(ctx context.Context, q Quote) (int64, error)
	UpdateTotals(ctx context.Context, id int64, subtotal, marginAmount, tax, total float64) error
	MarkSent(ctx context.Context, id int64, sentAt time.Time, dueDate *time.Time) error
	UpdateStatus(ctx context.Context, id int64, status QuoteStatus, userID int64, reason *string) error
	InsertItem(ctx context.Context, item QuoteItem) (int64, error)
	UpdateItem(ctx context.Context, item QuoteItem) error
	DeleteItem(ctx context.Context, quoteID, itemID int64) error
	GetItem(ctx context.Context, quoteID, itemID int64) (*QuoteItem, error)
	ListItems(ctx context.Context, quoteID int64) ([]QuoteItem, error)
	GenerateNumber(ctx context.Context, date time.Time) (string, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed quote repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quoteColumns = `id, number, client_id, event_id, margin_pct, subtotal, margin_amount, tax, total,
	status, version, previous_version_id, observations, sent_at, due_date,
	created_by, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Quote, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	return r.scanQuoteWithItems(ctx, row)
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE number = $1`, number)
	return r.scanQuoteWithItems(ctx, row)
}

func (r *repository) scanQuoteWithItems(ctx context.Context, row pgx.Row) (*Quote, error) {
	q, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	items, err := r.ListItems(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (r *repository) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *req.ClientID)
		argPos++
	}
	if req.EventID != nil {
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", argPos))
		args = append(args, *req.EventID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := ""
	for i, c := range conditions {
		if i == 0 {
			whereClause = "WHERE " + c
		} else {
			whereClause += " AND " + c
		}
	}

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM quotes %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+quoteColumns+` FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	const query = `
		INSERT INTO quotes (number, client_id, event_id, margin_pct, subtotal, margin_amount, tax, total,
			status, version, previous_version_id, observations, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id
	`
	var prevID pgtype.Int8
	if q.PreviousVersionID != nil {
		prevID = pgtype.Int8{Int64: *q.PreviousVersionID, Valid: true}
	}
	var observations pgtype.Text
	if q.Observations != nil {
		observations = pgtype.Text{String: *q.Observations, Valid: true}
	}
	var id int64
	err := r.db.QueryRow(ctx, query,
		q.Number, q.ClientID, q.EventID, q.MarginPct, q.Subtotal, q.MarginAmount, q.Tax, q.Total,
		q.Status, q.Version, prevID, observations, q.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateTotals(ctx context.Context, id int64, subtotal, marginAmount, tax, total float64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE quotes SET subtotal = $2, margin_amount = $3, tax = $4, total = $5, updated_at = NOW()
		WHERE id = $1
	`, id, subtotal, marginAmount, tax, total)
	return err
}

func (r *repository) MarkSent(ctx context.Context, id int64, sentAt time.Time, dueDate *time.Time) error {
	var due pgtype.Timestamptz
	if dueDate != nil {
		due = pgtype.Timestamptz{Time: *dueDate, Valid: true}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE quotes SET status = $2, sent_at = $3, due_date = COALESCE($4, due_date), updated_at = NOW()
		WHERE id = $1
	`, id, StatusPending, sentAt, due)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status QuoteStatus, userID int64, reason *string) error {
	var approvedBy, rejectedBy pgtype.Int8
	var approvedAt, rejectedAt pgtype.Timestamptz
	var rejectionReason pgtype.Text

	switch status {
	case StatusApproved:
		approvedBy = pgtype.Int8{Int64: userID, Valid: true}
		approvedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	case StatusRejected:
		rejectedBy = pgtype.Int8{Int64: userID, Valid: true}
		rejectedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		if reason != nil {
			rejectionReason = pgtype.Text{String: *reason, Valid: true}
		}
	}

	_, err := r.db.Exec(ctx, `
		UPDATE quotes SET status = $2,
			approved_by = COALESCE($3, approved_by), approved_at = COALESCE($4, approved_at),
			rejected_by = COALESCE($5, rejected_by), rejected_at = COALESCE($6, rejected_at),
			rejection_reason = COALESCE($7, rejection_reason),
			updated_at = NOW()
		WHERE id = $1
	`, id, status, approvedBy, approvedAt, rejectedBy, rejectedAt, rejectionReason)
	return err
}

func (r *repository) InsertItem(ctx context.Context, item QuoteItem) (int64, error) {
	const query = `
		INSERT INTO quote_items (quote_id, provider_id, description, category, quantity, unit, unit_price, subtotal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		item.QuoteID, item.ProviderID, item.Description, item.Category,
		item.Quantity, item.Unit, item.UnitPrice, item.Subtotal,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateItem(ctx context.Context, item QuoteItem) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quote_items SET provider_id = $3, description = $4, category = $5,
			quantity = $6, unit = $7, unit_price = $8, subtotal = $9, updated_at = NOW()
		WHERE id = $1 AND quote_id = $2
	`, item.ID, item.QuoteID, item.ProviderID, item.Description, item.Category,
		item.Quantity, item.Unit, item.UnitPrice, item.Subtotal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteItem(ctx context.Context, quoteID, itemID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE id = $1 AND quote_id = $2`, itemID, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) GetItem(ctx context.Context, quoteID, itemID int64) (*QuoteItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, quote_id, provider_id, description, category, quantity, unit, unit_price, subtotal, created_at, updated_at
		FROM quote_items WHERE id = $1 AND quote_id = $2
	`, itemID, quoteID)
	item, err := scanQuoteItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *repository) ListItems(ctx context.Context, quoteID int64) ([]QuoteItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, provider_id, description, category, quantity, unit, unit_price, subtotal, created_at, updated_at
		FROM quote_items WHERE quote_id = $1 ORDER BY id
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QuoteItem
	for rows.Next() {
		item, err := scanQuoteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GenerateNumber assigns the next COT-<year>-<seq> number, sequenced per year
// through an upsert on document_sequences.
func (r *repository) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	var seq int64
	period := date.Format("2006")
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, "COT", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COT-%s-%04d", period, seq), nil
}

// ExpireOverdue is a monotonic sweep: re-running it never un-expires a quote,
// so concurrent sweeps converge.
func (r *repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes SET status = $1, updated_at = NOW()
		WHERE status = $2 AND due_date IS NOT NULL AND due_date < $3
	`, StatusExpired, StatusPending, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var (
		q                          Quote
		marginPct                  pgtype.Numeric
		subtotal, marginAmt        pgtype.Numeric
		tax, total                 pgtype.Numeric
		prevID                     pgtype.Int8
		observations               pgtype.Text
		sentAt, dueDate            pgtype.Timestamptz
		approvedBy, rejectedBy     pgtype.Int8
		approvedAt, rejectedAt     pgtype.Timestamptz
		rejectionReason            pgtype.Text
		createdAt, updatedAt       pgtype.Timestamptz
	)
	err := row.Scan(
		&q.ID, &q.Number, &q.ClientID, &q.EventID, &marginPct, &subtotal, &marginAmt, &tax, &total,
		&q.Status, &q.Version, &prevID, &observations, &sentAt, &dueDate,
		&q.CreatedBy, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &rejectionReason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.MarginPct = numericToFloat(marginPct)
	q.Subtotal = numericToFloat(subtotal)
	q.MarginAmount = numericToFloat(marginAmt)
	q.Tax = numericToFloat(tax)
	q.Total = numericToFloat(total)
	if prevID.Valid {
		q.PreviousVersionID = &prevID.Int64
	}
	if observations.Valid {
		q.Observations = &observations.String
	}
	if sentAt.Valid {
		q.SentAt = &sentAt.Time
	}
	if dueDate.Valid {
		q.DueDate = &dueDate.Time
	}
	if approvedBy.Valid {
		q.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		q.ApprovedAt = &approvedAt.Time
	}
	if rejectedBy.Valid {
		q.RejectedBy = &rejectedBy.Int64
	}
	if rejectedAt.Valid {
		q.RejectedAt = &rejectedAt.Time
	}
	if rejectionReason.Valid {
		q.RejectionReason = &rejectionReason.String
	}
	q.CreatedAt = createdAt.Time
	q.UpdatedAt = updatedAt.Time
	return &q, nil
}

func scanQuoteItem(row pgx.Row) (*QuoteItem, error) {
	var (
		item                 QuoteItem
		category             string
		qty, price, subtotal pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&item.ID, &item.QuoteID, &item.ProviderID, &item.Description, &category,
		&qty, &item.Unit, &price, &subtotal, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	item.Category = billing.Category(category)
	item.Quantity = numericToFloat(qty)
	item.UnitPrice = numericToFloat(price)
	item.Subtotal = numericToFloat(subtotal)
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	return &item, nil
}

func numericToFloat(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, _ := n.Float64Value()
	return f.Float64
}
