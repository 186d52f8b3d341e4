package invoices

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

// Repository defines data access for invoices and their line items. WithTx
// yields a transaction-bound Repository so line mutations commit together with
// the parent recalculation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	UpdateTotals(ctx context.Context, id int64, subtotal, tax, marginAmount, total float64) error
	UpdateHeader(ctx context.Context, id int64, req UpdateInvoiceRequest) error
	MarkSent(ctx context.Context, id int64, actorID int64, sentAt time.Time, dueDate *time.Time) error
	MarkPaid(ctx context.Context, id int64, paymentDate time.Time) error
	UpdateStatus(ctx context.Context, id int64, status InvoiceStatus) error
	InsertItem(ctx context.Context, item InvoiceItem) (int64, error)
	UpdateItem(ctx context.Context, item InvoiceItem) error
	DeleteItem(ctx context.Context, invoiceID, itemID int64) error
	GetItem(ctx context.Context, invoiceID, itemID int64) (*InvoiceItem, error)
	ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
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

// NewRepository builds the pgx-backed invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, number, client_id, event_id, quote_id, margin_pct, subtotal, tax, margin_amount, total,
	status, issue_date, due_date, payment_date, observations,
	created_by, approved_by, approved_at, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return r.scanInvoiceWithItems(ctx, row)
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1`, number)
	return r.scanInvoiceWithItems(ctx, row)
}

func (r *repository) scanInvoiceWithItems(ctx context.Context, row pgx.Row) (*Invoice, error) {
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	items, err := r.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (r *repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
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
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+invoiceColumns+` FROM invoices %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	const query = `
		INSERT INTO invoices (number, client_id, event_id, quote_id, margin_pct, subtotal, tax, margin_amount, total,
			status, issue_date, due_date, observations, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id
	`
	var quoteID pgtype.Int8
	if inv.QuoteID != nil {
		quoteID = pgtype.Int8{Int64: *inv.QuoteID, Valid: true}
	}
	var dueDate pgtype.Timestamptz
	if inv.DueDate != nil {
		dueDate = pgtype.Timestamptz{Time: *inv.DueDate, Valid: true}
	}
	var observations pgtype.Text
	if inv.Observations != nil {
		observations = pgtype.Text{String: *inv.Observations, Valid: true}
	}
	var id int64
	err := r.db.QueryRow(ctx, query,
		inv.Number, inv.ClientID, inv.EventID, quoteID, inv.MarginPct, inv.Subtotal, inv.Tax, inv.MarginAmount, inv.Total,
		inv.Status, inv.IssueDate, dueDate, observations, inv.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateTotals(ctx context.Context, id int64, subtotal, tax, marginAmount, total float64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET subtotal = $2, tax = $3, margin_amount = $4, total = $5, updated_at = NOW()
		WHERE id = $1
	`, id, subtotal, tax, marginAmount, total)
	return err
}

func (r *repository) UpdateHeader(ctx context.Context, id int64, req UpdateInvoiceRequest) error {
	var marginPct pgtype.Float8
	if req.MarginPct != nil {
		marginPct = pgtype.Float8{Float64: *req.MarginPct, Valid: true}
	}
	var dueDate pgtype.Timestamptz
	if req.DueDate != nil {
		dueDate = pgtype.Timestamptz{Time: *req.DueDate, Valid: true}
	}
	var observations pgtype.Text
	if req.Observations != nil {
		observations = pgtype.Text{String: *req.Observations, Valid: true}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET margin_pct = COALESCE($2, margin_pct),
			due_date = COALESCE($3, due_date),
			observations = COALESCE($4, observations),
			updated_at = NOW()
		WHERE id = $1
	`, id, marginPct, dueDate, observations)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) MarkSent(ctx context.Context, id int64, actorID int64, sentAt time.Time, dueDate *time.Time) error {
	var approvedBy pgtype.Int8
	if actorID != 0 {
		approvedBy = pgtype.Int8{Int64: actorID, Valid: true}
	}
	var due pgtype.Timestamptz
	if dueDate != nil {
		due = pgtype.Timestamptz{Time: *dueDate, Valid: true}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $2,
			approved_by = COALESCE($3, approved_by), approved_at = $4,
			due_date = COALESCE($5, due_date), updated_at = NOW()
		WHERE id = $1
	`, id, StatusSent, approvedBy, sentAt, due)
	return err
}

func (r *repository) MarkPaid(ctx context.Context, id int64, paymentDate time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $2, payment_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, StatusPaid, paymentDate)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	return err
}

func (r *repository) InsertItem(ctx context.Context, item InvoiceItem) (int64, error) {
	const query = `
		INSERT INTO invoice_items (invoice_id, description, category, quantity, unit_price, subtotal, tax, total, line_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		item.InvoiceID, item.Description, item.Category,
		item.Quantity, item.UnitPrice, item.Subtotal, item.Tax, item.Total, item.LineOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateItem(ctx context.Context, item InvoiceItem) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoice_items SET description = $3, category = $4, quantity = $5,
			unit_price = $6, subtotal = $7, tax = $8, total = $9, line_order = $10, updated_at = NOW()
		WHERE id = $1 AND invoice_id = $2
	`, item.ID, item.InvoiceID, item.Description, item.Category,
		item.Quantity, item.UnitPrice, item.Subtotal, item.Tax, item.Total, item.LineOrder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteItem(ctx context.Context, invoiceID, itemID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM invoice_items WHERE id = $1 AND invoice_id = $2`, itemID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) GetItem(ctx context.Context, invoiceID, itemID int64) (*InvoiceItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, invoice_id, description, category, quantity, unit_price, subtotal, tax, total, line_order, created_at, updated_at
		FROM invoice_items WHERE id = $1 AND invoice_id = $2
	`, itemID, invoiceID)
	item, err := scanInvoiceItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *repository) ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, description, category, quantity, unit_price, subtotal, tax, total, line_order, created_at, updated_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY line_order, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		item, err := scanInvoiceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GenerateNumber assigns the next FC-<year>-<seq> number, sequenced per year
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
	`, "FC", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FC-%s-%06d", period, seq), nil
}

// ExpireOverdue is a monotonic sweep over SENT and PENDING invoices past their
// due date. Re-running it never un-expires anything.
func (r *repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3) AND due_date IS NOT NULL AND due_date < $4
	`, StatusExpired, StatusSent, StatusPending, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                  Invoice
		quoteID              pgtype.Int8
		marginPct, subtotal  pgtype.Numeric
		tax, marginAmt       pgtype.Numeric
		total                pgtype.Numeric
		issueDate            pgtype.Timestamptz
		dueDate, paymentDate pgtype.Timestamptz
		observations         pgtype.Text
		approvedBy           pgtype.Int8
		approvedAt           pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.ClientID, &inv.EventID, &quoteID, &marginPct, &subtotal, &tax, &marginAmt, &total,
		&inv.Status, &issueDate, &dueDate, &paymentDate, &observations,
		&inv.CreatedBy, &approvedBy, &approvedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.MarginPct = numericToFloat(marginPct)
	inv.Subtotal = numericToFloat(subtotal)
	inv.Tax = numericToFloat(tax)
	inv.MarginAmount = numericToFloat(marginAmt)
	inv.Total = numericToFloat(total)
	inv.IssueDate = issueDate.Time
	if quoteID.Valid {
		inv.QuoteID = &quoteID.Int64
	}
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if paymentDate.Valid {
		inv.PaymentDate = &paymentDate.Time
	}
	if observations.Valid {
		inv.Observations = &observations.String
	}
	if approvedBy.Valid {
		inv.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		inv.ApprovedAt = &approvedAt.Time
	}
	inv.CreatedAt = createdAt.Time
	inv.UpdatedAt = updatedAt.Time
	return &inv, nil
}

func scanInvoiceItem(row pgx.Row) (*InvoiceItem, error) {
	var (
		item                 InvoiceItem
		category             string
		qty, price           pgtype.Numeric
		subtotal, tax, total pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&item.ID, &item.InvoiceID, &item.Description, &category,
		&qty, &price, &subtotal, &tax, &total, &item.LineOrder, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	item.Category = billing.Category(category)
	item.Quantity = numericToFloat(qty)
	item.UnitPrice = numericToFloat(price)
	item.Subtotal = numericToFloat(subtotal)
	item.Tax = numericToFloat(tax)
	item.Total = numericToFloat(total)
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
