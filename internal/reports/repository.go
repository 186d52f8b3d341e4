package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/expenses"
)

// Repository exposes the aggregation queries the report service relies on.
type Repository interface {
	ExpenseTotalsByCategory(ctx context.Context, eventID int64) ([]CategoryTotal, error)
	ExpenseTotalsByStatus(ctx context.Context, eventID int64) ([]StatusTotal, error)
	InvoiceIncome(ctx context.Context, eventID int64) (float64, error)
	InvoiceTotalsByCategory(ctx context.Context, eventID int64) ([]CategoryTotal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed report repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ExpenseTotalsByCategory sums non-cancelled expense amounts per category.
func (r *repository) ExpenseTotalsByCategory(ctx context.Context, eventID int64) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE event_id = $1 AND status <> 'CANCELLED'
		GROUP BY category
		ORDER BY category
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var category string
		var amount pgtype.Numeric
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, err
		}
		out = append(out, CategoryTotal{Category: billing.Category(category), Amount: numericToFloat(amount)})
	}
	return out, rows.Err()
}

// ExpenseTotalsByStatus sums non-cancelled expense amounts per lifecycle
// status (PAID, PENDING, OVERDUE).
func (r *repository) ExpenseTotalsByStatus(ctx context.Context, eventID int64) ([]StatusTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE event_id = $1 AND status <> 'CANCELLED'
		GROUP BY status
		ORDER BY status
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusTotal
	for rows.Next() {
		var status string
		var amount pgtype.Numeric
		if err := rows.Scan(&status, &amount); err != nil {
			return nil, err
		}
		out = append(out, StatusTotal{Status: expenses.ExpenseStatus(status), Amount: numericToFloat(amount)})
	}
	return out, rows.Err()
}

// InvoiceIncome sums invoice totals for the event, excluding cancelled ones.
func (r *repository) InvoiceIncome(ctx context.Context, eventID int64) (float64, error) {
	var income pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM invoices
		WHERE event_id = $1 AND status <> 'CANCELLED'
	`, eventID).Scan(&income)
	if err != nil {
		return 0, err
	}
	return numericToFloat(income), nil
}

// InvoiceTotalsByCategory sums invoice line subtotals per category across the
// event's non-cancelled invoices.
func (r *repository) InvoiceTotalsByCategory(ctx context.Context, eventID int64) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ii.category, COALESCE(SUM(ii.subtotal), 0)
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		WHERE i.event_id = $1 AND i.status <> 'CANCELLED'
		GROUP BY ii.category
		ORDER BY ii.category
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var category string
		var amount pgtype.Numeric
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, err
		}
		out = append(out, CategoryTotal{Category: billing.Category(category), Amount: numericToFloat(amount)})
	}
	return out, rows.Err()
}

func numericToFloat(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, _ := n.Float64Value()
	return f.Float64
}
