package expenses

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads expenses for generation and reporting.
type Repository interface {
	ListActiveByEvent(ctx context.Context, eventID int64) ([]Expense, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed expense repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ListActiveByEvent returns the event's expenses excluding cancelled ones,
// oldest first.
func (r *repository) ListActiveByEvent(ctx context.Context, eventID int64) ([]Expense, error) {
	const query = `
		SELECT id, event_id, provider_id, description, category, amount, tax, total, status, created_at
		FROM expenses
		WHERE event_id = $1 AND status <> 'CANCELLED'
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var (
			e                  Expense
			providerID         pgtype.Int8
			amount, tax, total pgtype.Numeric
			createdAt          pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.EventID, &providerID, &e.Description, &e.Category, &amount, &tax, &total, &e.Status, &createdAt); err != nil {
			return nil, err
		}
		if providerID.Valid {
			e.ProviderID = &providerID.Int64
		}
		e.Amount = numericToFloat(amount)
		e.Tax = numericToFloat(tax)
		e.Total = numericToFloat(total)
		e.CreatedAt = createdAt.Time
		out = append(out, e)
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
