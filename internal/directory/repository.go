package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/encore-erp/encore-erp/internal/shared"
)

// Repository looks up reference entities by identifier. A missing row is
// always reported as shared.ErrReferenceNotFound so callers can fail before
// any write.
type Repository interface {
	GetClient(ctx context.Context, id int64) (*Client, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
	GetProvider(ctx context.Context, id int64) (*Provider, error)
	GetEmployee(ctx context.Context, id int64) (*Employee, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed directory repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	const query = `SELECT id, name, tax_id, email, created_at FROM clients WHERE id = $1`
	var (
		c            Client
		taxID, email pgtype.Text
		createdAt    pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &taxID, &email, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: client %d", shared.ErrReferenceNotFound, id)
		}
		return nil, err
	}
	if taxID.Valid {
		c.TaxID = &taxID.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	c.CreatedAt = createdAt.Time
	return &c, nil
}

func (r *repository) GetEvent(ctx context.Context, id int64) (*Event, error) {
	const query = `SELECT id, name, client_id, budget, starts_at, ends_at, created_at FROM events WHERE id = $1`
	var (
		e                  Event
		clientID           pgtype.Int8
		budget             pgtype.Numeric
		starts, ends, crea pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.Name, &clientID, &budget, &starts, &ends, &crea)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %d", shared.ErrReferenceNotFound, id)
		}
		return nil, err
	}
	if clientID.Valid {
		e.ClientID = &clientID.Int64
	}
	if budget.Valid {
		f, _ := budget.Float64Value()
		e.Budget = f.Float64
	}
	e.StartsAt = starts.Time
	e.EndsAt = ends.Time
	e.CreatedAt = crea.Time
	return &e, nil
}

func (r *repository) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	const query = `SELECT id, name, category, created_at FROM providers WHERE id = $1`
	var (
		p         Provider
		category  pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &category, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: provider %d", shared.ErrReferenceNotFound, id)
		}
		return nil, err
	}
	if category.Valid {
		p.Category = &category.String
	}
	p.CreatedAt = createdAt.Time
	return &p, nil
}

func (r *repository) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	const query = `SELECT id, full_name FROM employees WHERE id = $1`
	var e Employee
	err := r.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: employee %d", shared.ErrReferenceNotFound, id)
		}
		return nil, err
	}
	return &e, nil
}
