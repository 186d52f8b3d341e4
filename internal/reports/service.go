package reports

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/expenses"
)

// Service coordinates report aggregation with the cache layer.
type Service struct {
	repo  Repository
	dir   directory.Repository
	cache *Cache
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, dir directory.Repository, cache *Cache) *Service {
	return &Service{repo: repo, dir: dir, cache: cache}
}

// ExpenseSummary reports the event's spend against its budget, flagging
// deviations beyond the alert threshold in either direction.
func (s *Service) ExpenseSummary(ctx context.Context, eventID int64) (*ExpenseSummary, error) {
	event, err := s.dir.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("verify event: %w", err)
	}

	key, err := s.cache.BuildKey(ctx, keyExpenseSummary(eventID))
	if err != nil {
		return nil, err
	}

	var summary ExpenseSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		byCategory, err := s.repo.ExpenseTotalsByCategory(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("aggregate expenses: %w", err)
		}
		byStatus, err := s.repo.ExpenseTotalsByStatus(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("aggregate expenses by status: %w", err)
		}
		var spent float64
		for _, ct := range byCategory {
			spent += ct.Amount
		}
		spent = billing.Round2(spent)

		var paid, pending, overdue float64
		for _, st := range byStatus {
			switch st.Status {
			case expenses.StatusPaid:
				paid = billing.Round2(st.Amount)
			case expenses.StatusPending:
				pending = billing.Round2(st.Amount)
			case expenses.StatusOverdue:
				overdue = billing.Round2(st.Amount)
			}
		}

		deviation := billing.Round2(spent - event.Budget)
		deviationPct := 0.0
		if event.Budget > 0 {
			deviationPct = billing.Round2(deviation / event.Budget * 100)
		}
		return &ExpenseSummary{
			EventID:      event.ID,
			EventName:    event.Name,
			Budget:       event.Budget,
			TotalSpent:   spent,
			TotalPaid:    paid,
			TotalPending: pending,
			TotalOverdue: overdue,
			Deviation:    deviation,
			DeviationPct: deviationPct,
			Alert:        deviationPct > deviationAlertPct || deviationPct < -deviationAlertPct,
			ByCategory:   byCategory,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Profitability sets invoiced income against expense spend for the event,
// with a per-category income/spend variance breakdown.
func (s *Service) Profitability(ctx context.Context, eventID int64) (*ProfitabilityReport, error) {
	event, err := s.dir.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("verify event: %w", err)
	}

	key, err := s.cache.BuildKey(ctx, keyProfitability(eventID))
	if err != nil {
		return nil, err
	}

	var report ProfitabilityReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		var (
			income        float64
			incomeByCat   []CategoryTotal
			expensesByCat []CategoryTotal
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			income, err = s.repo.InvoiceIncome(gctx, eventID)
			return err
		})
		g.Go(func() error {
			var err error
			incomeByCat, err = s.repo.InvoiceTotalsByCategory(gctx, eventID)
			return err
		})
		g.Go(func() error {
			var err error
			expensesByCat, err = s.repo.ExpenseTotalsByCategory(gctx, eventID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("aggregate profitability: %w", err)
		}

		var spent float64
		for _, ct := range expensesByCat {
			spent += ct.Amount
		}
		spent = billing.Round2(spent)
		income = billing.Round2(income)

		profitability := billing.Round2(income - spent)
		profitabilityPct := 0.0
		if income > 0 {
			profitabilityPct = billing.Round2(profitability / income * 100)
		}
		return &ProfitabilityReport{
			EventID:          event.ID,
			EventName:        event.Name,
			Income:           income,
			TotalSpent:       spent,
			Profitability:    profitability,
			ProfitabilityPct: profitabilityPct,
			ByCategory:       mergeVariance(incomeByCat, expensesByCat),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Invalidate bumps the cache version after billing writes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func mergeVariance(income, spent []CategoryTotal) []CategoryVariance {
	byCategory := make(map[billing.Category]*CategoryVariance)
	var order []billing.Category
	for _, ct := range income {
		byCategory[ct.Category] = &CategoryVariance{Category: ct.Category, Income: ct.Amount}
		order = append(order, ct.Category)
	}
	for _, ct := range spent {
		cv, ok := byCategory[ct.Category]
		if !ok {
			cv = &CategoryVariance{Category: ct.Category}
			byCategory[ct.Category] = cv
			order = append(order, ct.Category)
		}
		cv.Spent = ct.Amount
	}
	out := make([]CategoryVariance, 0, len(order))
	for _, cat := range order {
		cv := byCategory[cat]
		cv.Variance = billing.Round2(cv.Income - cv.Spent)
		out = append(out, *cv)
	}
	return out
}
