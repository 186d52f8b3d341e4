package invoices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	billing "github.com/encore-erp/encore-erp/internal/billing/shared"
	"github.com/encore-erp/encore-erp/internal/expenses"
	"github.com/encore-erp/encore-erp/internal/quotes"
	"github.com/encore-erp/encore-erp/internal/shared"
)

func TestGenerateFromExpensesCopiesLines(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.expenseRepo.byEvent[1] = []expenses.Expense{
		{ID: 1, EventID: 1, Description: "Sound rental", Category: "SOUND", Amount: 1000, Tax: 210, Total: 1210, Status: expenses.StatusPaid},
		{ID: 2, EventID: 1, Description: "Catering", Category: "CATERING", Amount: 2000, Tax: 420, Total: 2420, Status: expenses.StatusPending},
		{ID: 3, EventID: 1, Description: "Voided", Category: "OTHER", Amount: 999, Tax: 209.79, Total: 1208.79, Status: expenses.StatusCancelled},
	}

	result, err := svc.GenerateFromExpenses(ctx, 1, GenerateFromExpensesRequest{}, 7)
	require.NoError(t, err)
	require.Empty(t, result.ItemFailures)

	invoice := result.Invoice
	require.Equal(t, StatusDraft, invoice.Status)
	require.Equal(t, int64(1), invoice.ClientID)
	require.Len(t, invoice.Items, 2)
	require.InDelta(t, 1.0, invoice.Items[0].Quantity, 0.001)
	require.InDelta(t, 1000.0, invoice.Items[0].UnitPrice, 0.001)
	require.InDelta(t, 210.0, invoice.Items[0].Tax, 0.001)

	// Margin is not applied to expense-sourced invoices unless requested.
	require.InDelta(t, 3000.0, invoice.Subtotal, 0.001)
	require.InDelta(t, 630.0, invoice.Tax, 0.001)
	require.InDelta(t, 0.0, invoice.MarginAmount, 0.001)
	require.InDelta(t, 3630.0, invoice.Total, 0.001)
}

func TestGenerateFromExpensesKeepsSurvivingLines(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.expenseRepo.byEvent[1] = []expenses.Expense{
		{ID: 1, EventID: 1, Description: "Sound rental", Category: "SOUND", Amount: 1000, Tax: 210, Total: 1210, Status: expenses.StatusPaid},
		{ID: 2, EventID: 1, Description: "Oversized line", Category: "CATERING", Amount: 2000, Tax: 420, Total: 2420, Status: expenses.StatusPending},
	}
	deps.repo.failItemDesc = "Oversized line"

	result, err := svc.GenerateFromExpenses(ctx, 1, GenerateFromExpensesRequest{}, 7)
	require.NoError(t, err)
	require.Len(t, result.ItemFailures, 1)
	require.Equal(t, "Oversized line", result.ItemFailures[0].Description)
	require.NotEmpty(t, result.ItemFailures[0].Reason)

	// The invoice survives with the lines that made it, totals recalculated
	// from those alone.
	invoice := result.Invoice
	require.Len(t, invoice.Items, 1)
	require.InDelta(t, 1000.0, invoice.Subtotal, 0.001)
	require.InDelta(t, 210.0, invoice.Tax, 0.001)
	require.InDelta(t, 1210.0, invoice.Total, 0.001)
}

func TestGenerateFromExpensesRequiresBillableExpenses(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.expenseRepo.byEvent[1] = []expenses.Expense{
		{ID: 1, EventID: 1, Description: "Voided", Category: "OTHER", Amount: 100, Tax: 21, Total: 121, Status: expenses.StatusCancelled},
	}

	_, err := svc.GenerateFromExpenses(ctx, 1, GenerateFromExpensesRequest{}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, deps.repo.invoices)
}

func TestGenerateFromExpensesUnknownEvent(t *testing.T) {
	svc, deps := newTestService()

	_, err := svc.GenerateFromExpenses(context.Background(), 42, GenerateFromExpensesRequest{}, 7)
	require.ErrorIs(t, err, shared.ErrReferenceNotFound)
	require.Empty(t, deps.repo.invoices)
}

func TestGenerateFromExpensesExplicitClientOverridesEvent(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.expenseRepo.byEvent[1] = []expenses.Expense{
		{ID: 1, EventID: 1, Description: "Logistics", Category: "LOGISTICS", Amount: 400, Tax: 84, Total: 484, Status: expenses.StatusPending},
	}
	clientID := int64(2)

	result, err := svc.GenerateFromExpenses(ctx, 1, GenerateFromExpensesRequest{ClientID: &clientID}, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Invoice.ClientID)
}

func TestGenerateFromQuoteRequiresApproval(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.quoteSource.quotes[5] = &quotes.Quote{
		ID: 5, Number: "COT-2026-0001", ClientID: 1, EventID: 1,
		MarginPct: 20, Status: quotes.StatusPending,
	}

	_, err := svc.GenerateFromQuote(ctx, 5, GenerateFromQuoteRequest{}, 7)
	require.ErrorIs(t, err, ErrQuoteNotApproved)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, deps.repo.invoices)
}

func TestGenerateFromQuoteCarriesMarginAndLines(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.quoteSource.quotes[5] = &quotes.Quote{
		ID: 5, Number: "COT-2026-0001", ClientID: 1, EventID: 1,
		MarginPct: 20, Status: quotes.StatusApproved,
		Items: []quotes.QuoteItem{
			{ID: 1, QuoteID: 5, ProviderID: 1, Description: "PA system", Category: billing.CategorySound, Quantity: 2, UnitPrice: 500, Subtotal: 1000},
		},
	}

	result, err := svc.GenerateFromQuote(ctx, 5, GenerateFromQuoteRequest{}, 7)
	require.NoError(t, err)
	require.Empty(t, result.ItemFailures)

	invoice := result.Invoice
	require.Equal(t, StatusDraft, invoice.Status)
	require.NotNil(t, invoice.QuoteID)
	require.Equal(t, int64(5), *invoice.QuoteID)
	require.Len(t, invoice.Items, 1)
	require.InDelta(t, 1000.0, invoice.Items[0].Subtotal, 0.001)
	require.InDelta(t, 210.0, invoice.Items[0].Tax, 0.001)

	require.InDelta(t, 1000.0, invoice.Subtotal, 0.001)
	require.InDelta(t, 210.0, invoice.Tax, 0.001)
	require.InDelta(t, 200.0, invoice.MarginAmount, 0.001)
	require.InDelta(t, 1410.0, invoice.Total, 0.001)
}

func TestGenerateFromQuoteMarginOverride(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	deps.quoteSource.quotes[5] = &quotes.Quote{
		ID: 5, Number: "COT-2026-0001", ClientID: 1, EventID: 1,
		MarginPct: 20, Status: quotes.StatusApproved,
		Items: []quotes.QuoteItem{
			{ID: 1, QuoteID: 5, ProviderID: 1, Description: "Decor", Category: billing.CategoryDecoration, Quantity: 1, UnitPrice: 1000, Subtotal: 1000},
		},
	}

	result, err := svc.GenerateFromQuote(ctx, 5, GenerateFromQuoteRequest{MarginPct: floatPtr(10)}, 7)
	require.NoError(t, err)
	require.InDelta(t, 10.0, result.Invoice.MarginPct, 0.001)
	require.InDelta(t, 100.0, result.Invoice.MarginAmount, 0.001)
	require.InDelta(t, 1310.0, result.Invoice.Total, 0.001)
}
