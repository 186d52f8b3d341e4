package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteTotals(t *testing.T) {
	margin, tax, total := QuoteTotals(1000, 20)
	require.Equal(t, 200.0, margin)
	require.Equal(t, 252.0, tax)
	require.Equal(t, 1452.0, total)
}

func TestQuoteTotalsZeroMargin(t *testing.T) {
	margin, tax, total := QuoteTotals(500, 0)
	require.Equal(t, 0.0, margin)
	require.Equal(t, 105.0, tax)
	require.Equal(t, 605.0, total)
}

func TestInvoiceTotalsPercentMargin(t *testing.T) {
	margin, tax, total := InvoiceTotals(3000, 630, 20, 0)
	require.Equal(t, 600.0, margin)
	require.Equal(t, 630.0, tax)
	require.Equal(t, 4230.0, total)
}

func TestInvoiceTotalsKeepsStoredMargin(t *testing.T) {
	margin, tax, total := InvoiceTotals(3000, 630, 0, 150)
	require.Equal(t, 150.0, margin)
	require.Equal(t, 630.0, tax)
	require.Equal(t, 3780.0, total)
}

func TestLineTaxDefaultsToRate(t *testing.T) {
	require.Equal(t, 210.0, LineTax(1000))
	require.Equal(t, 1000.0, LineSubtotal(2, 500))
}

func TestRound2(t *testing.T) {
	require.Equal(t, 0.3, Round2(0.1+0.2))
	require.Equal(t, 12.35, Round2(12.345000001))
}
