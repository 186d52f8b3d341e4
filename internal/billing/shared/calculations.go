// Package shared holds the money arithmetic used by quotes and invoices.
package shared

import "math"

// TaxRate is the single fixed tax rate applied across the engine.
const TaxRate = 0.21

// Round2 rounds a monetary amount to 2 decimals. Every derived field is
// rounded before persistence.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineSubtotal computes quantity x unit price for one line.
func LineSubtotal(quantity, unitPrice float64) float64 {
	return Round2(quantity * unitPrice)
}

// LineTax computes the default tax for a line that carries no explicit tax.
func LineTax(subtotal float64) float64 {
	return Round2(subtotal * TaxRate)
}

// QuoteTotals derives margin amount, tax and total from a quote subtotal.
// Tax applies to subtotal plus margin.
func QuoteTotals(subtotal, marginPct float64) (marginAmount, tax, total float64) {
	marginAmount = Round2(subtotal * marginPct / 100)
	tax = Round2((subtotal + marginAmount) * TaxRate)
	total = Round2(subtotal + marginAmount + tax)
	return
}

// InvoiceTotals derives the invoice total from line sums. Tax is the sum of
// line taxes, not a flat recompute. When marginPct is zero the previously
// stored margin amount is kept, supporting invoices whose margin was set as an
// absolute amount.
func InvoiceTotals(subtotal, lineTaxSum, marginPct, storedMargin float64) (marginAmount, tax, total float64) {
	tax = Round2(lineTaxSum)
	if marginPct > 0 {
		marginAmount = Round2(subtotal * marginPct / 100)
	} else {
		marginAmount = Round2(storedMargin)
	}
	total = Round2(subtotal + tax + marginAmount)
	return
}
