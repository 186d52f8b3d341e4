package shared

// Category classifies line items and expenses.
type Category string

const (
	CategoryCatering   Category = "CATERING"
	CategorySound      Category = "SOUND"
	CategoryLighting   Category = "LIGHTING"
	CategoryDecoration Category = "DECORATION"
	CategoryLogistics  Category = "LOGISTICS"
	CategoryServices   Category = "SERVICES"
	CategoryOther      Category = "OTHER"
)

var quoteCategories = map[Category]bool{
	CategoryCatering:   true,
	CategorySound:      true,
	CategoryLighting:   true,
	CategoryDecoration: true,
	CategoryLogistics:  true,
	CategoryOther:      true,
}

// ValidQuoteCategory reports whether c may appear on a quote line.
func ValidQuoteCategory(c Category) bool {
	return quoteCategories[c]
}

// ValidInvoiceCategory reports whether c may appear on an invoice line.
// Invoices accept the quote categories plus SERVICES.
func ValidInvoiceCategory(c Category) bool {
	return c == CategoryServices || quoteCategories[c]
}
