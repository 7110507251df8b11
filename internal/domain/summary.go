package domain

import "fmt"

// SummaryLine is one display row of the order summary.
type SummaryLine struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
	Formatted string `json:"formatted"`
}

// Summary is a read-only view of a cart for review before payment.
type Summary struct {
	Lines             []SummaryLine `json:"lines"`
	ItemCount         int           `json:"item_count"`
	Subtotal          int64         `json:"subtotal"`
	Currency          string        `json:"currency"`
	FormattedSubtotal string        `json:"formatted_subtotal"`
}

// BuildSummary derives display totals from cart. The cart is not modified.
func BuildSummary(cart *Cart) Summary {
	currency := cart.Currency
	if currency == "" {
		currency = CurrencyUSD
	}

	lines := make([]SummaryLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, SummaryLine{
			ID:        item.ID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
			Formatted: FormatAmount(item.LineTotal(), currency),
		})
	}

	subtotal := cart.Subtotal()
	return Summary{
		Lines:             lines,
		ItemCount:         cart.ItemCount(),
		Subtotal:          subtotal,
		Currency:          currency,
		FormattedSubtotal: FormatAmount(subtotal, currency),
	}
}

// DecimalAmount renders cents as a plain decimal string, e.g. 3000 -> "30.00".
func DecimalAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// FormatAmount renders cents for display, e.g. 3000 USD -> "$30.00".
func FormatAmount(cents int64, currency string) string {
	if currency == CurrencyUSD {
		return "$" + DecimalAmount(cents)
	}
	return DecimalAmount(cents) + " " + currency
}
