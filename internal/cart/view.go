package cart

import (
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/money"
)

type Totals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// View is the cart as the storefront renders it.
type View struct {
	Cart      *commerce.Cart `json:"cart"`
	Currency  string         `json:"currency"`
	Totals    Totals         `json:"totals"`
	HasItems  bool           `json:"has_items"`
	ItemCount int            `json:"item_count"`
}

func NewView(c *commerce.Cart) View {
	v := View{Cart: c, Currency: money.DefaultCurrency, Totals: TotalsOf(nil)}
	if c == nil {
		return v
	}
	region := ""
	if c.Region != nil {
		region = c.Region.CurrencyCode
	}
	v.Currency = money.Currency(region, c.CurrencyCode)
	v.Totals = TotalsOf(c)
	v.HasItems = c.HasItems()
	v.ItemCount = c.ItemCount()
	return v
}

// TotalsOf formats backend computed totals. Total falls back to subtotal.
func TotalsOf(c *commerce.Cart) Totals {
	if c == nil {
		return Totals{Subtotal: money.Format(nil), Shipping: money.Format(nil), Tax: money.Format(nil), Total: money.Format(nil)}
	}
	total := c.Total
	if total == nil {
		total = c.Subtotal
	}
	return Totals{
		Subtotal: money.Format(c.Subtotal),
		Shipping: money.Format(c.ShippingTotal),
		Tax:      money.Format(c.TaxTotal),
		Total:    money.Format(total),
	}
}
