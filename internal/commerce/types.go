package commerce

import (
	"encoding/json"
	"time"
)

type Region struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	CurrencyCode string `json:"currency_code"`
}

type LineItem struct {
	ID           string  `json:"id"`
	CartID       string  `json:"cart_id,omitempty"`
	VariantID    string  `json:"variant_id,omitempty"`
	Title        string  `json:"title"`
	VariantTitle string  `json:"variant_title,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    int64   `json:"unit_price"`
	Thumbnail    *string `json:"thumbnail,omitempty"`
}

type Address struct {
	ID          string `json:"id,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city"`
	Province    string `json:"province,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

type PaymentSession struct {
	ID         string         `json:"id,omitempty"`
	ProviderID string         `json:"provider_id"`
	Status     string         `json:"status,omitempty"`
	IsSelected bool           `json:"is_selected,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

type Cart struct {
	ID              string           `json:"id"`
	Email           string           `json:"email,omitempty"`
	RegionID        string           `json:"region_id,omitempty"`
	Region          *Region          `json:"region,omitempty"`
	CurrencyCode    string           `json:"currency_code,omitempty"`
	Items           []LineItem       `json:"items"`
	ShippingAddress *Address         `json:"shipping_address,omitempty"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
	PaymentSession  *PaymentSession  `json:"payment_session,omitempty"`
	Subtotal        *int64           `json:"subtotal,omitempty"`
	ShippingTotal   *int64           `json:"shipping_total,omitempty"`
	TaxTotal        *int64           `json:"tax_total,omitempty"`
	Total           *int64           `json:"total,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// HasItems reports whether the cart has at least one line item.
func (c *Cart) HasItems() bool { return c != nil && len(c.Items) > 0 }

// ItemCount sums line item quantities.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

type ShippingOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount *int64 `json:"amount,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Addresses []Address `json:"shipping_addresses,omitempty"`
}

type Order struct {
	ID           string `json:"id"`
	DisplayID    int    `json:"display_id,omitempty"`
	CartID       string `json:"cart_id,omitempty"`
	Email        string `json:"email,omitempty"`
	CurrencyCode string `json:"currency_code,omitempty"`
	Total        *int64 `json:"total,omitempty"`
}

// CompletionType values returned by cart completion.
const (
	CompletionOrder = "order"
	CompletionCart  = "cart"
)

// Completion is the outcome of completing a cart. Exactly one of Order or
// Cart is set, depending on Type.
type Completion struct {
	Type  string
	Order *Order
	Cart  *Cart
}

// RedirectURL returns the payment provider redirect, if the backend asked
// for one instead of creating an order.
func (c Completion) RedirectURL() string {
	if c.Cart == nil || c.Cart.PaymentSession == nil {
		return ""
	}
	if s, ok := c.Cart.PaymentSession.Data["redirect_url"].(string); ok {
		return s
	}
	return ""
}

type completionWire struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Price struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type CalculatedPrice struct {
	CalculatedAmount *float64 `json:"calculated_amount,omitempty"`
}

type Variant struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	SKU             string           `json:"sku,omitempty"`
	InventoryQty    int              `json:"inventory_quantity,omitempty"`
	Prices          []Price          `json:"prices,omitempty"`
	CalculatedPrice *CalculatedPrice `json:"calculated_price,omitempty"`
}

type Image struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

type Product struct {
	ID           string     `json:"id"`
	Handle       string     `json:"handle"`
	Title        string     `json:"title"`
	Subtitle     string     `json:"subtitle,omitempty"`
	Description  string     `json:"description,omitempty"`
	Thumbnail    *string    `json:"thumbnail,omitempty"`
	Images       []Image    `json:"images,omitempty"`
	Variants     []Variant  `json:"variants,omitempty"`
	CollectionID string     `json:"collection_id,omitempty"`
	Categories   []Category `json:"categories,omitempty"`
}

type Category struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Handle           string `json:"handle"`
	ParentCategoryID string `json:"parent_category_id,omitempty"`
}

type Collection struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

// ProductFilter maps onto the backend product list query string.
type ProductFilter struct {
	IDs          []string
	CategoryID   string
	CollectionID string
	Handle       string
	Query        string
	RegionID     string
	Limit        int
	Offset       int
}

type ProductPage struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// CartUpdate carries the optional fields for an update cart call.
type CartUpdate struct {
	Email           string   `json:"email,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
}

type NewCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
}
