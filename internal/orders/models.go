package orders

import "time"

// Confirmation is the storefront's record of an order shown to a shopper.
// Placeholder confirmations carry a locally synthesized id until they are
// reconciled with a backend order.
type Confirmation struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"-"`
	CartID         string    `json:"cart_id"`
	Email          string    `json:"email,omitempty"`
	PaymentMethod  string    `json:"payment_method"`
	Status         Status    `json:"status"`
	Placeholder    bool      `json:"placeholder"`
	BackendOrderID string    `json:"backend_order_id,omitempty"`
	Total          int64     `json:"total"`
	CurrencyCode   string    `json:"currency_code"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Placement describes an order the checkout just handed out.
type Placement struct {
	OrderID        string
	BackendOrderID string
	SessionID      string
	CartID         string
	Email          string
	PaymentMethod  string
	Placeholder    bool
	Pending        bool // payment still with the provider, no backend order yet
	Total          int64
	CurrencyCode   string
}

func (p Placement) Status() Status {
	if p.Placeholder {
		return StatusPlaceholder
	}
	if p.Pending {
		return StatusPendingPayment
	}
	return StatusConfirmed
}

func (p Placement) Confirmation() Confirmation {
	return Confirmation{
		ID:             p.OrderID,
		SessionID:      p.SessionID,
		CartID:         p.CartID,
		Email:          p.Email,
		PaymentMethod:  p.PaymentMethod,
		Status:         p.Status(),
		Placeholder:    p.Placeholder,
		BackendOrderID: p.BackendOrderID,
		Total:          p.Total,
		CurrencyCode:   p.CurrencyCode,
	}
}
