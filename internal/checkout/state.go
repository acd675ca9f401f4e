package checkout

import (
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/commerce"
)

// NewAddress marks an ad hoc address entered for this checkout only.
const NewAddress = "new"

// State is the per-session checkout progress. It lives in Redis between
// requests; the cart itself stays in the backend.
type State struct {
	Email                  string                    `json:"email"`
	SelectedAddressID      string                    `json:"selected_address_id"`
	AddressForm            commerce.Address          `json:"address_form"`
	SaveToAccount          bool                      `json:"save_to_account"`
	ShippingOptions        []commerce.ShippingOption `json:"shipping_options"`
	SelectedShippingOption string                    `json:"selected_shipping_option"`
	PaymentMethod          PaymentMethod             `json:"payment_method"`
	PaymentSessions        []string                  `json:"payment_sessions,omitempty"`
	Processing             bool                      `json:"processing"`
	Error                  string                    `json:"error,omitempty"`
	OrderID                string                    `json:"order_id,omitempty"`
	// PendingOrderID is the confirmation left open while a payment provider
	// holds the shopper.
	PendingOrderID         string                    `json:"pending_order_id,omitempty"`
}

// AddressSelection picks a saved address by id, or supplies a new one.
type AddressSelection struct {
	AddressID     string            `json:"address_id,omitempty"`
	Address       *commerce.Address `json:"address,omitempty"`
	SaveToAccount *bool             `json:"save_to_account,omitempty"`
}

func (s AddressSelection) isNew() bool {
	return s.AddressID == "" || s.AddressID == NewAddress
}

// Result is the outcome of Complete. OrderID is set for a placed order
// (Placeholder when it was synthesized locally), RedirectURL when the payment
// provider needs the shopper to leave the site, Pending otherwise.
type Result struct {
	OrderID     string `json:"order_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Pending     bool   `json:"pending,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// View is everything the checkout page renders.
type View struct {
	State
	Cart            cart.View          `json:"summary"`
	Addresses       []commerce.Address `json:"addresses"`
	Authenticated   bool               `json:"authenticated"`
	PaymentDisabled bool               `json:"payment_disabled"`
	PaymentMethods  []PaymentMethod    `json:"payment_methods"`
}

func paymentDisabled(s State, hasItems bool) bool {
	return s.Processing || !hasItems || s.Email == "" || s.SelectedShippingOption == ""
}
