// Package commercetest provides an in-memory commerce backend for tests.
package commercetest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/ariefcatur/go-storefront/internal/commerce"
)

// Backend mimics the Store API closely enough to drive cart and checkout
// flows. Failures are injected per operation name through Fail.
type Backend struct {
	mu sync.Mutex

	Carts     map[string]*commerce.Cart
	Variants  map[string]int64 // variant id -> unit price
	Options   []commerce.ShippingOption
	Providers map[string]bool // provider ids the backend accepts

	Customers   map[string]*commerce.Customer // token -> customer
	Credentials map[string]string             // email -> password

	Products    []commerce.Product
	Categories  []commerce.Category
	Collections []commerce.Collection

	// Complete overrides cart completion when set.
	Complete func(cartID string) (commerce.Completion, error)

	fail  map[string]error
	calls []string
	seq   int
}

func New() *Backend {
	return &Backend{
		Carts:       map[string]*commerce.Cart{},
		Variants:    map[string]int64{"variant_1": 500, "variant_2": 1250},
		Providers:   map[string]bool{"manual": true},
		Customers:   map[string]*commerce.Customer{},
		Credentials: map[string]string{},
		fail:        map[string]error{},
	}
}

// Fail makes every later call to op return err. A nil err clears it.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, op)
		return
	}
	b.fail[op] = err
}

// Calls returns the operation names invoked so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// Count returns how many times op was invoked.
func (b *Backend) Count(op string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (b *Backend) enter(op string) error {
	b.calls = append(b.calls, op)
	return b.fail[op]
}

func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s_%d", prefix, b.seq)
}

func notFound(what string) error {
	return &commerce.APIError{Status: http.StatusNotFound, Type: "not_found", Message: what + " was not found"}
}

func invalid(msg string) error {
	return &commerce.APIError{Status: http.StatusBadRequest, Type: "invalid_data", Message: msg}
}

func (b *Backend) cart(id string) (*commerce.Cart, error) {
	c, ok := b.Carts[id]
	if !ok {
		return nil, notFound("Cart with " + id)
	}
	return c, nil
}

func (b *Backend) snapshot(c *commerce.Cart) *commerce.Cart {
	var sub int64
	for _, it := range c.Items {
		sub += int64(it.Quantity) * it.UnitPrice
	}
	out := *c
	out.Items = slices.Clone(c.Items)
	out.Subtotal = &sub
	total := sub
	if c.ShippingTotal != nil {
		total += *c.ShippingTotal
	}
	out.Total = &total
	return &out
}

func (b *Backend) CreateCart(ctx context.Context, regionID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateCart"); err != nil {
		return nil, err
	}
	c := &commerce.Cart{
		ID:       b.nextID("cart"),
		RegionID: regionID,
		Region:   &commerce.Region{ID: regionID, CurrencyCode: "inr"},
		Items:    []commerce.LineItem{},
	}
	b.Carts[c.ID] = c
	return b.snapshot(c), nil
}

func (b *Backend) RetrieveCart(ctx context.Context, cartID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RetrieveCart"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	return b.snapshot(c), nil
}

func (b *Backend) UpdateCart(ctx context.Context, cartID string, upd commerce.CartUpdate) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateCart"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if upd.Email != "" {
		c.Email = upd.Email
	}
	if upd.ShippingAddress != nil {
		a := *upd.ShippingAddress
		c.ShippingAddress = &a
	}
	return b.snapshot(c), nil
}

func (b *Backend) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("AddLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	price, ok := b.Variants[variantID]
	if !ok {
		return nil, invalid("Variant with id " + variantID + " does not exist")
	}
	if quantity < 1 {
		return nil, invalid("quantity must be greater than 0")
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items[i].Quantity += quantity
			return b.snapshot(c), nil
		}
	}
	c.Items = append(c.Items, commerce.LineItem{
		ID:        b.nextID("item"),
		CartID:    cartID,
		VariantID: variantID,
		Title:     variantID,
		Quantity:  quantity,
		UnitPrice: price,
	})
	return b.snapshot(c), nil
}

func (b *Backend) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, invalid("quantity must be greater than 0")
	}
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			c.Items[i].Quantity = quantity
			return b.snapshot(c), nil
		}
	}
	return nil, notFound("Line item " + lineID)
}

func (b *Backend) DeleteLineItem(ctx context.Context, cartID, lineID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("DeleteLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	c.Items = slices.DeleteFunc(c.Items, func(it commerce.LineItem) bool { return it.ID == lineID })
	return b.snapshot(c), nil
}

func (b *Backend) ListCartShippingOptions(ctx context.Context, cartID string) ([]commerce.ShippingOption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListCartShippingOptions"); err != nil {
		return nil, err
	}
	if _, err := b.cart(cartID); err != nil {
		return nil, err
	}
	return slices.Clone(b.Options), nil
}

func (b *Backend) AddShippingMethod(ctx context.Context, cartID, optionID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("AddShippingMethod"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for _, o := range b.Options {
		if o.ID == optionID {
			amt := int64(0)
			if o.Amount != nil {
				amt = *o.Amount
			}
			c.ShippingTotal = &amt
			return b.snapshot(c), nil
		}
	}
	return nil, invalid("Shipping option " + optionID + " is not available")
}

func (b *Backend) CreatePaymentSessions(ctx context.Context, cartID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreatePaymentSessions"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	c.PaymentSessions = nil
	for id, ok := range b.Providers {
		if ok {
			c.PaymentSessions = append(c.PaymentSessions, commerce.PaymentSession{ProviderID: id, Status: "pending"})
		}
	}
	slices.SortFunc(c.PaymentSessions, func(a, b commerce.PaymentSession) int {
		if a.ProviderID < b.ProviderID {
			return -1
		}
		if a.ProviderID > b.ProviderID {
			return 1
		}
		return 0
	})
	return b.snapshot(c), nil
}

func (b *Backend) SetPaymentSession(ctx context.Context, cartID, providerID string) (*commerce.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("SetPaymentSession:" + providerID); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if !b.Providers[providerID] {
		return nil, invalid("Payment provider " + providerID + " is not available in region")
	}
	c.PaymentSession = &commerce.PaymentSession{ProviderID: providerID, IsSelected: true}
	return b.snapshot(c), nil
}

func (b *Backend) CompleteCart(ctx context.Context, cartID string) (commerce.Completion, error) {
	b.mu.Lock()
	if err := b.enter("CompleteCart"); err != nil {
		b.mu.Unlock()
		return commerce.Completion{}, err
	}
	if b.Complete != nil {
		fn := b.Complete
		b.mu.Unlock()
		return fn(cartID)
	}
	defer b.mu.Unlock()
	c, err := b.cart(cartID)
	if err != nil {
		return commerce.Completion{}, err
	}
	snap := b.snapshot(c)
	return commerce.Completion{
		Type:  commerce.CompletionOrder,
		Order: &commerce.Order{ID: b.nextID("order"), CartID: cartID, Email: c.Email, Total: snap.Total},
	}, nil
}
