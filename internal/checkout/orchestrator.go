package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"go.uber.org/zap"
)

// Backend is the slice of the commerce client checkout drives.
type Backend interface {
	UpdateCart(ctx context.Context, cartID string, upd commerce.CartUpdate) (*commerce.Cart, error)
	ListCartShippingOptions(ctx context.Context, cartID string) ([]commerce.ShippingOption, error)
	AddShippingMethod(ctx context.Context, cartID, optionID string) (*commerce.Cart, error)
	CreatePaymentSessions(ctx context.Context, cartID string) (*commerce.Cart, error)
	SetPaymentSession(ctx context.Context, cartID, providerID string) (*commerce.Cart, error)
	CompleteCart(ctx context.Context, cartID string) (commerce.Completion, error)
}

type Carts interface {
	CartID(ctx context.Context, sid string) (string, bool, error)
	Refresh(ctx context.Context, sid string) (*commerce.Cart, error)
	Clear(ctx context.Context, sid string) error
}

type Customers interface {
	Current(ctx context.Context, sid string) (*commerce.Customer, error)
	AddAddress(ctx context.Context, sid string, addr commerce.Address) ([]commerce.Address, error)
}

// Recorder persists placed orders and announces them.
type Recorder interface {
	Record(ctx context.Context, p orders.Placement) error
	Settle(ctx context.Context, id string, to orders.Status, backendOrderID string) error
}

type Deps struct {
	Backend   Backend
	Carts     Carts
	Customers Customers
	Recorder  Recorder
	States    redisx.KV[State]
	Logger    *zap.Logger

	CountryCode     string
	OfflineFallback bool
	Debounce        time.Duration
	DraftTimeout    time.Duration
	// SettleTimeout bounds the writes that follow CompleteCart. They run
	// even when the request has gone away.
	SettleTimeout time.Duration
}

// Orchestrator walks a session through contact, address, shipping, payment
// and completion. Each step talks to the backend directly; nothing is rolled
// back when a later step fails.
type Orchestrator struct {
	backend   Backend
	carts     Carts
	customers Customers
	recorder  Recorder
	states    redisx.KV[State]
	log       *zap.Logger

	countryCode     string
	offlineFallback bool
	draftTimeout    time.Duration
	settleTimeout   time.Duration
	drafts          *Debouncer
	now             func() time.Time
}

func New(d Deps) *Orchestrator {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if d.Debounce <= 0 {
		d.Debounce = 300 * time.Millisecond
	}
	if d.DraftTimeout <= 0 {
		d.DraftTimeout = 15 * time.Second
	}
	if d.SettleTimeout <= 0 {
		d.SettleTimeout = 5 * time.Second
	}
	return &Orchestrator{
		backend:         d.Backend,
		carts:           d.Carts,
		customers:       d.Customers,
		recorder:        d.Recorder,
		states:          d.States,
		log:             log.Named("checkout"),
		countryCode:     d.CountryCode,
		offlineFallback: d.OfflineFallback,
		draftTimeout:    d.DraftTimeout,
		settleTimeout:   d.SettleTimeout,
		drafts:          NewDebouncer(d.Debounce),
		now:             time.Now,
	}
}

// detached keeps ctx's values but not its cancellation.
func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.settleTimeout)
}

// Close cancels pending draft address submissions and waits for one in flight.
func (o *Orchestrator) Close() { o.drafts.Stop() }

func (o *Orchestrator) initial(ctx context.Context, sid string) State {
	st := State{
		SelectedAddressID: NewAddress,
		AddressForm:       commerce.Address{CountryCode: o.countryCode},
		SaveToAccount:     true,
		PaymentMethod:     PaymentManual,
	}
	if o.customers == nil {
		return st
	}
	c, err := o.customers.Current(ctx, sid)
	if err != nil {
		return st
	}
	st.Email = c.Email
	if len(c.Addresses) > 0 {
		st.SelectedAddressID = c.Addresses[0].ID
	}
	return st
}

// State returns the session's checkout progress, starting a new one when
// there is none.
func (o *Orchestrator) State(ctx context.Context, sid string) (State, error) {
	st, found, err := o.states.Load(ctx, sid)
	if err != nil {
		return State{}, fmt.Errorf("load checkout state: %w", err)
	}
	if !found {
		st = o.initial(ctx, sid)
	}
	return st, nil
}

func (o *Orchestrator) save(ctx context.Context, sid string, st State) error {
	if err := o.states.Save(ctx, sid, st); err != nil {
		return fmt.Errorf("save checkout state: %w", err)
	}
	return nil
}

// fail records err on the state and returns it. The state is written even
// when ctx is already done.
func (o *Orchestrator) fail(ctx context.Context, sid string, st State, err error, fallback string) (State, error) {
	st.Error = message(err, fallback)
	st.Processing = false
	ctx, cancel := o.detached(ctx)
	defer cancel()
	if serr := o.save(ctx, sid, st); serr != nil {
		o.log.Warn("checkout state write failed", zap.String("session", sid), zap.Error(serr))
	}
	return st, err
}

// View assembles what the checkout page shows. The cart is re-fetched.
func (o *Orchestrator) View(ctx context.Context, sid string) (View, error) {
	st, err := o.State(ctx, sid)
	if err != nil {
		return View{}, err
	}
	c, err := o.carts.Refresh(ctx, sid)
	if err != nil {
		return View{}, err
	}
	v := View{
		State:          st,
		Cart:           cart.NewView(c),
		PaymentMethods: PaymentMethods,
	}
	if st.Email == "" && c != nil {
		v.Email = c.Email
	}
	if o.customers != nil {
		if cust, err := o.customers.Current(ctx, sid); err == nil {
			v.Authenticated = true
			v.Addresses = cust.Addresses
		} else if !errors.Is(err, customer.ErrNotAuthenticated) {
			o.log.Warn("customer lookup failed", zap.String("session", sid), zap.Error(err))
		}
	}
	v.PaymentDisabled = paymentDisabled(v.State, c.HasItems())
	return v, nil
}

// SetContact stores the contact email. Nothing is sent to the backend yet.
func (o *Orchestrator) SetContact(ctx context.Context, sid, email string) (State, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return State{}, &ValidationError{Field: "email", Msg: "a valid email address is required"}
	}
	st, err := o.State(ctx, sid)
	if err != nil {
		return State{}, err
	}
	st.Email = email
	return st, o.save(ctx, sid, st)
}

// AddressMissing lists the required fields addr lacks.
func AddressMissing(addr commerce.Address) []string {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"first_name", addr.FirstName},
		{"address_1", addr.Address1},
		{"city", addr.City},
		{"country_code", addr.CountryCode},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (o *Orchestrator) resolveAddress(ctx context.Context, sid string, st *State, sel AddressSelection) (commerce.Address, error) {
	if sel.SaveToAccount != nil {
		st.SaveToAccount = *sel.SaveToAccount
	}
	if sel.isNew() {
		st.SelectedAddressID = NewAddress
		if sel.Address != nil {
			st.AddressForm = *sel.Address
		}
		if st.AddressForm.CountryCode == "" {
			st.AddressForm.CountryCode = o.countryCode
		}
		if missing := AddressMissing(st.AddressForm); len(missing) > 0 {
			return commerce.Address{}, &ValidationError{Field: "address", Fields: missing, Err: ErrAddressIncomplete}
		}
		return st.AddressForm, nil
	}

	st.SelectedAddressID = sel.AddressID
	if o.customers == nil {
		return commerce.Address{}, customer.ErrNotAuthenticated
	}
	c, err := o.customers.Current(ctx, sid)
	if err != nil {
		return commerce.Address{}, err
	}
	for _, a := range c.Addresses {
		if a.ID == sel.AddressID {
			a.ID = ""
			return a, nil
		}
	}
	return commerce.Address{}, &ValidationError{Field: "address_id", Msg: "unknown saved address"}
}

// SetAddress resolves the selected address, pushes it to the cart, loads the
// shipping options and applies the first one. An incomplete address clears
// the options and makes no backend call.
func (o *Orchestrator) SetAddress(ctx context.Context, sid string, sel AddressSelection) (State, error) {
	st, err := o.State(ctx, sid)
	if err != nil {
		return State{}, err
	}
	st.Error = ""

	addr, err := o.resolveAddress(ctx, sid, &st, sel)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			st.ShippingOptions = nil
			st.SelectedShippingOption = ""
		}
		return o.fail(ctx, sid, st, err, "Failed to set shipping address.")
	}

	c, err := o.carts.Refresh(ctx, sid)
	if err != nil {
		return o.fail(ctx, sid, st, err, "Failed to set shipping address.")
	}
	if !c.HasItems() {
		// belum ada yang bisa dikirim, simpan pilihan saja
		return st, o.save(ctx, sid, st)
	}

	email := st.Email
	if email == "" {
		email = c.Email
	}
	if _, err := o.backend.UpdateCart(ctx, c.ID, commerce.CartUpdate{Email: email, ShippingAddress: &addr}); err != nil {
		return o.fail(ctx, sid, st, fmt.Errorf("update cart address: %w", err), "Failed to set shipping address.")
	}
	opts, err := o.backend.ListCartShippingOptions(ctx, c.ID)
	if err != nil {
		return o.fail(ctx, sid, st, fmt.Errorf("list shipping options: %w", err), "Failed to load shipping options.")
	}
	st.ShippingOptions = opts
	st.SelectedShippingOption = ""
	if len(opts) == 0 {
		return st, o.save(ctx, sid, st)
	}

	st.SelectedShippingOption = opts[0].ID
	if _, err := o.backend.AddShippingMethod(ctx, c.ID, opts[0].ID); err != nil {
		return o.fail(ctx, sid, st, fmt.Errorf("apply shipping method: %w", err), "Failed to apply shipping method.")
	}
	if _, err := o.carts.Refresh(ctx, sid); err != nil {
		o.log.Warn("cart refresh after shipping failed", zap.String("session", sid), zap.Error(err))
	}
	return st, o.save(ctx, sid, st)
}

// SetAddressDraft schedules SetAddress for sel once the session has stopped
// submitting drafts for the debounce delay. Only the last draft runs.
func (o *Orchestrator) SetAddressDraft(sid string, sel AddressSelection) {
	o.drafts.Trigger(sid, func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.draftTimeout)
		defer cancel()
		if _, err := o.SetAddress(ctx, sid, sel); err != nil && !errors.Is(err, ErrAddressIncomplete) {
			o.log.Warn("draft address failed", zap.String("session", sid), zap.Error(err))
		}
	})
}

// SelectShipping applies a shipping option to the cart.
func (o *Orchestrator) SelectShipping(ctx context.Context, sid, optionID string) (State, error) {
	if strings.TrimSpace(optionID) == "" {
		return State{}, &ValidationError{Field: "option_id", Msg: "a shipping option is required"}
	}
	st, err := o.State(ctx, sid)
	if err != nil {
		return State{}, err
	}
	st.Error = ""
	id, ok, err := o.carts.CartID(ctx, sid)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return st, nil
	}
	st.SelectedShippingOption = optionID
	if _, err := o.backend.AddShippingMethod(ctx, id, optionID); err != nil {
		return o.fail(ctx, sid, st, fmt.Errorf("apply shipping method: %w", err), "Failed to apply shipping method.")
	}
	if _, err := o.carts.Refresh(ctx, sid); err != nil {
		o.log.Warn("cart refresh after shipping failed", zap.String("session", sid), zap.Error(err))
	}
	return st, o.save(ctx, sid, st)
}

func (o *Orchestrator) SelectPayment(ctx context.Context, sid, method string) (State, error) {
	m, err := ParsePaymentMethod(method)
	if err != nil {
		return State{}, err
	}
	st, err := o.State(ctx, sid)
	if err != nil {
		return State{}, err
	}
	st.PaymentMethod = m
	st.Error = ""
	return st, o.save(ctx, sid, st)
}

// Complete places the order. With an offline payment method and the offline
// fallback enabled, any failure yields a locally synthesized order id instead
// of an error.
func (o *Orchestrator) Complete(ctx context.Context, sid string) (Result, error) {
	st, err := o.State(ctx, sid)
	if err != nil {
		return Result{}, err
	}
	c, err := o.carts.Refresh(ctx, sid)
	if err != nil {
		return Result{}, err
	}
	if !c.HasItems() {
		return Result{}, &ValidationError{Field: "cart", Msg: "your cart is empty", Err: ErrEmptyCart}
	}
	if st.Email == "" {
		st.Email = c.Email
	}
	if st.Email == "" {
		return Result{}, &ValidationError{Field: "email", Msg: "a contact email is required"}
	}
	if st.SelectedShippingOption == "" {
		return Result{}, &ValidationError{Field: "shipping_option", Msg: "choose a shipping option"}
	}
	if st.PaymentMethod == "" {
		st.PaymentMethod = PaymentManual
	}

	st.Processing = true
	st.Error = ""
	if err := o.save(ctx, sid, st); err != nil {
		return Result{}, err
	}
	st.Processing = false

	res, err := o.place(ctx, sid, &st, c)
	if err == nil {
		return res, nil
	}

	if st.PaymentMethod.Offline() && o.offlineFallback {
		return o.placeholder(ctx, sid, st, c, err)
	}
	_, err = o.fail(ctx, sid, st, err, "Failed to complete order. Please try again.")
	return Result{}, err
}

func (o *Orchestrator) place(ctx context.Context, sid string, st *State, c *commerce.Cart) (Result, error) {
	if c.Email != st.Email {
		if _, err := o.backend.UpdateCart(ctx, c.ID, commerce.CartUpdate{Email: st.Email}); err != nil {
			return Result{}, fmt.Errorf("update cart email: %w", err)
		}
	}
	if st.SelectedAddressID == NewAddress && st.SaveToAccount && len(AddressMissing(st.AddressForm)) == 0 && o.customers != nil {
		if _, err := o.customers.AddAddress(ctx, sid, st.AddressForm); err != nil && !errors.Is(err, customer.ErrNotAuthenticated) {
			o.log.Warn("save address to account failed", zap.String("session", sid), zap.Error(err))
		}
	}
	if _, err := o.backend.AddShippingMethod(ctx, c.ID, st.SelectedShippingOption); err != nil {
		return Result{}, fmt.Errorf("apply shipping method: %w", err)
	}

	if !st.PaymentMethod.Offline() {
		sessions, err := o.backend.CreatePaymentSessions(ctx, c.ID)
		if err != nil {
			o.log.Warn("create payment sessions failed", zap.String("cart_id", c.ID), zap.Error(err))
		} else {
			st.PaymentSessions = st.PaymentSessions[:0]
			for _, ps := range sessions.PaymentSessions {
				st.PaymentSessions = append(st.PaymentSessions, ps.ProviderID)
			}
		}
		set := func(ctx context.Context, p PaymentMethod) error {
			_, err := o.backend.SetPaymentSession(ctx, c.ID, string(p))
			return err
		}
		provider, err := SelectProvider(ctx, PreferenceOrder(st.PaymentMethod), set, o.log)
		if err != nil {
			return Result{}, err
		}
		o.log.Info("payment provider selected", zap.String("cart_id", c.ID), zap.String("provider", string(provider)))
	}

	comp, err := o.backend.CompleteCart(ctx, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("complete cart: %w", err)
	}

	// from here the backend has acted on the cart, so local writes must land
	ctx, cancel := o.detached(ctx)
	defer cancel()

	if comp.Type == commerce.CompletionOrder && comp.Order != nil {
		if st.PendingOrderID != "" {
			o.settle(ctx, st.PendingOrderID, orders.StatusConfirmed, comp.Order.ID)
		}
		o.record(ctx, orders.Placement{
			OrderID:        comp.Order.ID,
			BackendOrderID: comp.Order.ID,
			SessionID:      sid,
			CartID:         c.ID,
			Email:          st.Email,
			PaymentMethod:  string(st.PaymentMethod),
			Total:          totalOf(comp.Order.Total, c),
			CurrencyCode:   cart.NewView(c).Currency,
		})
		o.finish(ctx, sid, st.Email, comp.Order.ID)
		return Result{OrderID: comp.Order.ID}, nil
	}

	// payment is with the provider; the cart stays until it comes back
	o.record(ctx, orders.Placement{
		OrderID:       c.ID,
		SessionID:     sid,
		CartID:        c.ID,
		Email:         st.Email,
		PaymentMethod: string(st.PaymentMethod),
		Pending:       true,
		Total:         totalOf(nil, c),
		CurrencyCode:  cart.NewView(c).Currency,
	})
	st.PendingOrderID = c.ID
	if err := o.save(ctx, sid, *st); err != nil {
		o.log.Warn("checkout state write failed", zap.String("session", sid), zap.Error(err))
	}
	if u := comp.RedirectURL(); u != "" {
		return Result{RedirectURL: u}, nil
	}
	return Result{Pending: true}, nil
}

func (o *Orchestrator) placeholder(ctx context.Context, sid string, st State, c *commerce.Cart, cause error) (Result, error) {
	id := PlaceholderOrderID(o.now())
	o.log.Warn("order completion failed, issuing placeholder order",
		zap.String("session", sid), zap.String("cart_id", c.ID), zap.String("order_id", id), zap.Error(cause))
	ctx, cancel := o.detached(ctx)
	defer cancel()
	if st.PendingOrderID != "" {
		o.settle(ctx, st.PendingOrderID, orders.StatusAbandoned, "")
	}
	o.record(ctx, orders.Placement{
		OrderID:       id,
		SessionID:     sid,
		CartID:        c.ID,
		Email:         st.Email,
		PaymentMethod: string(st.PaymentMethod),
		Placeholder:   true,
		Total:         totalOf(nil, c),
		CurrencyCode:  cart.NewView(c).Currency,
	})
	o.finish(ctx, sid, st.Email, id)
	return Result{OrderID: id, Placeholder: true}, nil
}

// finish forgets the cart and starts a fresh checkout that remembers the order.
func (o *Orchestrator) finish(ctx context.Context, sid, email, orderID string) {
	if err := o.carts.Clear(ctx, sid); err != nil {
		o.log.Warn("clear cart reference failed", zap.String("session", sid), zap.Error(err))
	}
	st := o.initial(ctx, sid)
	if st.Email == "" {
		st.Email = email
	}
	st.OrderID = orderID
	if err := o.save(ctx, sid, st); err != nil {
		o.log.Warn("checkout state write failed", zap.String("session", sid), zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, p orders.Placement) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, p); err != nil {
		o.log.Error("record order failed", zap.String("order_id", p.OrderID), zap.Error(err))
	}
}

func (o *Orchestrator) settle(ctx context.Context, id string, to orders.Status, backendOrderID string) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Settle(ctx, id, to, backendOrderID); err != nil {
		o.log.Warn("settle pending order failed",
			zap.String("order_id", id), zap.String("status", string(to)), zap.Error(err))
	}
}

func totalOf(v *int64, c *commerce.Cart) int64 {
	if v != nil {
		return *v
	}
	switch {
	case c.Total != nil:
		return *c.Total
	case c.Subtotal != nil:
		return *c.Subtotal
	}
	return 0
}
