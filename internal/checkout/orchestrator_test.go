package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/commerce/commercetest"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustomers struct {
	mu    sync.Mutex
	cust  *commerce.Customer
	added []commerce.Address
}

func (f *fakeCustomers) Current(context.Context, string) (*commerce.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cust == nil {
		return nil, customer.ErrNotAuthenticated
	}
	cp := *f.cust
	return &cp, nil
}

func (f *fakeCustomers) AddAddress(_ context.Context, _ string, addr commerce.Address) ([]commerce.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cust == nil {
		return nil, customer.ErrNotAuthenticated
	}
	f.added = append(f.added, addr)
	return append(f.cust.Addresses, addr), nil
}

type settled struct {
	id, backendOrderID string
	to                 orders.Status
}

type fakeRecorder struct {
	mu      sync.Mutex
	placed  []orders.Placement
	settled []settled
	ctxErrs []error
}

func (f *fakeRecorder) Record(ctx context.Context, p orders.Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, p)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return nil
}

func (f *fakeRecorder) Settle(ctx context.Context, id string, to orders.Status, backendOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settled{id: id, to: to, backendOrderID: backendOrderID})
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return nil
}

type fixture struct {
	o     *Orchestrator
	be    *commercetest.Backend
	carts *cart.Manager
	cust  *fakeCustomers
	rec   *fakeRecorder
	mr    *miniredis.Miniredis
}

const sid = "sid-1"

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	be := commercetest.New()
	be.Options = []commerce.ShippingOption{
		{ID: "a", Name: "Standard", Amount: ptr(int64(500))},
		{ID: "b", Name: "Express", Amount: ptr(int64(900))},
	}
	carts := cart.NewManager(be,
		redisx.NewStore[string](rdb, redisx.KeySessionCart, redisx.TTLSession),
		redisx.NewStore[commerce.Cart](rdb, redisx.KeyCartState, redisx.TTLCartState),
		"reg_test", nil)
	f := &fixture{be: be, carts: carts, cust: &fakeCustomers{}, rec: &fakeRecorder{}, mr: mr}
	f.o = New(Deps{
		Backend:         be,
		Carts:           carts,
		Customers:       f.cust,
		Recorder:        f.rec,
		States:          redisx.NewStore[State](rdb, redisx.KeyCheckout, redisx.TTLCheckout),
		CountryCode:     "in",
		OfflineFallback: true,
		Debounce:        20 * time.Millisecond,
	})
	t.Cleanup(f.o.Close)
	return f
}

func ptr[T any](v T) *T { return &v }

var validAddress = commerce.Address{FirstName: "Asha", Address1: "12 MG Road", City: "Pune"}

func (f *fixture) withItems(t *testing.T) string {
	t.Helper()
	c, err := f.carts.AddItem(context.Background(), sid, "variant_1", 2)
	require.NoError(t, err)
	return c.ID
}

// ready brings the session to the point where the order can be placed.
func (f *fixture) ready(t *testing.T, method PaymentMethod) string {
	t.Helper()
	ctx := context.Background()
	id := f.withItems(t)
	_, err := f.o.SetContact(ctx, sid, "asha@example.com")
	require.NoError(t, err)
	_, err = f.o.SetAddress(ctx, sid, AddressSelection{Address: &validAddress})
	require.NoError(t, err)
	_, err = f.o.SelectPayment(ctx, sid, string(method))
	require.NoError(t, err)
	return id
}

func TestSetAddress_IncompleteMakesNoBackendCall(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.withItems(t)

	st, err := f.o.SetAddress(ctx, sid, AddressSelection{Address: &commerce.Address{FirstName: "Asha", Address1: "12 MG Road"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressIncomplete)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"city"}, verr.Fields)

	assert.Zero(t, f.be.Count("UpdateCart"))
	assert.Zero(t, f.be.Count("ListCartShippingOptions"))
	assert.Empty(t, st.ShippingOptions)
	assert.Empty(t, st.SelectedShippingOption)
	assert.Equal(t, "in", st.AddressForm.CountryCode)
}

func TestSetAddress_AutoSelectsFirstOption(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cartID := f.withItems(t)

	st, err := f.o.SetAddress(ctx, sid, AddressSelection{Address: &validAddress})
	require.NoError(t, err)
	require.Len(t, st.ShippingOptions, 2)
	assert.Equal(t, "a", st.SelectedShippingOption)
	assert.Equal(t, 1, f.be.Count("AddShippingMethod"))
	assert.Equal(t, "Pune", f.be.Carts[cartID].ShippingAddress.City)

	// totals yang tampil berasal dari refresh terakhir
	c, err := f.carts.Current(ctx, sid)
	require.NoError(t, err)
	v := cart.NewView(c)
	assert.Equal(t, "5.00", v.Totals.Shipping)
	assert.Equal(t, "15.00", v.Totals.Total)
}

func TestSetAddress_NoOptionsClearsSelection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.withItems(t)
	_, err := f.o.SetAddress(ctx, sid, AddressSelection{Address: &validAddress})
	require.NoError(t, err)

	f.be.Options = nil
	st, err := f.o.SetAddress(ctx, sid, AddressSelection{Address: &validAddress})
	require.NoError(t, err)
	assert.Empty(t, st.ShippingOptions)
	assert.Empty(t, st.SelectedShippingOption)
}

func TestSetAddress_SavedAddress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cartID := f.withItems(t)
	f.cust.cust = &commerce.Customer{ID: "cus_1", Email: "asha@example.com", Addresses: []commerce.Address{
		{ID: "addr_1", FirstName: "Asha", Address1: "7 Park St", City: "Kolkata", CountryCode: "in"},
	}}

	st, err := f.o.SetAddress(ctx, sid, AddressSelection{AddressID: "addr_1"})
	require.NoError(t, err)
	assert.Equal(t, "addr_1", st.SelectedAddressID)
	assert.Equal(t, "Kolkata", f.be.Carts[cartID].ShippingAddress.City)
	assert.Empty(t, f.be.Carts[cartID].ShippingAddress.ID)

	_, err = f.o.SetAddress(ctx, sid, AddressSelection{AddressID: "addr_404"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSetAddress_BackendFailureStoredOnState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.withItems(t)
	f.be.Fail("ListCartShippingOptions", errors.New("dial tcp: connection refused"))

	_, err := f.o.SetAddress(ctx, sid, AddressSelection{Address: &validAddress})
	require.Error(t, err)
	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "Failed to load shipping options.", st.Error)
}

func TestSetContactAndPaymentValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.o.SetContact(ctx, sid, "not-an-email")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.o.SelectPayment(ctx, sid, "bitcoin")
	assert.ErrorAs(t, err, &verr)

	st, err := f.o.SelectPayment(ctx, sid, "COD")
	require.NoError(t, err)
	assert.Equal(t, PaymentCOD, st.PaymentMethod)
}

func TestView_PaymentDisabledUntilReady(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	v, err := f.o.View(ctx, sid)
	require.NoError(t, err)
	assert.True(t, v.PaymentDisabled)
	assert.False(t, v.Authenticated)
	assert.Equal(t, PaymentManual, v.PaymentMethod)

	f.ready(t, PaymentManual)
	v, err = f.o.View(ctx, sid)
	require.NoError(t, err)
	assert.False(t, v.PaymentDisabled)
	assert.True(t, v.Cart.HasItems)
	assert.Equal(t, "INR", v.Cart.Currency)
}

func TestComplete_OrderClearsCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cartID := f.ready(t, PaymentManual)
	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionOrder, Order: &commerce.Order{ID: "order_123", CartID: id}}, nil
	}

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, Result{OrderID: "order_123"}, res)

	_, ok, err := f.carts.CartID(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, f.rec.placed, 1)
	p := f.rec.placed[0]
	assert.Equal(t, "order_123", p.OrderID)
	assert.Equal(t, cartID, p.CartID)
	assert.False(t, p.Placeholder)
	assert.Equal(t, "asha@example.com", p.Email)

	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "order_123", st.OrderID)
	assert.False(t, st.Processing)
	assert.Zero(t, f.be.Count("CreatePaymentSessions"))
}

func TestComplete_OfflineFailureIssuesPlaceholder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ready(t, PaymentCOD)
	f.be.Fail("CompleteCart", errors.New("connection reset by peer"))

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.True(t, res.Placeholder)
	assert.Regexp(t, `^order_\d+_[0-9a-z]{9}$`, res.OrderID)

	_, ok, err := f.carts.CartID(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, f.rec.placed, 1)
	assert.True(t, f.rec.placed[0].Placeholder)
	assert.Equal(t, "cod", f.rec.placed[0].PaymentMethod)
}

func TestComplete_OfflineFailureWithoutFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.o.offlineFallback = false
	f.ready(t, PaymentManual)
	f.be.Fail("CompleteCart", errors.New("connection reset by peer"))

	_, err := f.o.Complete(ctx, sid)
	require.Error(t, err)
	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "Failed to complete order. Please try again.", st.Error)
	assert.Empty(t, f.rec.placed)
}

func TestComplete_OnlineFailureSurfacesBackendMessage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"razorpay": true}
	f.ready(t, PaymentRazorpay)
	f.be.Fail("CompleteCart", &commerce.APIError{Status: http.StatusBadRequest, Message: "Payment declined"})

	_, err := f.o.Complete(ctx, sid)
	require.Error(t, err)
	assert.Equal(t, "Payment declined", UserMessage(err))

	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "Payment declined", st.Error)
	assert.False(t, st.Processing)

	_, ok, err := f.carts.CartID(ctx, sid)
	require.NoError(t, err)
	assert.True(t, ok, "cart is kept after a failed online payment")
}

func TestComplete_ProviderFallback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"pp_system": true}
	f.ready(t, PaymentRazorpay)

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)

	assert.Equal(t, 1, f.be.Count("SetPaymentSession:razorpay"))
	assert.Equal(t, 1, f.be.Count("SetPaymentSession:pp_system"))
	assert.Zero(t, f.be.Count("SetPaymentSession:manual"))
}

func TestComplete_NoProviderAccepted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{}
	f.ready(t, PaymentSystem)

	_, err := f.o.Complete(ctx, sid)
	var npErr *NoProviderError
	require.ErrorAs(t, err, &npErr)
	assert.Equal(t, []PaymentMethod{PaymentSystem, PaymentRazorpay, PaymentManual, PaymentCOD}, npErr.Tried)
	assert.Zero(t, f.be.Count("CompleteCart"))
}

func TestComplete_RedirectKeepsCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"razorpay": true}
	f.ready(t, PaymentRazorpay)
	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionCart, Cart: &commerce.Cart{
			ID:             id,
			PaymentSession: &commerce.PaymentSession{ProviderID: "razorpay", Data: map[string]any{"redirect_url": "https://pay.example/r/1"}},
		}}, nil
	}

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/r/1", res.RedirectURL)
	id, ok, _ := f.carts.CartID(ctx, sid)
	assert.True(t, ok)

	require.Len(t, f.rec.placed, 1)
	assert.True(t, f.rec.placed[0].Pending)
	assert.Equal(t, id, f.rec.placed[0].OrderID)
	assert.Equal(t, orders.StatusPendingPayment, f.rec.placed[0].Status())

	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, id, st.PendingOrderID)
	assert.False(t, st.Processing)
}

func TestComplete_PendingWithoutRedirect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"razorpay": true}
	f.ready(t, PaymentRazorpay)
	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionCart, Cart: &commerce.Cart{ID: id}}, nil
	}

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: true}, res)
	require.Len(t, f.rec.placed, 1)
	assert.True(t, f.rec.placed[0].Pending)
}

func TestComplete_PendingThenOrderSettlesPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"razorpay": true}
	cartID := f.ready(t, PaymentRazorpay)
	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionCart, Cart: &commerce.Cart{ID: id}}, nil
	}
	_, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)

	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionOrder, Order: &commerce.Order{ID: "order_77", CartID: id}}, nil
	}
	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "order_77", res.OrderID)

	require.Len(t, f.rec.settled, 1)
	assert.Equal(t, settled{id: cartID, to: orders.StatusConfirmed, backendOrderID: "order_77"}, f.rec.settled[0])
	require.Len(t, f.rec.placed, 2)
	assert.Equal(t, orders.StatusConfirmed, f.rec.placed[1].Status())

	st, err := f.o.State(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, st.PendingOrderID)
	assert.Equal(t, "order_77", st.OrderID)
}

func TestComplete_PendingThenPlaceholderAbandonsPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.be.Providers = map[string]bool{"razorpay": true, "cod": true}
	cartID := f.ready(t, PaymentRazorpay)
	f.be.Complete = func(id string) (commerce.Completion, error) {
		return commerce.Completion{Type: commerce.CompletionCart, Cart: &commerce.Cart{ID: id}}, nil
	}
	_, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)

	_, err = f.o.SelectPayment(ctx, sid, string(PaymentCOD))
	require.NoError(t, err)
	f.be.Complete = func(string) (commerce.Completion, error) {
		return commerce.Completion{}, errors.New("connection reset by peer")
	}
	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.True(t, res.Placeholder)

	require.Len(t, f.rec.settled, 1)
	assert.Equal(t, settled{id: cartID, to: orders.StatusAbandoned}, f.rec.settled[0])
}

func TestComplete_CancelledDuringCompletionStillSettlesPlaceholder(t *testing.T) {
	f := setup(t)
	f.ready(t, PaymentCOD)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.be.Complete = func(string) (commerce.Completion, error) {
		cancel()
		return commerce.Completion{}, context.Canceled
	}

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	require.True(t, res.Placeholder)

	bg := context.Background()
	_, ok, err := f.carts.CartID(bg, sid)
	require.NoError(t, err)
	assert.False(t, ok, "cart reference is cleared")

	require.Len(t, f.rec.placed, 1)
	assert.Equal(t, res.OrderID, f.rec.placed[0].OrderID)
	assert.NoError(t, f.rec.ctxErrs[0], "recorder sees a live context")

	st, err := f.o.State(bg, sid)
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, st.OrderID)
	assert.False(t, st.Processing)
}

func TestComplete_CancelledDuringCompletionClearsProcessing(t *testing.T) {
	f := setup(t)
	f.be.Providers = map[string]bool{"razorpay": true}
	f.ready(t, PaymentRazorpay)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.be.Complete = func(string) (commerce.Completion, error) {
		cancel()
		return commerce.Completion{}, context.Canceled
	}

	_, err := f.o.Complete(ctx, sid)
	require.ErrorIs(t, err, context.Canceled)

	bg := context.Background()
	st, err := f.o.State(bg, sid)
	require.NoError(t, err)
	assert.False(t, st.Processing)
	assert.NotEmpty(t, st.Error)
	assert.Empty(t, f.rec.placed)

	_, ok, err := f.carts.CartID(bg, sid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestComplete_CancelledAfterRedirectStillRecordsPending(t *testing.T) {
	f := setup(t)
	f.be.Providers = map[string]bool{"razorpay": true}
	cartID := f.ready(t, PaymentRazorpay)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.be.Complete = func(id string) (commerce.Completion, error) {
		cancel()
		return commerce.Completion{Type: commerce.CompletionCart, Cart: &commerce.Cart{ID: id}}, nil
	}

	res, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	assert.True(t, res.Pending)
	require.Len(t, f.rec.placed, 1)
	assert.NoError(t, f.rec.ctxErrs[0])

	st, err := f.o.State(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, cartID, st.PendingOrderID)
}

func TestComplete_Preconditions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.o.Complete(ctx, sid)
	assert.ErrorIs(t, err, ErrEmptyCart)

	f.withItems(t)
	_, err = f.o.SetContact(ctx, sid, "asha@example.com")
	require.NoError(t, err)
	_, err = f.o.Complete(ctx, sid)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shipping_option", verr.Field)
	assert.Zero(t, f.be.Count("CompleteCart"))
}

func TestComplete_SavesNewAddressForCustomer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.cust.cust = &commerce.Customer{ID: "cus_1", Email: "asha@example.com"}
	f.ready(t, PaymentManual)

	_, err := f.o.Complete(ctx, sid)
	require.NoError(t, err)
	require.Len(t, f.cust.added, 1)
	assert.Equal(t, "12 MG Road", f.cust.added[0].Address1)
}

func TestSetAddressDraft_Debounced(t *testing.T) {
	f := setup(t)
	f.withItems(t)

	partial := commerce.Address{FirstName: "Asha"}
	f.o.SetAddressDraft(sid, AddressSelection{Address: &partial})
	f.o.SetAddressDraft(sid, AddressSelection{Address: &partial})
	f.o.SetAddressDraft(sid, AddressSelection{Address: &validAddress})

	assert.Eventually(t, func() bool {
		return f.be.Count("AddShippingMethod") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.be.Count("UpdateCart"))
	assert.Equal(t, 1, f.be.Count("ListCartShippingOptions"))
}
