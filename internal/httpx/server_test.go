package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/commerce/commercetest"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]orders.Confirmation
}

func (m *memStore) Insert(_ context.Context, c orders.Confirmation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; ok {
		return true, nil
	}
	m.rows[c.ID] = c
	return false, nil
}

func (m *memStore) Get(_ context.Context, id string) (orders.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return orders.Confirmation{}, orders.ErrNotFound
	}
	return c, nil
}

func (m *memStore) Transition(context.Context, string, orders.Status, string) error {
	return errors.New("not used")
}

type capture struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *capture) Publish(_, value []byte, _ ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, value)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	be     *commercetest.Backend
	pub    *capture
	mr     *miniredis.Miniredis
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	be := commercetest.New()
	be.Options = []commerce.ShippingOption{{ID: "a", Name: "Standard", Amount: ptr(int64(500))}}
	be.Products = []commerce.Product{{
		ID: "prod_oil", Handle: "coconut-oil", Title: "Coconut Oil",
		Variants: []commerce.Variant{{ID: "variant_1", CalculatedPrice: &commerce.CalculatedPrice{CalculatedAmount: ptr(4.5)}}},
	}}

	carts := cart.NewManager(be,
		redisx.NewStore[string](rdb, redisx.KeySessionCart, redisx.TTLSession),
		redisx.NewStore[commerce.Cart](rdb, redisx.KeyCartState, redisx.TTLCartState),
		"reg_test", nil)
	customers := customer.NewService(be, carts,
		redisx.NewStore[string](rdb, redisx.KeyCustomerToken, redisx.TTLToken),
		redisx.NewStore[customer.Cached](rdb, redisx.KeyCustomer, redisx.TTLCustomer), nil)
	pub := &capture{}
	ordersSvc := &orders.Service{
		Repo:        &memStore{rows: map[string]orders.Confirmation{}},
		Redis:       rdb,
		Producer:    pub,
		ServiceName: "storefront-test",
	}
	co := checkout.New(checkout.Deps{
		Backend:         be,
		Carts:           carts,
		Customers:       customers,
		Recorder:        ordersSvc,
		States:          redisx.NewStore[checkout.State](rdb, redisx.KeyCheckout, redisx.TTLCheckout),
		CountryCode:     "in",
		OfflineFallback: true,
		Debounce:        10 * time.Millisecond,
	})
	t.Cleanup(co.Close)

	r := NewRouter(nil, RouterOptions{SessionTTL: time.Hour})
	(&CartHandler{Carts: carts}).Register(r)
	(&CheckoutHandler{Checkout: co}).Register(r)
	(&AccountHandler{Customers: customers}).Register(r)
	(&CatalogHandler{Catalog: catalog.NewService(be, rdb, catalog.Options{RegionID: "reg_test"}, nil)}).Register(r)
	(&OrdersHandler{Orders: ordersSvc}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, be: be, pub: pub, mr: mr}
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp, err := e.client.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCart_AddUpdateRemove(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["has_items"])

	code, body = e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_1", "quantity": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_items"])
	assert.Equal(t, float64(2), body["item_count"])
	assert.Equal(t, "10.00", body["totals"].(map[string]any)["total"])

	items := body["cart"].(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	lineID := items[0].(map[string]any)["id"].(string)

	// quantity 0 di-clamp jadi 1
	code, body = e.do(t, http.MethodPatch, "/cart/items/"+lineID, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["item_count"])

	code, body = e.do(t, http.MethodDelete, "/cart/items/"+lineID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["has_items"])

	code, _ = e.do(t, http.MethodDelete, "/cart", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestCart_SurvivesSnapshotExpiry(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_1", "quantity": 2})
	require.Equal(t, http.StatusOK, code)

	e.mr.FastForward(redisx.TTLCartState + time.Hour)
	code, body := e.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_items"])
	assert.Equal(t, float64(2), body["item_count"])
}

func TestCart_Validation(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/cart/items", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, cart.ErrInvalidVariant.Error(), body["error"])

	code, _ = e.do(t, http.MethodPost, "/cart/items", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_missing"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "Variant with id variant_missing does not exist", body["error"])
}

func TestCheckout_PlaceOrderAndLookup(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_1", "quantity": 2})
	require.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodPut, "/checkout/contact", map[string]any{"email": "asha@example.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "asha@example.com", body["email"])

	code, body = e.do(t, http.MethodPut, "/checkout/address", map[string]any{
		"address": map[string]any{"first_name": "Asha", "address_1": "12 MG Road", "city": "Pune"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a", body["selected_shipping_option"])

	code, body = e.do(t, http.MethodGet, "/checkout", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["payment_disabled"])

	code, body = e.do(t, http.MethodPost, "/checkout/complete", nil)
	require.Equal(t, http.StatusOK, code)
	orderID, _ := body["order_id"].(string)
	require.NotEmpty(t, orderID)
	assert.Equal(t, 1, e.pub.count())

	code, body = e.do(t, http.MethodGet, "/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(orders.StatusConfirmed), body["status"])

	code, body = e.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["has_items"])
}

func TestCheckout_IncompleteAddressIs422(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_1"})

	code, body := e.do(t, http.MethodPut, "/checkout/address", map[string]any{
		"address": map[string]any{"first_name": "Asha"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.NotEmpty(t, body["error"])
	assert.Zero(t, e.be.Count("UpdateCart"))
}

func TestCheckout_DraftIsAccepted(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/cart/items", map[string]any{"variant_id": "variant_1"})

	code, _ := e.do(t, http.MethodPut, "/checkout/address/draft", map[string]any{
		"address": map[string]any{"first_name": "Asha", "address_1": "12 MG Road", "city": "Pune"},
	})
	assert.Equal(t, http.StatusAccepted, code)
	assert.Eventually(t, func() bool { return e.be.Count("AddShippingMethod") == 1 }, time.Second, 10*time.Millisecond)
}

func TestCheckout_CompleteWithoutItems(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/checkout/complete", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPut, "/checkout/payment", map[string]any{"method": "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAccount_RegisterLoginLogout(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodGet, "/account", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := e.do(t, http.MethodPost, "/account/register", map[string]any{
		"first_name": "Asha", "last_name": "K", "email": "asha@example.com", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "asha@example.com", body["email"])

	code, body = e.do(t, http.MethodPost, "/account/addresses", map[string]any{
		"first_name": "Asha", "address_1": "12 MG Road", "city": "Pune", "country_code": "in",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, body["addresses"], 1)

	code, body = e.do(t, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "asha@example.com", body["email"])

	code, _ = e.do(t, http.MethodPost, "/account/logout", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = e.do(t, http.MethodGet, "/account/addresses", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/account/login", map[string]any{"email": "asha@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/account/login", map[string]any{"email": "asha@example.com", "password": "pw"})
	assert.Equal(t, http.StatusOK, code)
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/products?limit=abc", nil)
	require.Equal(t, http.StatusOK, code)
	ps := body["products"].([]any)
	require.Len(t, ps, 1)
	assert.Equal(t, "4.50", ps[0].(map[string]any)["price"])

	code, body = e.do(t, http.MethodGet, "/products/coconut-oil", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "prod_oil", body["id"])

	code, _ = e.do(t, http.MethodGet, "/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodGet, "/products?sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/categories", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestOrders_NotFound(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodGet, "/orders/order_missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", body["error"])
}
