package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]Confirmation
	gets int
}

func (m *memStore) Insert(_ context.Context, c Confirmation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.ID]; ok {
		return true, nil
	}
	m.rows[c.ID] = c
	return false, nil
}

func (m *memStore) Get(_ context.Context, id string) (Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	c, ok := m.rows[id]
	if !ok {
		return Confirmation{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) Transition(_ context.Context, id string, to Status, backendOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(c.Status, to) {
		return ErrInvalidTransition
	}
	c.Status = to
	if backendOrderID != "" {
		c.BackendOrderID = backendOrderID
	}
	m.rows[id] = c
	return nil
}

type capture struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (c *capture) Publish(key, value []byte, headers ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func newService(t *testing.T) (*Service, *memStore, *capture, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := &memStore{rows: map[string]Confirmation{}}
	pub := &capture{}
	return &Service{Repo: store, Redis: rdb, Producer: pub, ServiceName: "storefront-api"}, store, pub, mr
}

func TestRecord_PublishesOnce(t *testing.T) {
	svc, store, pub, mr := newService(t)
	ctx := context.Background()
	p := Placement{OrderID: "order_1700000000000_abcdefghi", SessionID: "sid", CartID: "cart_1",
		PaymentMethod: "cod", Placeholder: true, Total: 990, CurrencyCode: "INR"}

	require.NoError(t, svc.Record(ctx, p))
	require.NoError(t, svc.Record(ctx, p))

	assert.Equal(t, StatusPlaceholder, store.rows[p.OrderID].Status)
	assert.True(t, mr.Exists("order_status:"+p.OrderID))
	require.Len(t, pub.msgs, 1)

	m := pub.msgs[0]
	assert.Equal(t, p.OrderID, string(m.Key))
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, EventOrderPlaced, string(m.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, p.OrderID, env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	var payload OrderPlacedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.True(t, payload.Placeholder)
	assert.Equal(t, StatusPlaceholder, payload.Status)
	assert.Equal(t, "cart_1", payload.CartID)
}

func TestRecord_StampsTimes(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, Placement{OrderID: "order_5", CartID: "cart_5", Total: 100}))

	stored := store.rows["order_5"]
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, stored.CreatedAt, stored.UpdatedAt)

	cached, err := svc.Lookup(ctx, "order_5")
	require.NoError(t, err)
	assert.Equal(t, 0, store.gets)
	assert.False(t, cached.CreatedAt.IsZero())
	assert.True(t, stored.CreatedAt.Equal(cached.CreatedAt))
}

func TestRecord_PendingThenConfirmed(t *testing.T) {
	svc, store, pub, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, Placement{OrderID: "cart_9", CartID: "cart_9", PaymentMethod: "razorpay", Pending: true}))
	assert.Equal(t, StatusPendingPayment, store.rows["cart_9"].Status)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &env))
	var payload OrderPlacedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, StatusPendingPayment, payload.Status)

	require.NoError(t, svc.Settle(ctx, "cart_9", StatusConfirmed, "order_99"))
	assert.Equal(t, StatusConfirmed, store.rows["cart_9"].Status)
	assert.Equal(t, "order_99", store.rows["cart_9"].BackendOrderID)
}

func TestLookup_CacheThenStore(t *testing.T) {
	svc, store, _, mr := newService(t)
	ctx := context.Background()
	store.rows["order_123"] = Confirmation{ID: "order_123", Status: StatusConfirmed, Total: 1500}

	c, err := svc.Lookup(ctx, "order_123")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, c.Status)
	assert.Equal(t, 1, store.gets)
	assert.True(t, mr.Exists("order_status:order_123"))

	_, err = svc.Lookup(ctx, "order_123")
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)

	_, err = svc.Lookup(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettle_DropsCache(t *testing.T) {
	svc, store, _, mr := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, Placement{OrderID: "order_1_x", CartID: "cart_1", Placeholder: true}))
	require.True(t, mr.Exists("order_status:order_1_x"))

	require.NoError(t, svc.Settle(ctx, "order_1_x", StatusReconciled, "order_real"))
	assert.False(t, mr.Exists("order_status:order_1_x"))
	assert.Equal(t, "order_real", store.rows["order_1_x"].BackendOrderID)

	assert.ErrorIs(t, svc.Settle(ctx, "order_1_x", StatusAbandoned, ""), ErrInvalidTransition)
}

func TestPublish_NoProducer(t *testing.T) {
	assert.ErrorIs(t, Publish(nil, Envelope{}), ErrNoPublisher)
}
