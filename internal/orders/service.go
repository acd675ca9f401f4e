package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher matches the async kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Store interface {
	Insert(ctx context.Context, c Confirmation) (bool, error)
	Get(ctx context.Context, id string) (Confirmation, error)
	Transition(ctx context.Context, id string, to Status, backendOrderID string) error
}

// Service records confirmations, keeps the status cache warm and announces
// placed orders.
type Service struct {
	Repo        Store
	Redis       redis.Cmdable
	Producer    Publisher
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Record stores the placement and publishes OrderPlaced. Recording the same
// order twice publishes once.
func (s *Service) Record(ctx context.Context, p Placement) error {
	c := p.Confirmation()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	existed, err := s.Repo.Insert(ctx, c)
	if err != nil {
		return err
	}
	if existed {
		// stored row keeps its own timestamps; Lookup refills the cache
		return nil
	}
	s.cache(ctx, c)

	env, err := NewEnvelope(EventOrderPlaced, s.ServiceName, middleware.GetReqID(ctx), p.OrderID, OrderPlacedPayload{
		OrderID:        p.OrderID,
		CartID:         p.CartID,
		Email:          p.Email,
		PaymentMethod:  p.PaymentMethod,
		Status:         c.Status,
		Placeholder:    p.Placeholder,
		BackendOrderID: p.BackendOrderID,
		Total:          p.Total,
		CurrencyCode:   p.CurrencyCode,
	})
	if err != nil {
		return err
	}
	if err := Publish(s.Producer, env); err != nil {
		return err
	}
	s.logger().Info("order recorded",
		zap.String("order_id", p.OrderID), zap.Bool("placeholder", p.Placeholder), zap.String("event_id", env.EventID))
	return nil
}

// Lookup serves a confirmation from the status cache, falling back to Postgres.
func (s *Service) Lookup(ctx context.Context, id string) (Confirmation, error) {
	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	var c Confirmation
	if found, err := redisx.GetJSON(ctx, s.Redis, key, &c); err == nil && found {
		return c, nil
	} else if err != nil {
		s.logger().Warn("order status cache read failed", zap.String("order_id", id), zap.Error(err))
	}

	// 2) fallback DB
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Confirmation{}, err
	}
	s.cache(ctx, c)
	return c, nil
}

// Settle moves a confirmation to a final status and drops its cached copy.
func (s *Service) Settle(ctx context.Context, id string, to Status, backendOrderID string) error {
	if err := s.Repo.Transition(ctx, id, to, backendOrderID); err != nil {
		return err
	}
	if err := s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err(); err != nil {
		s.logger().Warn("order status cache delete failed", zap.String("order_id", id), zap.Error(err))
	}
	return nil
}

func (s *Service) cache(ctx context.Context, c Confirmation) {
	if err := redisx.SetJSON(ctx, s.Redis, fmt.Sprintf(redisx.KeyOrderStatus, c.ID), c, redisx.TTLStatusCache); err != nil {
		s.logger().Warn("order status cache write failed", zap.String("order_id", c.ID), zap.Error(err))
	}
}

var ErrNoPublisher = errors.New("no event publisher configured")

// Publish sends env keyed by its correlation id with the event type/version headers.
func Publish(p Publisher, env Envelope) error {
	if p == nil {
		return ErrNoPublisher
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	p.Publish(PartitionKey(env.CorrelationID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	return nil
}
