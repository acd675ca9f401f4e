package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Backend interface {
	CompleteCart(ctx context.Context, cartID string) (commerce.Completion, error)
}

type Orders interface {
	Settle(ctx context.Context, id string, to orders.Status, backendOrderID string) error
}

// Service follows up on placeholder orders: the cart behind each one is
// completed again and the confirmation settles as RECONCILED or ABANDONED.
type Service struct {
	Backend     Backend
	Orders      Orders
	Redis       redis.Cmdable
	Producer    orders.Publisher // publish order.reconciled
	ServiceName string
	Log         *zap.Logger

	Attempts int
	Backoff  time.Duration
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// HandleOrderPlaced: dipasang sebagai handler consumer.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := kafkax.Decode(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah bisa diproses, jangan block partition
		s.logger().Error("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	} // ignore

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
	if seen, err := redisx.Exists(ctx, s.Redis, dkey); err == nil && seen {
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		s.logger().Error("dropping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !p.Placeholder {
		return nil
	}

	res, err := s.reconcile(ctx, p)
	if err != nil {
		return err
	}
	if err := s.Orders.Settle(ctx, p.OrderID, res.FinalStatus, res.BackendOrderID); err != nil && !errors.Is(err, orders.ErrInvalidTransition) {
		return fmt.Errorf("settle %s: %w", p.OrderID, err)
	}
	if err := s.publish(res, env.TraceID); err != nil {
		return err
	}
	if _, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup); err != nil {
		s.logger().Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	s.logger().Info("placeholder settled",
		zap.String("order_id", p.OrderID), zap.String("status", string(res.FinalStatus)), zap.String("backend_order_id", res.BackendOrderID))
	return nil
}

// reconcile completes the cart again. Backend rejections are final; transient
// failures are retried up to Attempts and then returned so the event is
// redelivered.
func (s *Service) reconcile(ctx context.Context, p orders.OrderPlacedPayload) (orders.OrderReconciledPayload, error) {
	out := orders.OrderReconciledPayload{OrderID: p.OrderID, CartID: p.CartID}
	attempts := max(s.Attempts, 1)
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff << (i - 1)):
			}
		}
		var comp commerce.Completion
		comp, err = s.Backend.CompleteCart(ctx, p.CartID)
		if err == nil {
			if comp.Type == commerce.CompletionOrder && comp.Order != nil {
				out.FinalStatus = orders.StatusReconciled
				out.BackendOrderID = comp.Order.ID
				return out, nil
			}
			out.FinalStatus = orders.StatusAbandoned
			out.Reason = "cart did not produce an order"
			return out, nil
		}
		var apiErr *commerce.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			out.FinalStatus = orders.StatusAbandoned
			out.Reason = apiErr.Message
			return out, nil
		}
		s.logger().Warn("complete cart retry", zap.String("cart_id", p.CartID), zap.Int("attempt", i+1), zap.Error(err))
	}
	return out, fmt.Errorf("complete cart %s: %w", p.CartID, err)
}

func (s *Service) publish(p orders.OrderReconciledPayload, trace string) error {
	env, err := orders.NewEnvelope(orders.EventOrderReconciled, s.ServiceName, trace, p.OrderID, p)
	if err != nil {
		return err
	}
	return orders.Publish(s.Producer, env)
}
