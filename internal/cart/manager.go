package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidVariant  = errors.New("variant id is required")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNoCartID        = errors.New("backend returned a cart without id")
)

// Backend is the slice of the commerce client the cart manager drives.
type Backend interface {
	CreateCart(ctx context.Context, regionID string) (*commerce.Cart, error)
	RetrieveCart(ctx context.Context, cartID string) (*commerce.Cart, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*commerce.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*commerce.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, lineID string) (*commerce.Cart, error)
}

// Manager keeps one server-side cart per visitor session. The session only
// stores the cart id and the last state fetched from the backend; totals are
// never computed locally.
type Manager struct {
	backend  Backend
	refs     redisx.KV[string]
	states   redisx.KV[commerce.Cart]
	regionID string
	log      *zap.Logger
	ensure   singleflight.Group
}

func NewManager(b Backend, refs redisx.KV[string], states redisx.KV[commerce.Cart], regionID string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		backend:  b,
		refs:     refs,
		states:   states,
		regionID: regionID,
		log:      log.Named("cart"),
	}
}

// ClampQuantity enforces the minimum line item quantity of 1.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// CartID returns the cart id bound to the session, if any.
func (m *Manager) CartID(ctx context.Context, sid string) (string, bool, error) {
	id, found, err := m.refs.Load(ctx, sid)
	if err != nil {
		return "", false, fmt.Errorf("load cart ref: %w", err)
	}
	return id, found && id != "", nil
}

// Ensure returns the session's cart id, creating a cart in the configured
// region when none is bound yet. Concurrent calls for one session share a
// single backend create.
func (m *Manager) Ensure(ctx context.Context, sid string) (string, error) {
	v, err, _ := m.ensure.Do(sid, func() (any, error) {
		id, ok, err := m.CartID(ctx, sid)
		if err != nil {
			return "", err
		}
		if ok {
			c, err := m.load(ctx, sid, id)
			switch {
			case err == nil && c.CompletedAt == nil:
				return id, nil
			case err == nil, errors.Is(err, commerce.ErrNotFound):
				// cart lama sudah completed / hilang di backend -> buat baru
				m.log.Info("discarding stale cart reference", zap.String("session", sid), zap.String("cart_id", id))
			default:
				return "", err
			}
		}
		return m.create(ctx, sid)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) create(ctx context.Context, sid string) (string, error) {
	c, err := m.backend.CreateCart(ctx, m.regionID)
	if err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}
	if c.ID == "" {
		return "", ErrNoCartID
	}
	if err := m.refs.Save(ctx, sid, c.ID); err != nil {
		return "", fmt.Errorf("persist cart ref: %w", err)
	}
	m.log.Info("cart created", zap.String("session", sid), zap.String("cart_id", c.ID))
	if _, err := m.load(ctx, sid, c.ID); err != nil {
		return "", err
	}
	return c.ID, nil
}

// load re-fetches the cart and records it as the session's current state.
func (m *Manager) load(ctx context.Context, sid, cartID string) (*commerce.Cart, error) {
	c, err := m.backend.RetrieveCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("retrieve cart: %w", err)
	}
	if err := m.states.Save(ctx, sid, *c); err != nil {
		m.log.Warn("cart state cache write failed", zap.String("session", sid), zap.Error(err))
	}
	return c, nil
}

func (m *Manager) AddItem(ctx context.Context, sid, variantID string, quantity int) (*commerce.Cart, error) {
	if variantID == "" {
		return nil, ErrInvalidVariant
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	id, err := m.Ensure(ctx, sid)
	if err != nil {
		return nil, err
	}
	if _, err := m.backend.AddLineItem(ctx, id, variantID, quantity); err != nil {
		return nil, fmt.Errorf("add line item: %w", err)
	}
	return m.load(ctx, sid, id)
}

// UpdateItem sets a line item quantity, clamped to at least 1. Without a
// bound cart it does nothing and returns a nil cart.
func (m *Manager) UpdateItem(ctx context.Context, sid, lineID string, quantity int) (*commerce.Cart, error) {
	id, ok, err := m.CartID(ctx, sid)
	if err != nil || !ok {
		return nil, err
	}
	if _, err := m.backend.UpdateLineItem(ctx, id, lineID, ClampQuantity(quantity)); err != nil {
		return nil, fmt.Errorf("update line item: %w", err)
	}
	return m.load(ctx, sid, id)
}

func (m *Manager) RemoveItem(ctx context.Context, sid, lineID string) (*commerce.Cart, error) {
	id, ok, err := m.CartID(ctx, sid)
	if err != nil || !ok {
		return nil, err
	}
	if _, err := m.backend.DeleteLineItem(ctx, id, lineID); err != nil {
		return nil, fmt.Errorf("remove line item: %w", err)
	}
	return m.load(ctx, sid, id)
}

// Refresh re-fetches the session's cart. It is a no-op without a bound cart.
// A cart the backend no longer knows, or that is already completed, is
// dropped from the session.
func (m *Manager) Refresh(ctx context.Context, sid string) (*commerce.Cart, error) {
	id, ok, err := m.CartID(ctx, sid)
	if err != nil || !ok {
		return nil, err
	}
	c, err := m.load(ctx, sid, id)
	if errors.Is(err, commerce.ErrNotFound) || (err == nil && c.CompletedAt != nil) {
		return nil, m.Clear(ctx, sid)
	}
	return c, err
}

// Current returns the last refreshed cart without calling the backend. Once
// the snapshot has expired but the session still holds a cart, the cart is
// refreshed from the backend instead.
func (m *Manager) Current(ctx context.Context, sid string) (*commerce.Cart, error) {
	c, found, err := m.states.Load(ctx, sid)
	if err != nil {
		return nil, err
	}
	if found {
		return &c, nil
	}
	if _, ok, err := m.CartID(ctx, sid); err != nil || !ok {
		return nil, err
	}
	return m.Refresh(ctx, sid)
}

// Clear forgets the session's cart. The backend cart itself is left alone.
func (m *Manager) Clear(ctx context.Context, sid string) error {
	if err := m.refs.Delete(ctx, sid); err != nil {
		return err
	}
	return m.states.Delete(ctx, sid)
}
