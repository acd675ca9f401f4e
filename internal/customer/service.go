package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidInput     = errors.New("email and password are required")
)

// DefaultStaleAfter is how long a cached customer record is served before it
// is fetched again.
const DefaultStaleAfter = 15 * time.Minute

type Backend interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
	RetrieveCustomer(ctx context.Context) (*commerce.Customer, error)
	DeleteSession(ctx context.Context) error
	CreateCustomer(ctx context.Context, in commerce.NewCustomer) (*commerce.Customer, error)
	CreateAddress(ctx context.Context, addr commerce.Address) (*commerce.Customer, error)
	UpdateCart(ctx context.Context, cartID string, upd commerce.CartUpdate) (*commerce.Cart, error)
}

// CartRefs resolves the cart bound to a session.
type CartRefs interface {
	CartID(ctx context.Context, sid string) (string, bool, error)
}

// Cached is the customer record kept per session.
type Cached struct {
	Customer  commerce.Customer `json:"customer"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Service keeps the authenticated customer per visitor session. The bearer
// token and the cached record are stored separately; the record is the only
// source read by callers and is refreshed from the backend once stale.
type Service struct {
	backend    Backend
	carts      CartRefs
	tokens     redisx.KV[string]
	cache      redisx.KV[Cached]
	staleAfter time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewService(b Backend, carts CartRefs, tokens redisx.KV[string], cache redisx.KV[Cached], log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		backend:    b,
		carts:      carts,
		tokens:     tokens,
		cache:      cache,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		log:        log.Named("customer"),
	}
}

// Login authenticates with the backend and binds the customer to the session.
// The session's cart, if any, is attached to the customer email.
func (s *Service) Login(ctx context.Context, sid, email, password string) (*commerce.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	token, err := s.backend.Authenticate(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if err := s.tokens.Save(ctx, sid, token); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	c, err := s.fetch(ctx, sid, token)
	if err != nil {
		return nil, err
	}
	s.attachCart(ctx, sid, c.Email)
	s.log.Info("customer logged in", zap.String("session", sid), zap.String("customer_id", c.ID))
	return c, nil
}

func (s *Service) attachCart(ctx context.Context, sid, email string) {
	if s.carts == nil || email == "" {
		return
	}
	id, ok, err := s.carts.CartID(ctx, sid)
	if err != nil || !ok {
		return
	}
	if _, err := s.backend.UpdateCart(ctx, id, commerce.CartUpdate{Email: email}); err != nil {
		// tidak fatal, cart tetap bisa dipakai tanpa email
		s.log.Warn("attach cart to customer failed", zap.String("cart_id", id), zap.Error(err))
	}
}

// Token returns the session's bearer token.
func (s *Service) Token(ctx context.Context, sid string) (string, error) {
	tok, found, err := s.tokens.Load(ctx, sid)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if !found || tok == "" {
		return "", ErrNotAuthenticated
	}
	return tok, nil
}

// Current returns the session's customer, refetching it when the cached
// record is older than the staleness window. A backend 401 logs the session
// out.
func (s *Service) Current(ctx context.Context, sid string) (*commerce.Customer, error) {
	tok, err := s.Token(ctx, sid)
	if err != nil {
		return nil, err
	}
	cached, found, err := s.cache.Load(ctx, sid)
	if err != nil {
		s.log.Warn("customer cache read failed", zap.String("session", sid), zap.Error(err))
	}
	if found && s.now().Sub(cached.FetchedAt) < s.staleAfter {
		return &cached.Customer, nil
	}
	return s.fetch(ctx, sid, tok)
}

func (s *Service) fetch(ctx context.Context, sid, token string) (*commerce.Customer, error) {
	c, err := s.backend.RetrieveCustomer(commerce.WithToken(ctx, token))
	if errors.Is(err, commerce.ErrUnauthorized) {
		s.invalidate(ctx, sid)
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve customer: %w", err)
	}
	s.store(ctx, sid, c)
	return c, nil
}

func (s *Service) store(ctx context.Context, sid string, c *commerce.Customer) {
	if err := s.cache.Save(ctx, sid, Cached{Customer: *c, FetchedAt: s.now()}); err != nil {
		s.log.Warn("customer cache write failed", zap.String("session", sid), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, sid string) {
	if err := s.tokens.Delete(ctx, sid); err != nil {
		s.log.Warn("token delete failed", zap.String("session", sid), zap.Error(err))
	}
	if err := s.cache.Delete(ctx, sid); err != nil {
		s.log.Warn("customer cache delete failed", zap.String("session", sid), zap.Error(err))
	}
}

// Logout ends the backend session (best effort) and forgets the customer.
func (s *Service) Logout(ctx context.Context, sid string) error {
	if tok, err := s.Token(ctx, sid); err == nil {
		if err := s.backend.DeleteSession(commerce.WithToken(ctx, tok)); err != nil {
			s.log.Warn("backend logout failed", zap.String("session", sid), zap.Error(err))
		}
	}
	s.invalidate(ctx, sid)
	return nil
}

// Register creates a customer account and logs the session in with it.
func (s *Service) Register(ctx context.Context, sid string, in commerce.NewCustomer) (*commerce.Customer, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.backend.CreateCustomer(ctx, in); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return s.Login(ctx, sid, in.Email, in.Password)
}

func (s *Service) Addresses(ctx context.Context, sid string) ([]commerce.Address, error) {
	c, err := s.Current(ctx, sid)
	if err != nil {
		return nil, err
	}
	return c.Addresses, nil
}

// AddAddress saves addr to the customer's account and returns the updated list.
func (s *Service) AddAddress(ctx context.Context, sid string, addr commerce.Address) ([]commerce.Address, error) {
	tok, err := s.Token(ctx, sid)
	if err != nil {
		return nil, err
	}
	c, err := s.backend.CreateAddress(commerce.WithToken(ctx, tok), addr)
	if errors.Is(err, commerce.ErrUnauthorized) {
		s.invalidate(ctx, sid)
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	s.store(ctx, sid, c)
	return c.Addresses, nil
}
