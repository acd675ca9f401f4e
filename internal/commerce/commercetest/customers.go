package commercetest

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/commerce"
)

// AddCustomer registers a customer reachable with token and password.
func (b *Backend) AddCustomer(token, password string, c commerce.Customer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := c
	b.Customers[token] = &cp
	b.Credentials[c.Email] = password
}

func unauthorized() error {
	return &commerce.APIError{Status: http.StatusUnauthorized, Message: "Unauthorized"}
}

// customer resolves the bearer token carried by ctx.
func (b *Backend) customer(ctx context.Context) (*commerce.Customer, error) {
	tok := commerce.TokenFrom(ctx)
	c, ok := b.Customers[tok]
	if tok == "" || !ok {
		return nil, unauthorized()
	}
	return c, nil
}

func (b *Backend) Authenticate(ctx context.Context, email, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("Authenticate"); err != nil {
		return "", err
	}
	if pw, ok := b.Credentials[email]; !ok || pw != password {
		return "", unauthorized()
	}
	for tok, c := range b.Customers {
		if strings.EqualFold(c.Email, email) {
			return tok, nil
		}
	}
	return "", unauthorized()
}

func (b *Backend) Session(ctx context.Context) (*commerce.Customer, error) {
	return b.RetrieveCustomer(ctx)
}

func (b *Backend) DeleteSession(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enter("DeleteSession")
}

func (b *Backend) CreateCustomer(ctx context.Context, in commerce.NewCustomer) (*commerce.Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateCustomer"); err != nil {
		return nil, err
	}
	if _, exists := b.Credentials[in.Email]; exists {
		return nil, invalid("A customer with the given email already has an account. Log in instead")
	}
	c := &commerce.Customer{ID: b.nextID("cus"), Email: in.Email, FirstName: in.FirstName, LastName: in.LastName, Phone: in.Phone}
	b.Customers[b.nextID("tok")] = c
	b.Credentials[in.Email] = in.Password
	cp := *c
	return &cp, nil
}

func (b *Backend) RetrieveCustomer(ctx context.Context) (*commerce.Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RetrieveCustomer"); err != nil {
		return nil, err
	}
	c, err := b.customer(ctx)
	if err != nil {
		return nil, err
	}
	cp := *c
	cp.Addresses = slices.Clone(c.Addresses)
	return &cp, nil
}

func (b *Backend) ListAddresses(ctx context.Context) ([]commerce.Address, error) {
	c, err := b.RetrieveCustomer(ctx)
	if err != nil {
		return nil, err
	}
	return c.Addresses, nil
}

func (b *Backend) CreateAddress(ctx context.Context, addr commerce.Address) (*commerce.Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateAddress"); err != nil {
		return nil, err
	}
	c, err := b.customer(ctx)
	if err != nil {
		return nil, err
	}
	addr.ID = b.nextID("addr")
	c.Addresses = append(c.Addresses, addr)
	cp := *c
	cp.Addresses = slices.Clone(c.Addresses)
	return &cp, nil
}
