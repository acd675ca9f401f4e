package commerce

import "context"

type customerEnvelope struct {
	Customer Customer `json:"customer"`
}

// Authenticate exchanges customer credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/store/auth/token", body, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", ErrUnauthorized
	}
	return out.AccessToken, nil
}

// Session returns the customer behind the token carried by ctx.
func (c *Client) Session(ctx context.Context) (*Customer, error) {
	var env customerEnvelope
	if err := c.get(ctx, "/store/auth", nil, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

func (c *Client) DeleteSession(ctx context.Context) error {
	return c.delete(ctx, "/store/auth", nil)
}

func (c *Client) CreateCustomer(ctx context.Context, in NewCustomer) (*Customer, error) {
	var env customerEnvelope
	if err := c.post(ctx, "/store/customers", in, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

// RetrieveCustomer returns the authenticated customer including saved addresses.
func (c *Client) RetrieveCustomer(ctx context.Context) (*Customer, error) {
	var env customerEnvelope
	if err := c.get(ctx, "/store/customers/me", nil, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

func (c *Client) ListAddresses(ctx context.Context) ([]Address, error) {
	cust, err := c.RetrieveCustomer(ctx)
	if err != nil {
		return nil, err
	}
	return cust.Addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, addr Address) (*Customer, error) {
	var env customerEnvelope
	addr.ID = ""
	if err := c.post(ctx, "/store/customers/me/addresses", map[string]Address{"address": addr}, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}
