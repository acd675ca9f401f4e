package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

type cartEnvelope struct {
	Cart Cart `json:"cart"`
}

func cartPath(cartID string, rest ...string) string {
	p := "/store/carts/" + url.PathEscape(cartID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func (c *Client) CreateCart(ctx context.Context, regionID string) (*Cart, error) {
	var env cartEnvelope
	body := map[string]string{}
	if regionID != "" {
		body["region_id"] = regionID
	}
	if err := c.post(ctx, "/store/carts", body, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*Cart, error) {
	var env cartEnvelope
	if err := c.get(ctx, cartPath(cartID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) UpdateCart(ctx context.Context, cartID string, upd CartUpdate) (*Cart, error) {
	var env cartEnvelope
	if err := c.post(ctx, cartPath(cartID), upd, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*Cart, error) {
	var env cartEnvelope
	body := map[string]any{"variant_id": variantID, "quantity": quantity}
	if err := c.post(ctx, cartPath(cartID, "line-items"), body, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*Cart, error) {
	var env cartEnvelope
	body := map[string]any{"quantity": quantity}
	if err := c.post(ctx, cartPath(cartID, "line-items", lineID), body, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) DeleteLineItem(ctx context.Context, cartID, lineID string) (*Cart, error) {
	var env cartEnvelope
	if err := c.delete(ctx, cartPath(cartID, "line-items", lineID), &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) ListCartShippingOptions(ctx context.Context, cartID string) ([]ShippingOption, error) {
	var env struct {
		ShippingOptions []ShippingOption `json:"shipping_options"`
	}
	if err := c.get(ctx, "/store/shipping-options/"+url.PathEscape(cartID), nil, &env); err != nil {
		return nil, err
	}
	return env.ShippingOptions, nil
}

func (c *Client) AddShippingMethod(ctx context.Context, cartID, optionID string) (*Cart, error) {
	var env cartEnvelope
	body := map[string]string{"option_id": optionID}
	if err := c.post(ctx, cartPath(cartID, "shipping-methods"), body, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) CreatePaymentSessions(ctx context.Context, cartID string) (*Cart, error) {
	var env cartEnvelope
	if err := c.post(ctx, cartPath(cartID, "payment-sessions"), nil, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

func (c *Client) SetPaymentSession(ctx context.Context, cartID, providerID string) (*Cart, error) {
	var env cartEnvelope
	body := map[string]string{"provider_id": providerID}
	if err := c.post(ctx, cartPath(cartID, "payment-session"), body, &env); err != nil {
		return nil, err
	}
	return &env.Cart, nil
}

// CompleteCart finalizes the cart. A successful call returns either an order
// or, for redirect based payment providers, the cart with its payment session.
func (c *Client) CompleteCart(ctx context.Context, cartID string) (Completion, error) {
	var w completionWire
	if err := c.post(ctx, cartPath(cartID, "complete"), nil, &w); err != nil {
		return Completion{}, err
	}
	out := Completion{Type: w.Type}
	switch w.Type {
	case CompletionOrder:
		var o Order
		if err := json.Unmarshal(w.Data, &o); err != nil {
			return Completion{}, fmt.Errorf("decode completed order: %w", err)
		}
		out.Order = &o
	default:
		if len(w.Data) > 0 {
			var ct Cart
			if err := json.Unmarshal(w.Data, &ct); err != nil {
				return Completion{}, fmt.Errorf("decode completion cart: %w", err)
			}
			out.Cart = &ct
		}
	}
	return out, nil
}
