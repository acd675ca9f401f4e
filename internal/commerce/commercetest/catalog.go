package commercetest

import (
	"context"

	"github.com/ariefcatur/go-storefront/internal/commerce"
)

func (b *Backend) ListProducts(ctx context.Context, f commerce.ProductFilter) (*commerce.ProductPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListProducts"); err != nil {
		return nil, err
	}
	var out []commerce.Product
	for _, p := range b.Products {
		if f.Handle != "" && p.Handle != f.Handle {
			continue
		}
		if f.CollectionID != "" && p.CollectionID != f.CollectionID {
			continue
		}
		if f.CategoryID != "" && !inCategory(p, f.CategoryID) {
			continue
		}
		out = append(out, p)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return &commerce.ProductPage{Products: out, Count: len(out), Limit: f.Limit, Offset: f.Offset}, nil
}

func inCategory(p commerce.Product, id string) bool {
	for _, c := range p.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (b *Backend) RetrieveProduct(ctx context.Context, id, regionID, countryCode string) (*commerce.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RetrieveProduct"); err != nil {
		return nil, err
	}
	for _, p := range b.Products {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, notFound("Product with id: " + id)
}

func (b *Backend) ListCategories(ctx context.Context) ([]commerce.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListCategories"); err != nil {
		return nil, err
	}
	return b.Categories, nil
}

func (b *Backend) ListCollections(ctx context.Context) ([]commerce.Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListCollections"); err != nil {
		return nil, err
	}
	return b.Collections, nil
}
