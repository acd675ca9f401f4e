package commerce

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
)

func (f ProductFilter) values() url.Values {
	q := url.Values{}
	for _, id := range f.IDs {
		q.Add("id[]", id)
	}
	if f.CategoryID != "" {
		q.Add("category_id[]", f.CategoryID)
	}
	if f.CollectionID != "" {
		q.Add("collection_id[]", f.CollectionID)
	}
	if f.Handle != "" {
		q.Set("handle", f.Handle)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.RegionID != "" {
		q.Set("region_id", f.RegionID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

func (c *Client) ListProducts(ctx context.Context, f ProductFilter) (*ProductPage, error) {
	var page ProductPage
	if err := c.get(ctx, "/store/products", f.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) RetrieveProduct(ctx context.Context, id, regionID, countryCode string) (*Product, error) {
	q := url.Values{}
	if regionID != "" {
		q.Set("region_id", regionID)
	}
	if countryCode != "" {
		q.Set("country_code", countryCode)
	}
	var env struct {
		Product Product `json:"product"`
	}
	if err := c.get(ctx, "/store/products/"+url.PathEscape(id), q, &env); err != nil {
		return nil, err
	}
	return &env.Product, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var env struct {
		ProductCategories []Category `json:"product_categories"`
	}
	if err := c.get(ctx, "/store/product-categories", nil, &env); err != nil {
		return nil, err
	}
	return env.ProductCategories, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var env struct {
		Collections []Collection `json:"collections"`
	}
	if err := c.get(ctx, "/store/collections", nil, &env); err != nil {
		return nil, err
	}
	return env.Collections, nil
}

var localMedia = regexp.MustCompile(`(?i)^http://localhost:9000`)

// FixMediaURL rewrites media URLs the backend generated against its local
// address so browsers can load them from the public backend URL.
func FixMediaURL(u, publicBase string) string {
	if u == "" || publicBase == "" {
		return u
	}
	return localMedia.ReplaceAllLiteralString(u, publicBase)
}
