package catalog

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/money"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"

	DefaultLimit = 60
	MaxLimit     = 200
)

var ErrInvalidSort = errors.New("unknown sort order")

type Backend interface {
	ListProducts(ctx context.Context, f commerce.ProductFilter) (*commerce.ProductPage, error)
	RetrieveProduct(ctx context.Context, id, regionID, countryCode string) (*commerce.Product, error)
	ListCategories(ctx context.Context) ([]commerce.Category, error)
	ListCollections(ctx context.Context) ([]commerce.Collection, error)
}

type Options struct {
	RegionID    string
	CountryCode string
	PublicURL   string
	TTL         time.Duration
}

// Query is a product listing request.
type Query struct {
	CategoryID   string
	CollectionID string
	Handle       string
	Search       string
	Sort         string
	Limit        int
	Offset       int
}

// Service reads the catalog through a short-lived Redis cache. Cache
// failures fall through to the backend.
type Service struct {
	backend Backend
	rdb     redis.Cmdable
	opts    Options
	log     *zap.Logger
	group   singleflight.Group
}

func NewService(b Backend, rdb redis.Cmdable, opts Options, log *zap.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = redisx.TTLCatalog
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{backend: b, rdb: rdb, opts: opts, log: log.Named("catalog")}
}

// cached is a read-through lookup on catalog:{key}. Concurrent misses for one
// key share a single backend call.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	full := fmt.Sprintf(redisx.KeyCatalog, key)
	var v T
	if s.rdb != nil {
		found, err := redisx.GetJSON(ctx, s.rdb, full, &v)
		if err != nil {
			s.log.Warn("catalog cache read failed", zap.String("key", full), zap.Error(err))
		} else if found {
			return v, nil
		}
	}
	res, err, _ := s.group.Do(full, func() (any, error) {
		fresh, err := load()
		if err != nil {
			return fresh, err
		}
		if s.rdb != nil {
			if err := redisx.SetJSON(ctx, s.rdb, full, fresh, s.opts.TTL); err != nil {
				s.log.Warn("catalog cache write failed", zap.String("key", full), zap.Error(err))
			}
		}
		return fresh, nil
	})
	if err != nil {
		return v, err
	}
	return res.(T), nil
}

func (q Query) normalize() (Query, error) {
	switch q.Sort {
	case "", SortPriceLow, SortPriceHigh:
	default:
		return q, fmt.Errorf("%w: %q", ErrInvalidSort, q.Sort)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	q.Limit = min(q.Limit, MaxLimit)
	q.Offset = max(q.Offset, 0)
	q.Search = strings.TrimSpace(q.Search)
	return q, nil
}

func (q Query) cacheKey(regionID string) string {
	raw := strings.Join([]string{q.CategoryID, q.CollectionID, q.Handle, q.Search, q.Sort,
		strconv.Itoa(q.Limit), strconv.Itoa(q.Offset), regionID}, "|")
	sum := sha256.Sum256([]byte(raw))
	return "products:" + hex.EncodeToString(sum[:8])
}

// ListProducts returns one page of products priced in the configured region.
// Sorting by price applies within the page.
func (s *Service) ListProducts(ctx context.Context, q Query) (*commerce.ProductPage, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, q.cacheKey(s.opts.RegionID), func() (*commerce.ProductPage, error) {
		page, err := s.backend.ListProducts(ctx, commerce.ProductFilter{
			CategoryID:   q.CategoryID,
			CollectionID: q.CollectionID,
			Handle:       q.Handle,
			Query:        q.Search,
			RegionID:     s.opts.RegionID,
			Limit:        q.Limit,
			Offset:       q.Offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		for i := range page.Products {
			s.fixMedia(&page.Products[i])
		}
		SortByPrice(page.Products, q.Sort)
		return page, nil
	})
}

// Product looks a product up by id and falls back to its handle.
func (s *Service) Product(ctx context.Context, idOrHandle string) (*commerce.Product, error) {
	idOrHandle = strings.TrimSpace(idOrHandle)
	if idOrHandle == "" {
		return nil, commerce.ErrNotFound
	}
	return cached(ctx, s, "product:"+idOrHandle, func() (*commerce.Product, error) {
		p, err := s.backend.RetrieveProduct(ctx, idOrHandle, s.opts.RegionID, s.opts.CountryCode)
		if err != nil && !errors.Is(err, commerce.ErrNotFound) {
			return nil, fmt.Errorf("retrieve product: %w", err)
		}
		if err != nil {
			page, lerr := s.backend.ListProducts(ctx, commerce.ProductFilter{Handle: idOrHandle, RegionID: s.opts.RegionID, Limit: 1})
			if lerr != nil {
				return nil, fmt.Errorf("product by handle: %w", lerr)
			}
			if len(page.Products) == 0 {
				return nil, commerce.ErrNotFound
			}
			p = &page.Products[0]
		}
		s.fixMedia(p)
		return p, nil
	})
}

func (s *Service) Categories(ctx context.Context) ([]commerce.Category, error) {
	return cached(ctx, s, "categories", func() ([]commerce.Category, error) {
		cs, err := s.backend.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		return cs, nil
	})
}

func (s *Service) Collections(ctx context.Context) ([]commerce.Collection, error) {
	return cached(ctx, s, "collections", func() ([]commerce.Collection, error) {
		cs, err := s.backend.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		return cs, nil
	})
}

func (s *Service) fixMedia(p *commerce.Product) {
	if p.Thumbnail != nil {
		u := commerce.FixMediaURL(*p.Thumbnail, s.opts.PublicURL)
		p.Thumbnail = &u
	}
	for i := range p.Images {
		p.Images[i].URL = commerce.FixMediaURL(p.Images[i].URL, s.opts.PublicURL)
	}
}

// LowestPrice is the cheapest variant price in major units: the calculated
// price when present, else the first listed price. Products without
// variants price at 0.
func LowestPrice(p commerce.Product) float64 {
	if len(p.Variants) == 0 {
		return 0
	}
	lowest := variantPrice(p.Variants[0])
	for _, v := range p.Variants[1:] {
		lowest = min(lowest, variantPrice(v))
	}
	return lowest
}

func variantPrice(v commerce.Variant) float64 {
	if v.CalculatedPrice != nil && v.CalculatedPrice.CalculatedAmount != nil {
		return *v.CalculatedPrice.CalculatedAmount
	}
	if len(v.Prices) > 0 {
		return float64(v.Prices[0].Amount)
	}
	return 0
}

// SortByPrice orders products by LowestPrice. Other sort values keep the
// backend order.
func SortByPrice(ps []commerce.Product, sort string) {
	switch sort {
	case SortPriceLow:
		slices.SortStableFunc(ps, func(a, b commerce.Product) int { return cmp.Compare(LowestPrice(a), LowestPrice(b)) })
	case SortPriceHigh:
		slices.SortStableFunc(ps, func(a, b commerce.Product) int { return cmp.Compare(LowestPrice(b), LowestPrice(a)) })
	}
}

// Card is a product as listed in the storefront grid.
type Card struct {
	commerce.Product
	Price       string  `json:"price"`
	PriceAmount float64 `json:"price_amount"`
}

func NewCard(p commerce.Product) Card {
	amt := LowestPrice(p)
	return Card{Product: p, Price: money.FormatMajor(amt), PriceAmount: amt}
}
