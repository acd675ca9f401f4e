package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	Catalog *catalog.Service
	Log     *zap.Logger
}

type productListResp struct {
	Products []catalog.Card `json:"products"`
	Count    int            `json:"count"`
	Offset   int            `json:"offset"`
	Limit    int            `json:"limit"`
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{idOrHandle}", h.getProduct)
	r.Get("/categories", h.categories)
	r.Get("/collections", h.collections)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// limit/offset yang tidak valid dianggap kosong, normalize yang isi default
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	query := catalog.Query{
		CategoryID:   q.Get("category_id"),
		CollectionID: q.Get("collection_id"),
		Handle:       q.Get("handle"),
		Search:       q.Get("q"),
		Sort:         q.Get("sort"),
		Limit:        limit,
		Offset:       offset,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := h.Catalog.ListProducts(ctx, query)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	resp := productListResp{
		Products: make([]catalog.Card, 0, len(page.Products)),
		Count:    page.Count,
		Offset:   page.Offset,
		Limit:    page.Limit,
	}
	for _, p := range page.Products {
		resp.Products = append(resp.Products, catalog.NewCard(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Product(ctx, chi.URLParam(r, "idOrHandle"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.NewCard(*p))
}

func (h *CatalogHandler) categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cs, err := h.Catalog.Categories(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_categories": cs})
}

func (h *CatalogHandler) collections(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cs, err := h.Catalog.Collections(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cs})
}
