package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartHandler struct {
	Carts *cart.Manager
	Log   *zap.Logger
}

type addItemReq struct {
	VariantID string `json:"variant_id"`
	Quantity  *int   `json:"quantity"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/refresh", h.refresh)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{lineID}", h.updateItem)
	r.Delete("/cart/items/{lineID}", h.removeItem)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Carts.Current(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.NewView(c))
}

func (h *CartHandler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Carts.Refresh(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.NewView(c))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Carts.AddItem(ctx, SessionID(r.Context()), req.VariantID, qty)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.NewView(c))
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Carts.UpdateItem(ctx, SessionID(r.Context()), chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.NewView(c))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Carts.RemoveItem(ctx, SessionID(r.Context()), chi.URLParam(r, "lineID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.NewView(c))
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.Clear(ctx, SessionID(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
