package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Orders *orders.Service
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Orders.Lookup(ctx, orderID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
