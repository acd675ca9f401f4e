package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	Checkout *checkout.Orchestrator
	Log      *zap.Logger
}

type contactReq struct {
	Email string `json:"email"`
}

type shippingReq struct {
	OptionID string `json:"option_id"`
}

type paymentReq struct {
	Method string `json:"method"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Get("/checkout", h.view)
	r.Put("/checkout/contact", h.setContact)
	r.Put("/checkout/address", h.setAddress)
	r.Put("/checkout/address/draft", h.setAddressDraft)
	r.Put("/checkout/shipping", h.selectShipping)
	r.Put("/checkout/payment", h.selectPayment)
	r.Post("/checkout/complete", h.complete)
}

func (h *CheckoutHandler) view(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Checkout.View(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CheckoutHandler) setContact(w http.ResponseWriter, r *http.Request) {
	var req contactReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st, err := h.Checkout.SetContact(ctx, SessionID(r.Context()), req.Email)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CheckoutHandler) setAddress(w http.ResponseWriter, r *http.Request) {
	var sel checkout.AddressSelection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	st, err := h.Checkout.SetAddress(ctx, SessionID(r.Context()), sel)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// setAddressDraft accepts partial address input while the shopper types.
// The address is applied once the session stops sending drafts.
func (h *CheckoutHandler) setAddressDraft(w http.ResponseWriter, r *http.Request) {
	var sel checkout.AddressSelection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.Checkout.SetAddressDraft(SessionID(r.Context()), sel)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *CheckoutHandler) selectShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.Checkout.SelectShipping(ctx, SessionID(r.Context()), req.OptionID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CheckoutHandler) selectPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st, err := h.Checkout.SelectPayment(ctx, SessionID(r.Context()), req.Method)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CheckoutHandler) complete(w http.ResponseWriter, r *http.Request) {
	// complete cart bisa lama (payment provider), kasih waktu lebih
	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	res, err := h.Checkout.Complete(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	code := http.StatusOK
	if res.Pending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, res)
}
