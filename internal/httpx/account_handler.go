package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AccountHandler struct {
	Customers *customer.Service
	Log       *zap.Logger
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AccountHandler) Register(r *chi.Mux) {
	r.Post("/account/login", h.login)
	r.Post("/account/logout", h.logout)
	r.Post("/account/register", h.register)
	r.Get("/account", h.me)
	r.Get("/account/addresses", h.addresses)
	r.Post("/account/addresses", h.addAddress)
}

func (h *AccountHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Customers.Login(ctx, SessionID(r.Context()), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AccountHandler) logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Customers.Logout(ctx, SessionID(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) register(w http.ResponseWriter, r *http.Request) {
	var req commerce.NewCustomer
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.Customers.Register(ctx, SessionID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AccountHandler) me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Customers.Current(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AccountHandler) addresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	as, err := h.Customers.Addresses(ctx, SessionID(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": as})
}

func (h *AccountHandler) addAddress(w http.ResponseWriter, r *http.Request) {
	var addr commerce.Address
	if err := decodeJSON(r, &addr); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	as, err := h.Customers.AddAddress(ctx, SessionID(r.Context()), addr)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"addresses": as})
}
