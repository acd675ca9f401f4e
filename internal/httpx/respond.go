package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/commerce"
	"github.com/ariefcatur/go-storefront/internal/customer"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"go.uber.org/zap"
)

var errInvalidJSON = errors.New("invalid json")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidJSON
	}
	return nil
}

// statusOf maps an error to the HTTP status and the message shown to the
// shopper.
func statusOf(err error) (int, string) {
	var (
		valErr *checkout.ValidationError
		npErr  *checkout.NoProviderError
		apiErr *commerce.APIError
	)
	switch {
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrAddressIncomplete):
		return http.StatusUnprocessableEntity, checkout.UserMessage(err)
	case errors.As(err, &valErr):
		return http.StatusBadRequest, valErr.Error()
	case errors.Is(err, cart.ErrInvalidVariant), errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, customer.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidSort):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, customer.ErrNotAuthenticated):
		return http.StatusUnauthorized, "Please log in to continue."
	case errors.Is(err, commerce.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, commerce.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &npErr):
		return http.StatusBadGateway, checkout.UserMessage(err)
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, checkout.UserMessage(err)
	}
	return http.StatusInternalServerError, checkout.GenericMessage
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code, msg := statusOf(err)
	if code >= http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("path", r.URL.Path), zap.String("session", SessionID(r.Context())), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
