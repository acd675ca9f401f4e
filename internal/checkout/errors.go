package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/commerce"
)

var (
	ErrAddressIncomplete = errors.New("address is incomplete")
	ErrEmptyCart         = errors.New("cart is empty")
)

// GenericMessage is shown when nothing more specific is known.
const GenericMessage = "Something went wrong. Please try again."

// ValidationError is raised before any backend call is made.
type ValidationError struct {
	Field  string
	Fields []string
	Msg    string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return "invalid " + e.Field
}

func (e *ValidationError) Unwrap() error { return e.Err }

// message picks the text shown to the shopper for err: backend and
// validation messages pass through, anything else gets fallback.
func message(err error, fallback string) string {
	var (
		apiErr *commerce.APIError
		valErr *ValidationError
		npErr  *NoProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &npErr):
		return "No payment method is available for this order. Please choose another one."
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return fallback
}

// UserMessage is the outermost mapping used by the HTTP layer.
func UserMessage(err error) string {
	return message(err, GenericMessage)
}
