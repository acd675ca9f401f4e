package checkout

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type PaymentMethod string

const (
	PaymentManual   PaymentMethod = "manual"
	PaymentCOD      PaymentMethod = "cod"
	PaymentRazorpay PaymentMethod = "razorpay"
	PaymentSystem   PaymentMethod = "pp_system"
)

// PaymentMethods lists the selectable methods, default first.
var PaymentMethods = []PaymentMethod{PaymentManual, PaymentCOD, PaymentRazorpay, PaymentSystem}

// fallbackProviders is consulted after the shopper's choice.
var fallbackProviders = []PaymentMethod{PaymentRazorpay, PaymentSystem, PaymentManual, PaymentCOD}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", &ValidationError{Field: "payment_method", Msg: fmt.Sprintf("unsupported payment method %q", s)}
}

// Offline methods complete without a backend payment session.
func (m PaymentMethod) Offline() bool {
	return m == PaymentManual || m == PaymentCOD
}

// PreferenceOrder is the provider order tried for m: m itself, then the
// fallbacks, without duplicates.
func PreferenceOrder(m PaymentMethod) []PaymentMethod {
	out := []PaymentMethod{m}
	for _, p := range fallbackProviders {
		if p != m {
			out = append(out, p)
		}
	}
	return out
}

// NoProviderError means the backend refused every provider in the order.
type NoProviderError struct {
	Tried []PaymentMethod
	Last  error
}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no payment provider accepted (tried %v)", e.Tried)
}

func (e *NoProviderError) Unwrap() error { return e.Last }

// SelectProvider returns the first provider in order that set accepts.
// Individual refusals are logged and skipped.
func SelectProvider(ctx context.Context, order []PaymentMethod, set func(context.Context, PaymentMethod) error, log *zap.Logger) (PaymentMethod, error) {
	var last error
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := set(ctx, p)
		if err == nil {
			return p, nil
		}
		last = err
		if log != nil {
			log.Warn("payment provider refused", zap.String("provider", string(p)), zap.Error(err))
		}
	}
	return "", &NoProviderError{Tried: order, Last: last}
}
