package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced     = "OrderPlaced"
	EventOrderReconciled = "OrderReconciled"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// NewEnvelope wraps payload as a version 1 event correlated by orderID.
func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type OrderPlacedPayload struct {
	OrderID        string `json:"order_id"`
	CartID         string `json:"cart_id"`
	Email          string `json:"email,omitempty"`
	PaymentMethod  string `json:"payment_method"`
	Status         Status `json:"status"`
	Placeholder    bool   `json:"placeholder"`
	BackendOrderID string `json:"backend_order_id,omitempty"`
	Total          int64  `json:"total"`
	CurrencyCode   string `json:"currency_code"`
}

type OrderReconciledPayload struct {
	OrderID        string `json:"order_id"`
	CartID         string `json:"cart_id"`
	FinalStatus    Status `json:"final_status"`               // RECONCILED | ABANDONED
	BackendOrderID string `json:"backend_order_id,omitempty"` // jika RECONCILED
	Reason         string `json:"reason,omitempty"`           // jika ABANDONED
}
