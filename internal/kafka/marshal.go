package kafka

import (
	"encoding/json"
	"fmt"
)

// Decode reads a JSON message value into out.
func Decode(b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Unwrap memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
