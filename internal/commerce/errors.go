package commerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("commerce: not found")
	ErrUnauthorized = errors.New("commerce: unauthorized")
)

// APIError is a non-2xx answer from the commerce backend.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce backend returned %d", e.Status)
	}
	return e.Message
}

// Is lets callers match on ErrNotFound / ErrUnauthorized with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func decodeAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if len(body) > 0 {
		_ = json.Unmarshal(body, e)
		e.Status = status
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
