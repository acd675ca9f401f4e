package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookie carries the visitor session id. Everything the storefront
// keeps per visitor (cart reference, checkout progress, customer token) is
// keyed by it.
const SessionCookie = "sf_session"

type sessionKey struct{}

// Sessions reads the session cookie, minting a new session id when it is
// missing or malformed.
func Sessions(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					sid = c.Value
				}
			}
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sid)))
		})
	}
}

func SessionID(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}
