package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	HeaderPublishableKey = "x-publishable-api-key"
	HeaderRequestID      = "X-Request-Id"
)

type Options struct {
	BaseURL        string
	PublishableKey string
	HTTP           *http.Client
	MaxRetries     int
	RPS            float64
	Backoff        time.Duration
	Logger         *zap.Logger
}

// Client talks to the commerce backend Store API. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	key        string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *zap.Logger
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid commerce base url %q", opts.BaseURL)
	}
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RPS), int(opts.RPS)+1)
	}

	c := &Client{
		base:       u,
		key:        opts.PublishableKey,
		http:       hc,
		maxRetries: max(opts.MaxRetries, 0),
		backoff:    backoff,
		limiter:    lim,
		log:        log.Named("commerce"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "commerce-backend",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx adalah jawaban valid dari backend, bukan tanda backend down.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c, nil
}

type tokenKey struct{}

// WithToken attaches a customer bearer token to ctx; requests made with that
// context are authenticated as the customer.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the customer token attached with WithToken.
func TokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		body, err := c.roundTrip(ctx, method, path, q, payload)
		if err == nil {
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
			return nil
		}
		if attempt >= c.maxRetries || !retryable(method, err) {
			return err
		}
		wait := c.backoff << attempt
		c.log.Debug("retrying backend call",
			zap.String("method", method), zap.String("path", path),
			zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, q url.Values, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]byte, error) {
		u := c.base.ResolveReference(&url.URL{Path: strings.TrimRight(c.base.Path, "/") + path, RawQuery: q.Encode()})

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.key != "" {
			req.Header.Set(HeaderPublishableKey, c.key)
		}
		if tok := TokenFrom(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if rid := middleware.GetReqID(ctx); rid != "" {
			req.Header.Set(HeaderRequestID, rid)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		c.log.Debug("backend call",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

		if resp.StatusCode >= 300 {
			return nil, decodeAPIError(resp.StatusCode, b)
		}
		return b, nil
	})
}

// Only idempotent reads are retried; writes to the cart are never replayed.
func retryable(method string, err error) bool {
	if method != http.MethodGet {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
