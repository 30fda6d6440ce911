// Package authcall wraps every outbound backend call in the
// refresh-and-retry-once protocol.
package authcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/event"
	"mps-dashboard/internal/metrics"
	"mps-dashboard/internal/token"
)

const maxBodyBytes = 10 << 20

// CallFunc performs one backend request with the given bearer token.
type CallFunc func(ctx context.Context, accessToken string) (*http.Response, error)

type Refresher interface {
	Refresh(ctx context.Context, jar cookie.Jar) (string, error)
}

type Observer interface {
	ObserveCall(outcome string, retried bool)
}

// Response is a fully read 2xx backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

type Caller struct {
	refresher Refresher
	observer  Observer
	bus       event.Bus
	identify  func(cookie.Reader) string
	logger    *slog.Logger
}

type CallerOption func(*Caller)

func WithObserver(o Observer) CallerOption {
	return func(c *Caller) { c.observer = o }
}

func WithBus(bus event.Bus) CallerOption {
	return func(c *Caller) { c.bus = bus }
}

func WithIdentify(fn func(cookie.Reader) string) CallerOption {
	return func(c *Caller) { c.identify = fn }
}

func WithLogger(logger *slog.Logger) CallerOption {
	return func(c *Caller) { c.logger = logger }
}

func NewCaller(refresher Refresher, opts ...CallerOption) *Caller {
	c := &Caller{
		refresher: refresher,
		identify:  func(cookie.Reader) string { return "" },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callOptions struct {
	bearer string
}

type Option func(*callOptions)

// WithBearerFallback supplies an access token to use when the jar has none,
// typically taken from an incoming Authorization header.
func WithBearerFallback(accessToken string) Option {
	return func(o *callOptions) { o.bearer = accessToken }
}

// Do runs fn with the current access token. On a 401 it refreshes once and
// retries once; the retry's result is final.
func (c *Caller) Do(ctx context.Context, jar cookie.Jar, fn CallFunc, opts ...Option) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	access, hasAccess := jar.Get(cookie.AccessTokenCookie)
	if !hasAccess && o.bearer != "" {
		access, hasAccess = o.bearer, true
	}
	_, hasRefresh := jar.Get(cookie.RefreshTokenCookie)

	if !hasAccess {
		if !hasRefresh {
			c.observe(metrics.CallNoCredentials, false)
			return nil, ErrNoCredentials
		}

		// The refreshed attempt is this call's one retry.
		fresh, err := c.refresh(ctx, jar)
		if err != nil {
			return nil, err
		}
		return c.finish(c.attempt(ctx, fn, fresh))
	}

	resp, err := c.attempt(ctx, fn, access)
	if err != nil {
		c.observe(metrics.CallTransportError, false)
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.result(resp, false)
	}

	if _, ok := jar.Get(cookie.RefreshTokenCookie); !ok {
		actor := c.identify(jar)
		cookie.Clear(jar)
		c.expired(actor, "unauthorized")
		return nil, ErrUnauthorized
	}

	fresh, err := c.refresh(ctx, jar)
	if err != nil {
		return nil, err
	}
	return c.finish(c.attempt(ctx, fn, fresh))
}

func (c *Caller) refresh(ctx context.Context, jar cookie.Jar) (string, error) {
	// Identify before the refresher gets a chance to clear the session.
	actor := c.identify(jar)

	fresh, err := c.refresher.Refresh(ctx, jar)
	if err == nil {
		return fresh, nil
	}

	if errors.Is(err, token.ErrNoRefreshToken) {
		cookie.Clear(jar)
		c.expired(actor, "unauthorized")
		return "", ErrUnauthorized
	}

	c.expired(actor, "refresh_failed")
	return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
}

func (c *Caller) finish(resp *Response, err error) (*Response, error) {
	if err != nil {
		c.observe(metrics.CallTransportError, true)
		return nil, err
	}
	return c.result(resp, true)
}

func (c *Caller) result(resp *Response, retried bool) (*Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(metrics.CallBackendError, retried)
		return nil, &BackendError{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
	}

	c.observe(metrics.CallSuccess, retried)
	return resp, nil
}

func (c *Caller) attempt(ctx context.Context, fn CallFunc, accessToken string) (*Response, error) {
	resp, err := fn(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

func (c *Caller) expired(actor string, reason string) {
	c.observe(metrics.CallAuthExpired, false)

	c.logger.Info("authentication expired", "user_id", actor, "reason", reason)
	event.Publish(c.bus, event.New(event.TypeAuthExpired, actor, map[string]any{"reason": reason}))
}

func (c *Caller) observe(outcome string, retried bool) {
	if c.observer != nil {
		c.observer.ObserveCall(outcome, retried)
	}
}
