package token

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/event"
	"mps-dashboard/internal/metrics"
)

const (
	refreshPath      = "/auth/refresh"
	maxResponseBytes = 1 << 20
)

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

type Observer interface {
	ObserveRefresh(result string, elapsed time.Duration)
}

type Options struct {
	Client      *http.Client
	Timeout     time.Duration
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Coalesce    bool
	Cache       RotationCache
	ReuseWindow time.Duration
	Observer    Observer
	Bus         event.Bus
	// Identify names the user behind a jar for events and logs.
	Identify func(cookie.Reader) string
	Logger   *slog.Logger
}

// Refresher exchanges a refresh token for a new token pair against
// {API_BASE}/auth/refresh and persists the result through a cookie jar.
type Refresher struct {
	endpoint string
	opts     Options
	group    singleflight.Group
}

func NewRefresher(apiBase string, opts Options) *Refresher {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	// A shared client's own timeout would silently cap REFRESH_TIMEOUT.
	// The per-exchange context bounds the call instead; the transport is kept.
	if opts.Client.Timeout > 0 && opts.Client.Timeout < opts.Timeout {
		client := *opts.Client
		client.Timeout = 0
		opts.Client = &client
	}
	if opts.Identify == nil {
		opts.Identify = func(cookie.Reader) string { return "" }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Refresher{endpoint: apiBase + refreshPath, opts: opts}
}

// Refresh rotates the jar's tokens and returns the new access token.
// Any failure deletes all three cookies before returning ErrRefreshFailed.
func (r *Refresher) Refresh(ctx context.Context, jar cookie.Jar) (string, error) {
	refreshToken, ok := jar.Get(cookie.RefreshTokenCookie)
	if !ok {
		return "", ErrNoRefreshToken
	}

	actor := r.opts.Identify(jar)

	pair, source, err := r.obtain(ctx, refreshToken)
	if err != nil {
		cookie.Clear(jar)
		r.opts.Logger.Warn("token refresh failed, credentials cleared", "user_id", actor, "error", err)
		event.Publish(r.opts.Bus, event.New(event.TypeTokenRefreshFailed, actor, map[string]any{
			"reason": err.Error(),
		}))
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	cookie.SetTokens(jar, pair.AccessToken, pair.RefreshToken, r.opts.AccessTTL, r.opts.RefreshTTL)

	r.opts.Logger.Debug("token refreshed", "user_id", actor, "source", source, "rotated", pair.RefreshToken != "")
	event.Publish(r.opts.Bus, event.New(event.TypeTokenRefreshed, actor, map[string]any{
		"source":  source,
		"rotated": pair.RefreshToken != "",
	}))

	return pair.AccessToken, nil
}

// obtain returns the pair for refreshToken and where it came from:
// the backend, a concurrent caller's exchange, or the reuse window.
func (r *Refresher) obtain(ctx context.Context, refreshToken string) (Pair, string, error) {
	fp := Fingerprint(refreshToken)

	if pair, ok := r.lookup(ctx, fp); ok {
		r.observe(metrics.RefreshReused, 0)
		return pair, metrics.RefreshReused, nil
	}

	if !r.opts.Coalesce {
		pair, err := r.exchangeAndRemember(ctx, fp, refreshToken)
		return pair, metrics.RefreshSuccess, err
	}

	// The shared exchange must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	results := r.group.DoChan(fp, func() (any, error) {
		// A flight that finished between lookup and DoChan already rotated the token.
		if pair, ok := r.lookup(shared, fp); ok {
			return pair, nil
		}
		return r.exchangeAndRemember(shared, fp, refreshToken)
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return Pair{}, "", res.Err
		}
		source := metrics.RefreshSuccess
		if res.Shared {
			source = metrics.RefreshCoalesced
			r.observe(metrics.RefreshCoalesced, 0)
		}
		return res.Val.(Pair), source, nil
	case <-ctx.Done():
		return Pair{}, "", fmt.Errorf("waiting for shared refresh: %w", ctx.Err())
	}
}

func (r *Refresher) exchangeAndRemember(ctx context.Context, fp string, refreshToken string) (Pair, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	pair, err := r.exchange(ctx, refreshToken)
	if err != nil {
		r.observe(metrics.RefreshFailure, time.Since(started))
		return Pair{}, err
	}
	r.observe(metrics.RefreshSuccess, time.Since(started))

	if r.opts.Cache != nil && r.opts.ReuseWindow > 0 {
		if cacheErr := r.opts.Cache.Remember(ctx, fp, pair, r.opts.ReuseWindow); cacheErr != nil {
			r.opts.Logger.Warn("could not remember rotated token pair", "error", cacheErr)
		}
	}

	return pair, nil
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (Pair, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Pair{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Pair{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.opts.Client.Do(req)
	if err != nil {
		return Pair{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Pair{}, fmt.Errorf("refresh endpoint unavailable: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Pair{}, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Pair{}, fmt.Errorf("refresh rejected: status %d", resp.StatusCode)
	}

	pair, ok := ExtractPair(body)
	if !ok {
		return Pair{}, errors.New("refresh response carried no access token")
	}

	return pair, nil
}

func (r *Refresher) lookup(ctx context.Context, fp string) (Pair, bool) {
	if r.opts.Cache == nil || r.opts.ReuseWindow <= 0 {
		return Pair{}, false
	}

	pair, ok, err := r.opts.Cache.Lookup(ctx, fp)
	if err != nil {
		r.opts.Logger.Warn("rotated token lookup failed", "error", err)
		return Pair{}, false
	}
	return pair, ok
}

func (r *Refresher) observe(result string, elapsed time.Duration) {
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveRefresh(result, elapsed)
	}
}

// Fingerprint keys caches and coalescing by token hash so raw refresh
// tokens never become map or Redis keys.
func Fingerprint(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
