// Package guard makes sure a page has a usable access token before it
// starts rendering, since a render can no longer write cookies.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/session"
)

type Status int

const (
	// StatusReady means an access token was present. It is not validated
	// locally; the backend decides.
	StatusReady Status = iota + 1
	StatusRefreshed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

type contextKey int

const (
	recordKey contextKey = iota
	jarKey
)

type Guarantor struct {
	refresher authcall.Refresher
	store     *cookie.Store
	codec     *session.Codec
	logger    *slog.Logger
}

func New(refresher authcall.Refresher, store *cookie.Store, codec *session.Codec, logger *slog.Logger) *Guarantor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarantor{refresher: refresher, store: store, codec: codec, logger: logger}
}

// Ensure guarantees an access token is in the jar, refreshing when only
// the refresh token survived. With neither it fails without a round-trip.
func (g *Guarantor) Ensure(ctx context.Context, jar cookie.Jar) (Status, error) {
	if _, ok := jar.Get(cookie.AccessTokenCookie); ok {
		return StatusReady, nil
	}
	if _, ok := jar.Get(cookie.RefreshTokenCookie); !ok {
		return 0, authcall.ErrNoCredentials
	}

	if _, err := g.refresher.Refresh(ctx, jar); err != nil {
		return 0, fmt.Errorf("%w: %w", authcall.ErrRefreshFailed, err)
	}
	return StatusRefreshed, nil
}

// RequirePage protects server-rendered pages. Anonymous or expired
// visitors are redirected to loginPath with the original target in next.
func (g *Guarantor) RequirePage(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jar := g.store.Bind(w, r)

			status, err := g.Ensure(r.Context(), jar)
			if err != nil {
				g.logger.Debug("page requires login", "path", r.URL.Path, "error", err)
				redirectToLogin(w, r, loginPath)
				return
			}

			record := g.codec.Get(jar)
			if record == nil {
				// Tokens without a session cannot be attributed to anyone.
				cookie.Clear(jar)
				redirectToLogin(w, r, loginPath)
				return
			}
			g.codec.Refresh(jar)

			if status == StatusRefreshed {
				g.logger.Debug("access token refreshed before render", "user_id", record.UserID, "path", r.URL.Path)
			}

			ctx := context.WithValue(r.Context(), recordKey, record)
			ctx = context.WithValue(ctx, jarKey, cookie.Jar(jar))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// RecordFromContext returns the session record of a guarded page request.
func RecordFromContext(ctx context.Context) (*session.Record, bool) {
	record, ok := ctx.Value(recordKey).(*session.Record)
	return record, ok && record != nil
}

// JarFromContext returns the jar the guard used, so backend calls made
// before the page writes its body see any refreshed token.
func JarFromContext(ctx context.Context) (cookie.Jar, bool) {
	jar, ok := ctx.Value(jarKey).(cookie.Jar)
	return jar, ok
}
