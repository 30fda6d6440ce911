package handler

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/middleware"
	"mps-dashboard/pkg/apierror"
)

const maxProxyBody = 10 << 20

// passthroughHeaders are copied from a successful backend response.
var passthroughHeaders = []string{"Content-Type", "Content-Disposition", "ETag", "Last-Modified"}

// ProxyHandler exposes every backend endpoint as /api/backend/<path>,
// with the session's bearer token and the refresh-and-retry protocol.
type ProxyHandler struct {
	client *backend.Client
	caller *authcall.Caller
	store  *cookie.Store
}

func NewProxyHandler(client *backend.Client, caller *authcall.Caller, store *cookie.Store) *ProxyHandler {
	return &ProxyHandler{client: client, caller: caller, store: store}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(chi.URLParam(r, "*"))
	if !safeBackendPath(path) {
		writeError(w, apierror.BadRequest("invalid backend path", path))
		return
	}

	// The body is buffered so it can be replayed after a refresh.
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
		if err != nil {
			writeError(w, apierror.New("PAYLOAD_TOO_LARGE", "request body too large", "", http.StatusRequestEntityTooLarge))
			return
		}
	}

	jar := h.store.Bind(w, r)
	call := h.client.Request(r.Method, path, r.URL.Query(), body, r.Header)

	resp, err := h.caller.Do(r.Context(), jar, call, authcall.WithBearerFallback(middleware.BearerToken(r)))
	if err != nil {
		writeError(w, err)
		return
	}

	for _, name := range passthroughHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// safeBackendPath rejects paths that leave the backend root once the
// backend decodes them: dot segments (plain or percent-encoded) and
// backslashes.
func safeBackendPath(raw string) bool {
	if raw == "" {
		return false
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil || strings.ContainsAny(decoded, "\\\x00") {
		return false
	}

	for _, segment := range strings.Split(decoded, "/") {
		if segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
