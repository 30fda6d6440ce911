//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/app"
	"mps-dashboard/internal/config"
)

// fleetBackend imitates the remote API: single-use refresh tokens that
// rotate on every refresh and one live access token at a time.
type fleetBackend struct {
	server *httptest.Server

	mu            sync.Mutex
	generation    int
	access        string
	refresh       string
	refreshCalls  int
	logoutCalls   int
	refreshStatus int
}

func newFleetBackend(t *testing.T) *fleetBackend {
	t.Helper()

	fb := &fleetBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", fb.login)
	mux.HandleFunc("POST /auth/refresh", fb.refreshTokens)
	mux.HandleFunc("POST /auth/logout", fb.logout)
	mux.HandleFunc("GET /devices", fb.protected(`{"data":[{"id":"d-1","model":"MFP-4100"}]}`))
	mux.HandleFunc("POST /devices", fb.protectedEcho)
	mux.HandleFunc("GET /dashboard/summary", fb.protected(`{"data":{"devices":12,"openAlerts":3}}`))
	mux.HandleFunc("GET /contracts/missing", fb.protectedStatus(http.StatusNotFound, `{"message":"Contract not found"}`))

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fleetBackend) rotateLocked() {
	fb.generation++
	fb.access = fmt.Sprintf("A%d", fb.generation)
	fb.refresh = fmt.Sprintf("R%d", fb.generation)
}

// expireAccess invalidates the live access token; the refresh token stays valid.
func (fb *fleetBackend) expireAccess() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.access = "expired-" + fb.access
}

func (fb *fleetBackend) failRefresh(status int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refreshStatus = status
}

func (fb *fleetBackend) counts() (refreshes int, logouts int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.refreshCalls, fb.logoutCalls
}

func (fb *fleetBackend) login(w http.ResponseWriter, r *http.Request) {
	var payload map[string]string
	_ = json.NewDecoder(r.Body).Decode(&payload)
	if payload["username"] != "alice" || payload["password"] != "s3cret" {
		writeBody(w, http.StatusUnauthorized, `{"message":"Invalid username or password"}`)
		return
	}

	fb.mu.Lock()
	fb.rotateLocked()
	access, refresh := fb.access, fb.refresh
	fb.mu.Unlock()

	writeBody(w, http.StatusOK, fmt.Sprintf(`{"success":true,"data":{"accessToken":%q,"refreshToken":%q,"user":{"id":"u-1","customerId":"c-7","role":"admin","username":"alice","email":"alice@example.com"}}}`, access, refresh))
}

func (fb *fleetBackend) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var payload map[string]string
	_ = json.NewDecoder(r.Body).Decode(&payload)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refreshCalls++

	if fb.refreshStatus != 0 {
		writeBody(w, fb.refreshStatus, `{"error":"refresh unavailable"}`)
		return
	}
	if payload["refreshToken"] == "" || payload["refreshToken"] != fb.refresh {
		writeBody(w, http.StatusUnauthorized, `{"error":"invalid refresh token"}`)
		return
	}

	fb.rotateLocked()
	writeBody(w, http.StatusOK, fmt.Sprintf(`{"accessToken":%q,"refreshToken":%q}`, fb.access, fb.refresh))
}

func (fb *fleetBackend) logout(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.logoutCalls++
	fb.access, fb.refresh = "", ""
	w.WriteHeader(http.StatusNoContent)
}

func (fb *fleetBackend) authorized(r *http.Request) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return fb.access != "" && bearer == fb.access
}

func (fb *fleetBackend) protected(body string) http.HandlerFunc {
	return fb.protectedStatus(http.StatusOK, body)
}

func (fb *fleetBackend) protectedStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !fb.authorized(r) {
			writeBody(w, http.StatusUnauthorized, `{"error":"jwt expired"}`)
			return
		}
		writeBody(w, status, body)
	}
}

func (fb *fleetBackend) protectedEcho(w http.ResponseWriter, r *http.Request) {
	if !fb.authorized(r) {
		writeBody(w, http.StatusUnauthorized, `{"error":"jwt expired"}`)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	writeBody(w, http.StatusCreated, string(raw))
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func testConfig(apiBase string) *config.Config {
	return &config.Config{
		Env:                     "test",
		ServerPort:              "0",
		ServerReadHeaderTimeout: 5 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       30 * time.Second,
		RequestTimeout:          10 * time.Second,
		APIBaseURL:              apiBase,
		BackendTimeout:          5 * time.Second,
		RefreshTimeout:          5 * time.Second,
		SessionSecret:           "integration-session-secret-0123456789",
		SessionTTL:              8 * time.Hour,
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		RefreshCoalesce:         true,
		RefreshReuseWindow:      30 * time.Second,
		RateLimitRPM:            0,
		AuthRateLimitRPM:        1000,
		LogLevel:                "error",
		LogFormat:               "json",
	}
}

func newDashboard(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	application, err := app.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)
	return server
}

// newBrowser returns a client that keeps cookies and does not follow redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func cookieValue(t *testing.T, client *http.Client, base string, name string) string {
	t.Helper()

	u, err := url.Parse(base)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func doJSON(t *testing.T, client *http.Client, method string, target string, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &parsed)
	}
	return resp, parsed
}

func login(t *testing.T, client *http.Client, base string) {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodPost, base+"/api/auth/login", `{"username":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
