package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/guard"
)

func pageBackend() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/auth/", authBackend(nil))
	mux.HandleFunc("GET /dashboard/summary", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer A1", "Bearer A2":
			backendJSON(http.StatusOK, `{"data":{"devices":12,"openAlerts":3,"nested":{"skip":true}}}`)(w, r)
		case "Bearer broken":
			backendJSON(http.StatusServiceUnavailable, `{"message":"Fleet service is restarting"}`)(w, r)
		default:
			backendJSON(http.StatusUnauthorized, `{"error":"jwt expired"}`)(w, r)
		}
	})
	return mux
}

func newPageEnv(t *testing.T) (*testEnv, *PageHandler, http.Handler) {
	t.Helper()

	env := newTestEnv(t, pageBackend())
	pages, err := NewPageHandler(env.auth, env.client, env.caller, env.codec, nil)
	require.NoError(t, err)

	g := guard.New(env.refresh, env.store, env.codec, nil)
	return env, pages, g.RequirePage("/login")(http.HandlerFunc(pages.Dashboard))
}

func TestPageSubmitLogin(t *testing.T) {
	t.Parallel()

	_, pages, _ := newPageEnv(t)

	form := url.Values{"username": {"alice"}, "password": {"pw"}, "next": {"/reports?tab=toner"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	pages.SubmitLogin(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/reports?tab=toner", rec.Header().Get("Location"))
	cookies := responseCookies(rec)
	require.Equal(t, "A1", cookies[cookie.AccessTokenCookie])
	require.NotEmpty(t, cookies[cookie.SessionCookie])
}

func TestPageSubmitLoginRejected(t *testing.T) {
	t.Parallel()

	_, pages, _ := newPageEnv(t)

	form := url.Values{"username": {"alice"}, "password": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	pages.SubmitLogin(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid username or password")
	require.Contains(t, rec.Body.String(), `value="alice"`)
}

func TestPageLoginRedirectsExistingSession(t *testing.T) {
	t.Parallel()

	env, pages, _ := newPageEnv(t)

	req := withCookies(httptest.NewRequest(http.MethodGet, "/login?next=//evil.example", nil), env.sessionCookies(t, "A1", "R1"))
	rec := httptest.NewRecorder()
	pages.Login(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	pages.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Sign in")
}

func TestPageDashboard(t *testing.T) {
	t.Parallel()

	env, _, dashboard := newPageEnv(t)

	t.Run("renders summary", func(t *testing.T) {
		req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), env.sessionCookies(t, "A1", "R1"))
		rec := httptest.NewRecorder()
		dashboard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		require.Contains(t, body, "Welcome, alice")
		require.Contains(t, body, "openAlerts")
		require.NotContains(t, body, "nested")
	})

	t.Run("refreshes before render", func(t *testing.T) {
		req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), env.sessionCookies(t, "", "R1"))
		rec := httptest.NewRecorder()
		dashboard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "A2", responseCookies(rec)[cookie.AccessTokenCookie])
		require.Contains(t, rec.Body.String(), "devices")
	})

	t.Run("backend error is shown", func(t *testing.T) {
		req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), env.sessionCookies(t, "broken", "R1"))
		rec := httptest.NewRecorder()
		dashboard.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Fleet service is restarting")
	})

	t.Run("no session redirects", func(t *testing.T) {
		rec := httptest.NewRecorder()
		dashboard.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?view=map", nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login?next=%2F%3Fview%3Dmap", rec.Header().Get("Location"))
	})
}

func TestSafeNext(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                     "/",
		"/devices?tab=alerts":  "/devices?tab=alerts",
		"https://evil.example": "/",
		"//evil.example":       "/",
		"/\\evil.example":      "/",
		"  /reports  ":         "/reports",
		"javascript:alert(1)":  "/",
	}

	for raw, want := range cases {
		require.Equal(t, want, safeNext(raw), raw)
	}
}

func TestParseSummary(t *testing.T) {
	t.Parallel()

	envelope := parseSummary(&authcall.Response{Body: []byte(`{"data":{"b":2,"a":"x","skip":[1]}}`)})
	require.Equal(t, []summaryItem{{Label: "a", Value: "x"}, {Label: "b", Value: "2"}}, envelope)

	bare := parseSummary(&authcall.Response{Body: []byte(`{"online":true}`)})
	require.Equal(t, []summaryItem{{Label: "online", Value: "true"}}, bare)

	require.Empty(t, parseSummary(&authcall.Response{Body: []byte(`not json`)}))
}
