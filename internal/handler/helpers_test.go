package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/event"
	"mps-dashboard/internal/session"
	"mps-dashboard/internal/token"
)

type testEnv struct {
	backend *httptest.Server
	client  *backend.Client
	caller  *authcall.Caller
	refresh *token.Refresher
	store   *cookie.Store
	codec   *session.Codec
	bus     *event.InMemoryBus
	auth    *AuthHandler
}

func newTestEnv(t *testing.T, api http.Handler) *testEnv {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := session.NewCodec("handler-test-secret", time.Hour)
	require.NoError(t, err)

	client := backend.New(srv.URL, 5*time.Second)
	refresher := token.NewRefresher(srv.URL, token.Options{Client: client.HTTPClient(), Identify: codec.UserID, Logger: logger})
	caller := authcall.NewCaller(refresher, authcall.WithIdentify(codec.UserID), authcall.WithLogger(logger))
	store := cookie.NewStore(cookie.Options{})
	bus := event.NewBus()

	return &testEnv{
		backend: srv,
		client:  client,
		caller:  caller,
		refresh: refresher,
		store:   store,
		codec:   codec,
		bus:     bus,
		auth: NewAuthHandler(AuthHandlerDeps{
			Client:    client,
			Caller:    caller,
			Refresher: refresher,
			Store:     store,
			Codec:     codec,
			Bus:       bus,
			Logger:    logger,
		}),
	}
}

// sessionCookies returns the cookies a logged-in browser would send.
func (e *testEnv) sessionCookies(t *testing.T, access string, refresh string) []*http.Cookie {
	t.Helper()

	signed, err := e.codec.Encode(session.Record{UserID: "u-1", Role: "admin", Username: "alice"})
	require.NoError(t, err)

	cookies := []*http.Cookie{{Name: cookie.SessionCookie, Value: signed}}
	if access != "" {
		cookies = append(cookies, &http.Cookie{Name: cookie.AccessTokenCookie, Value: access})
	}
	if refresh != "" {
		cookies = append(cookies, &http.Cookie{Name: cookie.RefreshTokenCookie, Value: refresh})
	}
	return cookies
}

func withCookies(r *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

// responseCookies indexes Set-Cookie by name; deleted cookies map to "".
func responseCookies(rec *httptest.ResponseRecorder) map[string]string {
	out := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func backendJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

