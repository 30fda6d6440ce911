package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/session"
	"mps-dashboard/internal/token"
)

type stubRefresher struct {
	calls  int
	access string
	err    error
}

func (s *stubRefresher) Refresh(_ context.Context, jar cookie.Jar) (string, error) {
	s.calls++
	if s.err != nil {
		cookie.Clear(jar)
		return "", s.err
	}
	cookie.SetTokens(jar, s.access, "", 0, 0)
	return s.access, nil
}

func newGuarantor(t *testing.T, refresher authcall.Refresher) (*Guarantor, *cookie.Store, *session.Codec) {
	t.Helper()

	codec, err := session.NewCodec("guard-test-secret", time.Hour)
	require.NoError(t, err)
	store := cookie.NewStore(cookie.Options{})
	return New(refresher, store, codec, nil), store, codec
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	t.Run("access token present", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, _ := newGuarantor(t, refresher)
		jar := cookie.NewMemoryJar(map[string]string{cookie.AccessTokenCookie: "A1", cookie.RefreshTokenCookie: "R1"})

		status, err := g.Ensure(context.Background(), jar)
		require.NoError(t, err)
		require.Equal(t, StatusReady, status)
		require.Zero(t, refresher.calls)
	})

	t.Run("only refresh token", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, _ := newGuarantor(t, refresher)
		jar := cookie.NewMemoryJar(map[string]string{cookie.RefreshTokenCookie: "R1"})

		status, err := g.Ensure(context.Background(), jar)
		require.NoError(t, err)
		require.Equal(t, StatusRefreshed, status)
		require.Equal(t, 1, refresher.calls)

		access, ok := jar.Get(cookie.AccessTokenCookie)
		require.True(t, ok)
		require.Equal(t, "A2", access)
	})

	t.Run("refresh fails", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{err: token.ErrRefreshFailed}
		g, _, _ := newGuarantor(t, refresher)
		jar := cookie.NewMemoryJar(map[string]string{cookie.SessionCookie: "S1", cookie.RefreshTokenCookie: "R1"})

		_, err := g.Ensure(context.Background(), jar)
		require.ErrorIs(t, err, authcall.ErrAuthExpired)
		require.True(t, jar.Empty())
	})

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, _ := newGuarantor(t, refresher)

		_, err := g.Ensure(context.Background(), cookie.NewMemoryJar(nil))
		require.ErrorIs(t, err, authcall.ErrNoCredentials)
		require.Zero(t, refresher.calls)
	})
}

func TestRequirePage(t *testing.T) {
	t.Parallel()

	record := session.Record{UserID: "u-1", Role: "admin", Username: "alice"}

	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := RecordFromContext(r.Context())
		if !ok {
			http.Error(w, "no record", http.StatusInternalServerError)
			return
		}
		jar, ok := JarFromContext(r.Context())
		if !ok {
			http.Error(w, "no jar", http.StatusInternalServerError)
			return
		}
		access, _ := jar.Get(cookie.AccessTokenCookie)
		_, _ = w.Write([]byte(got.Username + ":" + access))
	})

	signed := func(t *testing.T, codec *session.Codec) string {
		raw, err := codec.Encode(record)
		require.NoError(t, err)
		return raw
	}

	t.Run("renders with refreshed token", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, codec := newGuarantor(t, refresher)

		req := httptest.NewRequest(http.MethodGet, "/devices?page=2", nil)
		req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: signed(t, codec)})
		req.AddCookie(&http.Cookie{Name: cookie.RefreshTokenCookie, Value: "R1"})
		rec := httptest.NewRecorder()

		g.RequirePage("/login")(page).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "alice:A2", rec.Body.String())
		require.Equal(t, 1, refresher.calls)

		names := map[string]bool{}
		for _, c := range rec.Result().Cookies() {
			names[c.Name] = true
		}
		require.True(t, names[cookie.AccessTokenCookie])
		require.True(t, names[cookie.SessionCookie])
	})

	t.Run("redirects anonymous visitors", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, _ := newGuarantor(t, refresher)

		rec := httptest.NewRecorder()
		g.RequirePage("/login")(page).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices?page=2", nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login?next=%2Fdevices%3Fpage%3D2", rec.Header().Get("Location"))
		require.Zero(t, refresher.calls)
	})

	t.Run("redirects when refresh fails", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{err: errors.New("refresh rejected")}
		g, _, codec := newGuarantor(t, refresher)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: signed(t, codec)})
		req.AddCookie(&http.Cookie{Name: cookie.RefreshTokenCookie, Value: "R1"})
		rec := httptest.NewRecorder()

		g.RequirePage("/login")(page).ServeHTTP(rec, req)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		for _, c := range rec.Result().Cookies() {
			require.Equal(t, -1, c.MaxAge, c.Name)
		}
	})

	t.Run("tokens without session", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{access: "A2"}
		g, _, _ := newGuarantor(t, refresher)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: cookie.AccessTokenCookie, Value: "A1"})
		rec := httptest.NewRecorder()

		g.RequirePage("/login")(page).ServeHTTP(rec, req)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Len(t, rec.Result().Cookies(), len(cookie.Names))
	})
}
