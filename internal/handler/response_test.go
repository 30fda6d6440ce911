package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/model"
	"mps-dashboard/pkg/apierror"
)

func TestWriteErrorMapping(t *testing.T) {
	t.Parallel()

	invalid := &authcall.BackendError{StatusCode: http.StatusUnauthorized, Body: []byte(`{"message":"Wrong password"}`)}

	cases := []struct {
		name        string
		err         error
		status      int
		message     string
		authExpired bool
	}{
		{"unauthorized", authcall.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", true},
		{"no credentials", authcall.ErrNoCredentials, http.StatusUnauthorized, "Unauthorized", true},
		{"refresh failed", fmt.Errorf("%w: status 500", authcall.ErrRefreshFailed), http.StatusUnauthorized, "Token refresh failed", true},
		{"transport", fmt.Errorf("%w: dial tcp", authcall.ErrTransport), http.StatusInternalServerError, "Backend unavailable", false},
		{"invalid credentials", fmt.Errorf("%w: %w", backend.ErrInvalidCredentials, invalid), http.StatusUnauthorized, "Wrong password", false},
		{"invalid input", fmt.Errorf("%w: password is required", model.ErrInvalidInput), http.StatusBadRequest, "Invalid input", false},
		{"api error", apierror.BadRequest("bad", ""), http.StatusBadRequest, "bad", false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Unexpected server error", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, false, body["success"])
			require.Equal(t, tc.message, body["error"])
			if tc.authExpired {
				require.Equal(t, true, body["authExpired"])
			} else {
				require.NotContains(t, body, "authExpired")
			}
		})
	}
}

func TestWriteErrorPassesBackendErrorsThrough(t *testing.T) {
	t.Parallel()

	be := &authcall.BackendError{
		StatusCode: http.StatusConflict,
		Header:     http.Header{"Content-Type": []string{"application/problem+json"}},
		Body:       []byte(`{"title":"duplicate serial"}`),
	}

	rec := httptest.NewRecorder()
	writeError(rec, be)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"title":"duplicate serial"}`, rec.Body.String())
}
