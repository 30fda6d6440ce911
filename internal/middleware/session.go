package middleware

import (
	"context"
	"net/http"

	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/model"
	"mps-dashboard/internal/session"
)

type sessionReader interface {
	Get(reader cookie.Reader) *session.Record
}

type sessionKey struct{}

// RequireSession rejects API requests without a valid session cookie. It
// never refreshes tokens; that is left to the call wrapper.
func RequireSession(sessions sessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			record := sessions.Get(cookie.FromRequest(r))
			if record == nil {
				writeJSON(w, http.StatusUnauthorized, model.APIResponse{
					Success:     false,
					Error:       "Unauthorized",
					Code:        "UNAUTHORIZED",
					AuthExpired: true,
				})
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*session.Record, bool) {
	record, ok := ctx.Value(sessionKey{}).(*session.Record)
	return record, ok && record != nil
}
