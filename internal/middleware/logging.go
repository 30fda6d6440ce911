package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// errorBody picks the error fields out of an APIResponse envelope.
type errorBody struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	AuthExpired bool   `json:"authExpired"`
}

// Logging tags each request with an ID and logs it on completion. The ID
// is also set on the request so backend calls carry it.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(RequestIDHeader, requestID)
		}

		w.Header().Set(RequestIDHeader, requestID)

		started := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"client_ip", ClientIP(r),
		}

		if wrapped.status >= 400 && wrapped.body.Len() > 0 {
			var parsed errorBody
			if err := json.Unmarshal(wrapped.body.Bytes(), &parsed); err == nil && parsed.Error != "" {
				attrs = append(attrs, "error_message", parsed.Error)
				if parsed.Code != "" {
					attrs = append(attrs, "error_code", parsed.Code)
				}
				if parsed.AuthExpired {
					attrs = append(attrs, "auth_expired", true)
				}
			}
		}

		switch {
		case wrapped.status >= 500:
			slog.Error("request", attrs...)
		case wrapped.status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// maxLoggedBody bounds how much of an error body is kept for the log line.
const maxLoggedBody = 4 << 10

type responseWriter struct {
	http.ResponseWriter
	status      int
	body        limitedBuffer
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.status >= 400 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type limitedBuffer struct {
	buf []byte
}

func (b *limitedBuffer) Write(p []byte) {
	room := maxLoggedBody - len(b.buf)
	if room <= 0 {
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	b.buf = append(b.buf, p...)
}

func (b *limitedBuffer) Len() int { return len(b.buf) }

func (b *limitedBuffer) Bytes() []byte { return b.buf }
