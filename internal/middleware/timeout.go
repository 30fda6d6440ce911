package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds API handlers. The whole refresh-and-retry cycle of a
// proxied call has to fit inside it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	message := `{"success":false,"error":"Request timed out","code":"REQUEST_TIMEOUT"}`

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
