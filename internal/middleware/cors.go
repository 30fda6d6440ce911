package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows credentialed requests from the configured origins. With no
// origins configured the dashboard is same-origin only.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language", RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", RequestIDHeader},
		MaxAge:           3600,
		AllowCredentials: true,
	})

	return handler.Handler
}
