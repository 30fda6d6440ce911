package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler ignores nil checkers so optional dependencies can be
// passed unconditionally.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	kept := map[string]HealthChecker{}
	for name, check := range checks {
		if check != nil {
			kept[name] = check
		}
	}
	return &HealthHandler{checks: kept}
}

func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports each optional dependency. Any failure answers 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Health(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"success": false, "error": "Dependency unavailable", "data": results})
		return
	}
	writeSuccess(w, status, results, nil)
}
