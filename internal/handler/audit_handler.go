package handler

import (
	"net/http"
	"strconv"
	"strings"

	"mps-dashboard/internal/middleware"
	"mps-dashboard/internal/model"
	"mps-dashboard/internal/service"
	"mps-dashboard/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List returns the caller's own recent auth events.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	record, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apierror.ErrUnauthorized)
		return
	}

	limit := min(parseIntOrDefault(r.URL.Query().Get("limit"), 20), 100)

	events, err := h.service.Recent(r.Context(), record.UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, events, &model.Meta{Limit: limit, Total: len(events)})
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
