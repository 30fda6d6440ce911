package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/model"
	"mps-dashboard/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	writeJSON(w, status, model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP. Backend errors are passed
// through untouched; auth expiry always carries the authExpired marker.
func writeError(w http.ResponseWriter, err error) {
	apiErr := classify(err)
	if apiErr == nil {
		var be *authcall.BackendError
		if errors.As(err, &be) {
			writeBackendError(w, be)
			return
		}

		slog.Error("unhandled error in writeError", "error", err.Error())
		apiErr = apierror.New("INTERNAL_ERROR", "Unexpected server error", "", http.StatusInternalServerError)
	}

	writeJSON(w, apiErr.HTTPStatus, model.APIResponse{
		Success:     false,
		Error:       apiErr.Message,
		Code:        apiErr.Code,
		Details:     apiErr.Details,
		AuthExpired: apiErr.AuthExpired,
	})
}

func classify(err error) *apierror.APIError {
	var apiErr *apierror.APIError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, backend.ErrInvalidCredentials):
		return apierror.New("INVALID_CREDENTIALS", authcall.Message(err, "Invalid credentials"), "", http.StatusUnauthorized)
	case errors.Is(err, authcall.ErrRefreshFailed):
		return apierror.ErrRefreshFailed
	case authcall.IsAuthExpired(err):
		return apierror.ErrUnauthorized
	case errors.Is(err, authcall.ErrTransport):
		return apierror.ErrBackendUnavailable
	case errors.Is(err, model.ErrInvalidInput):
		return apierror.BadRequest("Invalid input", err.Error())
	default:
		return nil
	}
}

func writeBackendError(w http.ResponseWriter, be *authcall.BackendError) {
	w.Header().Set("Content-Type", be.ContentType())
	w.WriteHeader(be.StatusCode)
	_, _ = w.Write(be.Body)
}
