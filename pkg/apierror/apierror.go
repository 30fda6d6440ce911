package apierror

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	// AuthExpired tells clients to send the user back to the login page.
	AuthExpired bool `json:"authExpired,omitempty"`
}

var (
	ErrUnauthorized = &APIError{
		Code:        "UNAUTHORIZED",
		Message:     "Unauthorized",
		HTTPStatus:  http.StatusUnauthorized,
		AuthExpired: true,
	}
	ErrRefreshFailed = &APIError{
		Code:        "REFRESH_FAILED",
		Message:     "Token refresh failed",
		HTTPStatus:  http.StatusUnauthorized,
		AuthExpired: true,
	}
	ErrBackendUnavailable = &APIError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "Backend unavailable",
		HTTPStatus: http.StatusInternalServerError,
	}
)

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func BadRequest(message string, details string) *APIError {
	return New("BAD_REQUEST", message, details, http.StatusBadRequest)
}
