package authcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoCredentials means neither an access nor a refresh token was
	// available. No backend call was made.
	ErrNoCredentials = errors.New("no credentials")

	// ErrAuthExpired marks every failure the user can only recover from by
	// logging in again. Cookies are cleared before it is returned.
	ErrAuthExpired = errors.New("authentication expired")

	ErrUnauthorized  = fmt.Errorf("unauthorized: %w", ErrAuthExpired)
	ErrRefreshFailed = fmt.Errorf("token refresh failed: %w", ErrAuthExpired)

	// ErrTransport wraps connection failures and timeouts talking to the backend.
	ErrTransport = errors.New("backend unavailable")
)

// BackendError is a non-2xx backend answer passed through verbatim.
type BackendError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend responded %d", e.StatusCode)
}

// ContentType returns the backend's content type, defaulting to JSON.
func (e *BackendError) ContentType() string {
	if ct := e.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/json"
}

// IsAuthExpired reports whether err requires a fresh login.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNoCredentials)
}

// Message extracts a human readable message from a backend error body,
// falling back to the given string.
func Message(err error, fallback string) string {
	var be *BackendError
	if !errors.As(err, &be) {
		return fallback
	}

	for _, key := range []string{"message", "error"} {
		if msg := lookupString(be.Body, key); msg != "" {
			return msg
		}
	}
	return fallback
}

func lookupString(body []byte, key string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}
