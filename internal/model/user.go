package model

import (
	"time"

	"mps-dashboard/internal/session"
)

// SessionView is what the browser learns about its own session.
type SessionView struct {
	User      session.Record `json:"user"`
	ExpiresAt time.Time      `json:"expiresAt"`
}
