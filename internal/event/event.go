package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeSessionCreated     Type = "session.created"
	TypeSessionDestroyed   Type = "session.destroyed"
	TypeLoginFailed        Type = "login.failed"
	TypeTokenRefreshed     Type = "token.refreshed"
	TypeTokenRefreshFailed Type = "token.refresh_failed"
	TypeAuthExpired        Type = "auth.expired"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"` // user the event concerns, when known
}

func New(t Type, actorID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Publish tolerates a nil bus so components can run without one in tests.
func Publish(bus Bus, e Event) {
	if bus == nil {
		return
	}
	bus.Publish(e)
}
