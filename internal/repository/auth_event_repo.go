package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mps-dashboard/internal/event"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type AuthEventRepository struct {
	pool *pgxpool.Pool
}

func NewAuthEventRepository(pool *pgxpool.Pool) *AuthEventRepository {
	return &AuthEventRepository{pool: pool}
}

func (r *AuthEventRepository) Insert(ctx context.Context, e event.Event) error {
	var payloadJSON []byte
	if len(e.Payload) > 0 {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_events (id, type, actor_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Type), e.ActorID, payloadJSON, occurredAt(e))
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

func (r *AuthEventRepository) Recent(ctx context.Context, actorID string, limit int) ([]event.Event, error) {
	limit = clampLimit(limit)

	rows, err := r.pool.Query(ctx,
		`SELECT id, type, actor_id, payload, occurred_at
		 FROM auth_events
		 WHERE actor_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, limit)
	for rows.Next() {
		var (
			e           event.Event
			typ         string
			payloadJSON []byte
			at          time.Time
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorID, &payloadJSON, &at); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}

		e.Type = event.Type(typ)
		e.Timestamp = at.UTC().Format(time.RFC3339Nano)
		if len(payloadJSON) > 0 {
			if jsonErr := json.Unmarshal(payloadJSON, &e.Payload); jsonErr != nil {
				e.Payload = nil
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

func occurredAt(e event.Event) time.Time {
	if at, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		return at.UTC()
	}
	return time.Now().UTC()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
