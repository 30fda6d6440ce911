package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mps-dashboard/internal/event"
	"mps-dashboard/pkg/apierror"
)

const persistTimeout = 5 * time.Second

// EventStore persists auth events. Implemented by the pgx repository and
// by the in-memory fallback.
type EventStore interface {
	Insert(ctx context.Context, e event.Event) error
	Recent(ctx context.Context, actorID string, limit int) ([]event.Event, error)
}

// AuditService drains the event bus into the log and the store.
type AuditService struct {
	store  EventStore
	logger *slog.Logger

	unsubscribe func()
	done        chan struct{}
	once        sync.Once
}

func NewAuditService(store EventStore, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{store: store, logger: logger, done: make(chan struct{})}
}

// Start subscribes to bus and consumes events until Stop is called.
func (s *AuditService) Start(bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	s.unsubscribe = unsubscribe

	go func() {
		defer close(s.done)
		for e := range events {
			s.Record(e)
		}
	}()
}

// Stop unsubscribes and waits for queued events to be written.
func (s *AuditService) Stop() {
	s.once.Do(func() {
		if s.unsubscribe == nil {
			close(s.done)
			return
		}
		s.unsubscribe()
		<-s.done
	})
}

func (s *AuditService) Record(e event.Event) {
	level := slog.LevelInfo
	switch e.Type {
	case event.TypeTokenRefreshed:
		level = slog.LevelDebug
	case event.TypeTokenRefreshFailed, event.TypeLoginFailed:
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "auth event", "type", string(e.Type), "actor_id", e.ActorID, "event_id", e.ID)

	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Insert(ctx, e); err != nil {
		s.logger.Error("persist auth event failed", "type", string(e.Type), "error", err)
	}
}

func (s *AuditService) Recent(ctx context.Context, actorID string, limit int) ([]event.Event, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, apierror.ErrUnauthorized
	}
	if s.store == nil {
		return []event.Event{}, nil
	}

	events, err := s.store.Recent(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}
