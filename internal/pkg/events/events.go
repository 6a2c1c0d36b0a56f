// Package events is the in-process domain event bus feeding gamification.
// Publish never blocks the write path: handlers run on the publisher's
// goroutine and are expected to be fast; slow work belongs behind the
// handler's own queue.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types. This vocabulary is closed; gamification rules key off it.
const (
	TaskCompleted    = "task.completed"
	GoalCompleted    = "goal.completed"
	QuestCompleted   = "quest.completed"
	MilestoneReached = "milestone.reached"
	CommentPosted    = "comment.posted"
)

// Event is one domain occurrence. ID deduplicates replays downstream.
type Event struct {
	ID        string
	Type      string
	UserID    string
	EntityID  string
	Threshold string // milestone.reached only
	At        time.Time
}

// New builds an event with a fresh id.
func New(eventType, userID, entityID string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		UserID:   userID,
		EntityID: entityID,
		At:       time.Now().UTC(),
	}
}

// Handler consumes one event. Errors are logged, never propagated to the
// publisher.
type Handler func(ctx context.Context, ev Event) error

// Bus fans events out to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger.Named("Events")}
}

// Subscribe registers a handler for every event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to all subscribers.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("type", ev.Type),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
}
