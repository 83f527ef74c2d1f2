package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSessionOpened          EventType = "session.opened"
	EventSessionExtended        EventType = "session.extended"
	EventSessionSubmitted       EventType = "session.submitted"
	EventSessionOverdue         EventType = "session.overdue"
	EventRecordRecorded         EventType = "record.recorded"
	EventSpotRegistration       EventType = "registration.spot"
	EventClubCoordinatorAdded   EventType = "club.coordinator_added"
	EventClubCoordinatorRemoved EventType = "club.coordinator_removed"
)

// DomainEvent is emitted by the service after its transaction commits.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    int64          `json:"actor_id,omitempty"`
	EventID    int64          `json:"event_id,omitempty"`
	SessionID  int64          `json:"session_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func newDomainEvent(eventType EventType, now time.Time, actorID int64) DomainEvent {
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now,
		ActorID:    actorID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...DomainEvent) error { return nil }
