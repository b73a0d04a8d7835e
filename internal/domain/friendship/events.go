package friendship

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the transition an event describes.
type EventType string

const (
	EventFriendRequest   EventType = "friend_request"
	EventFriendAccepted  EventType = "friend_accepted"
	EventFriendDeclined  EventType = "friend_declined"
	EventFriendRemoved   EventType = "friend_removed"
	EventFriendBlocked   EventType = "friend_blocked"
	EventFriendUnblocked EventType = "friend_unblocked"
)

// Event is the domain event emitted once per successful mutating operation,
// after the transaction commits. Delivery channel is the dispatcher's
// concern; the engine never blocks on it.
type Event struct {
	Type           EventType  `json:"type"`
	SubjectID      uuid.UUID  `json:"subject_user_id"`
	CounterpartyID uuid.UUID  `json:"counterparty_user_id"`
	RequestID      *uuid.UUID `json:"request_id,omitempty"`
	RelationshipID *uuid.UUID `json:"relationship_id,omitempty"`
	Message        string     `json:"message,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Publisher receives domain events. Implementations must not block the
// calling goroutine on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PreviewInvalidator drops cached conversation previews for a pair after a
// transition that destroys the relationship.
type PreviewInvalidator interface {
	InvalidatePair(ctx context.Context, pair Pair) error
}
