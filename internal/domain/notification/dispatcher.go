package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/circlehq/circle-api/internal/domain/friendship"
)

// UserSender pushes a payload to every live connection of one user.
type UserSender interface {
	SendToUserJSON(userID uuid.UUID, payload any) error
}

// Dispatcher fans friendship domain events out to live websocket clients.
// The inbox rows themselves are written by the engine before the event
// fires; this is the realtime layer on top.
type Dispatcher struct {
	sender UserSender
	repo   Repository
}

// NewDispatcher creates the realtime event dispatcher.
func NewDispatcher(sender UserSender, repo Repository) *Dispatcher {
	return &Dispatcher{sender: sender, repo: repo}
}

// Publish implements friendship.Publisher. Push failures are logged and
// swallowed; offline users catch up from the inbox.
func (d *Dispatcher) Publish(ctx context.Context, event friendship.Event) {
	for _, userID := range recipients(event) {
		d.pushToUser(ctx, userID, event)
	}
}

// recipients returns the users whose clients should hear about the event.
// Block and unblock stay private to the actor; declines reach the original
// sender; the rest go to both sides.
func recipients(event friendship.Event) []uuid.UUID {
	switch event.Type {
	case friendship.EventFriendRequest:
		return []uuid.UUID{event.CounterpartyID}
	case friendship.EventFriendDeclined:
		return []uuid.UUID{event.CounterpartyID}
	case friendship.EventFriendBlocked, friendship.EventFriendUnblocked:
		return []uuid.UUID{event.SubjectID}
	case friendship.EventFriendAccepted, friendship.EventFriendRemoved:
		return []uuid.UUID{event.SubjectID, event.CounterpartyID}
	}
	return nil
}

func (d *Dispatcher) pushToUser(ctx context.Context, userID uuid.UUID, event friendship.Event) {
	if d == nil || d.sender == nil {
		return
	}

	payload := map[string]any{
		"type": "friend:event",
		"data": map[string]any{
			"event": event,
		},
	}
	if d.repo != nil {
		if count, err := d.repo.CountUnreadByUser(ctx, userID); err == nil {
			payload["data"].(map[string]any)["unread_count"] = count
		}
	}

	if err := d.sender.SendToUserJSON(userID, payload); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID.String()).
			Str("event", string(event.Type)).
			Msg("Failed to push friend event")
	}
}
