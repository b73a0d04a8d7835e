package friendship

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// notificationTypes are the inbox row types derived from pair transitions.
// Pair-scoped cleanup removes exactly these.
var notificationTypes = []string{
	string(EventFriendRequest),
	string(EventFriendAccepted),
	string(EventFriendDeclined),
	string(EventFriendRemoved),
	string(EventFriendBlocked),
}

// Service is the consistency engine. It is the sole writer of relationship
// and friend-request rows: every transition is validated, applied in one
// transaction together with its derived side effects, and followed by a
// single post-commit domain event.
type Service struct {
	store    Store
	events   Publisher
	previews PreviewInvalidator
}

// NewService creates the consistency engine. events and previews may be nil.
func NewService(store Store, events Publisher, previews PreviewInvalidator) *Service {
	return &Service{store: store, events: events, previews: previews}
}

// SendRequest opens a pending friend request from sender to receiver and
// writes the receiver's inbox notification in the same transaction.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID uuid.UUID, message string) (uuid.UUID, error) {
	pair := NewPair(senderID, receiverID)
	req := &FriendRequest{}

	err := s.inTxWithRetry(ctx, func(tx Tx) error {
		if err := tx.AcquirePairLock(ctx, pair); err != nil {
			return err
		}
		rel, err := tx.GetRelationshipForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		pending, err := tx.GetPendingRequestBetween(ctx, pair)
		if err != nil {
			return err
		}
		if err := ValidateSendRequest(PairState{Relationship: rel, Pending: pending}, senderID, receiverID); err != nil {
			return err
		}

		now := time.Now()
		*req = FriendRequest{
			ID:         uuid.New(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     StatusPending,
			Message:    message,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertRequest(ctx, req); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, NotificationSeed{
			UserID:       receiverID,
			SourceUserID: senderID,
			Type:         string(EventFriendRequest),
			Title:        "New friend request",
			Body:         message,
		}); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendRequest, senderID, receiverID))
	})
	if err != nil {
		// A persistent unique-violation means another writer won the race;
		// to the caller that is indistinguishable from an existing request.
		if errors.Is(err, ErrConflict) {
			return uuid.Nil, ErrRequestExists
		}
		return uuid.Nil, err
	}

	s.publish(ctx, Event{
		Type:           EventFriendRequest,
		SubjectID:      senderID,
		CounterpartyID: receiverID,
		RequestID:      &req.ID,
		Message:        message,
		OccurredAt:     time.Now(),
	})
	return req.ID, nil
}

// AcceptRequest resolves a pending request into an active relationship.
// Only the receiver may accept. A resolved or deleted request is an error,
// not a silent success, so callers can detect races.
func (s *Service) AcceptRequest(ctx context.Context, requestID, actingUserID uuid.UUID) (uuid.UUID, error) {
	var (
		rel      Relationship
		senderID uuid.UUID
	)

	err := s.store.InTx(ctx, func(tx Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := ValidateAccept(req, actingUserID); err != nil {
			return err
		}
		senderID = req.SenderID
		pair := req.Pair()

		if err := tx.DeleteRequest(ctx, req.ID); err != nil {
			return err
		}

		now := time.Now()
		rel = Relationship{
			ID:        uuid.New(),
			LowID:     pair.Low,
			HighID:    pair.High,
			State:     StateActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertRelationship(ctx, &rel); err != nil {
			return err
		}

		for _, seed := range []NotificationSeed{
			{UserID: req.SenderID, SourceUserID: req.ReceiverID, Type: string(EventFriendAccepted), Title: "Friend request accepted"},
			{UserID: req.ReceiverID, SourceUserID: req.SenderID, Type: string(EventFriendAccepted), Title: "You are now friends"},
		} {
			if err := tx.InsertNotification(ctx, seed); err != nil {
				return err
			}
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendAccepted, actingUserID, senderID))
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.publish(ctx, Event{
		Type:           EventFriendAccepted,
		SubjectID:      actingUserID,
		CounterpartyID: senderID,
		RequestID:      &requestID,
		RelationshipID: &rel.ID,
		OccurredAt:     time.Now(),
	})
	return rel.ID, nil
}

// DeclineRequest deletes a pending request without creating a relationship.
// Only the receiver may decline. The sender gets a soft notification.
func (s *Service) DeclineRequest(ctx context.Context, requestID, actingUserID uuid.UUID) error {
	var senderID uuid.UUID

	err := s.store.InTx(ctx, func(tx Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := ValidateDecline(req, actingUserID); err != nil {
			return err
		}
		senderID = req.SenderID

		if err := tx.DeleteRequest(ctx, req.ID); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, NotificationSeed{
			UserID:       req.SenderID,
			SourceUserID: req.ReceiverID,
			Type:         string(EventFriendDeclined),
			Title:        "Friend request declined",
		}); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendDeclined, actingUserID, senderID))
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{
		Type:           EventFriendDeclined,
		SubjectID:      actingUserID,
		CounterpartyID: senderID,
		RequestID:      &requestID,
		OccurredAt:     time.Now(),
	})
	return nil
}

// CancelRequest deletes a pending request on behalf of its sender. The
// receiver is not notified and no event is emitted.
func (s *Service) CancelRequest(ctx context.Context, requestID, actingUserID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := ValidateCancel(req, actingUserID); err != nil {
			return err
		}
		if err := tx.DeleteRequest(ctx, req.ID); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, newActivity("friend_request_cancelled", actingUserID, req.ReceiverID))
	})
}

// RemoveFriend unfriends the pair: the relationship row, every request
// between the pair regardless of status, derived notifications and the
// conversation preview all go in one transaction. Removing a non-existent
// friendship is a no-op success so client double-submits stay safe.
func (s *Service) RemoveFriend(ctx context.Context, actorID, targetID uuid.UUID) error {
	pair := NewPair(actorID, targetID)
	var removed bool

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.AcquirePairLock(ctx, pair); err != nil {
			return err
		}
		rel, err := tx.GetRelationshipForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		if err := ValidateRemove(PairState{Relationship: rel}, actorID, targetID); err != nil {
			return err
		}

		removed, err = tx.DeleteRelationship(ctx, pair)
		if err != nil {
			return err
		}
		if err := s.cleanupPair(ctx, tx, pair); err != nil {
			return err
		}
		if !removed {
			return nil
		}

		for _, seed := range []NotificationSeed{
			{UserID: actorID, SourceUserID: targetID, Type: string(EventFriendRemoved), Title: "Friend removed"},
			{UserID: targetID, SourceUserID: actorID, Type: string(EventFriendRemoved), Title: "Friend removed"},
		} {
			if err := tx.InsertNotification(ctx, seed); err != nil {
				return err
			}
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendRemoved, actorID, targetID))
	})
	if err != nil {
		return err
	}

	s.invalidatePreviews(ctx, pair)
	if removed {
		s.publish(ctx, Event{
			Type:           EventFriendRemoved,
			SubjectID:      actorID,
			CounterpartyID: targetID,
			OccurredAt:     time.Now(),
		})
	}
	return nil
}

// BlockUser performs the full unfriend cleanup and then writes the blocked
// relationship. Blocking always wins over any other state.
func (s *Service) BlockUser(ctx context.Context, blockerID, blockedID uuid.UUID, reason string) error {
	pair := NewPair(blockerID, blockedID)

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.AcquirePairLock(ctx, pair); err != nil {
			return err
		}
		rel, err := tx.GetRelationshipForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		if err := ValidateBlock(PairState{Relationship: rel}, blockerID, blockedID); err != nil {
			return err
		}

		if _, err := tx.DeleteRelationship(ctx, pair); err != nil {
			return err
		}
		if err := s.cleanupPair(ctx, tx, pair); err != nil {
			return err
		}

		now := time.Now()
		blocked := Relationship{
			ID:        uuid.New(),
			LowID:     pair.Low,
			HighID:    pair.High,
			State:     StateBlocked,
			BlockerID: &blockerID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertRelationship(ctx, &blocked); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, NotificationSeed{
			UserID:       blockerID,
			SourceUserID: blockedID,
			Type:         string(EventFriendBlocked),
			Title:        "User blocked",
			Body:         reason,
		}); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendBlocked, blockerID, blockedID))
	})
	if err != nil {
		return err
	}

	s.invalidatePreviews(ctx, pair)
	s.publish(ctx, Event{
		Type:           EventFriendBlocked,
		SubjectID:      blockerID,
		CounterpartyID: blockedID,
		Reason:         reason,
		OccurredAt:     time.Now(),
	})
	return nil
}

// UnblockUser deletes the blocked relationship, returning the pair to no
// relationship at all. It never recreates a prior friendship. Unblocking a
// pair that is not blocked is a no-op success.
func (s *Service) UnblockUser(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	pair := NewPair(blockerID, blockedID)
	var unblocked bool

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.AcquirePairLock(ctx, pair); err != nil {
			return err
		}
		rel, err := tx.GetRelationshipForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		blocked, err := ValidateUnblock(PairState{Relationship: rel}, blockerID)
		if err != nil {
			return err
		}
		if !blocked {
			return nil
		}

		unblocked, err = tx.DeleteRelationship(ctx, pair)
		if err != nil {
			return err
		}
		return tx.InsertActivity(ctx, newActivity(EventFriendUnblocked, blockerID, blockedID))
	})
	if err != nil {
		return err
	}

	if unblocked {
		s.publish(ctx, Event{
			Type:           EventFriendUnblocked,
			SubjectID:      blockerID,
			CounterpartyID: blockedID,
			OccurredAt:     time.Now(),
		})
	}
	return nil
}

// cleanupPair erases every derived record between the pair: all requests
// regardless of status, pair-scoped notifications and the durable
// conversation preview. This is the fix for re-friending being blocked by
// stale resolved requests.
func (s *Service) cleanupPair(ctx context.Context, tx Tx, pair Pair) error {
	if _, err := tx.DeleteRequestsForPair(ctx, pair); err != nil {
		return err
	}
	if _, err := tx.DeleteNotificationsForPair(ctx, pair, notificationTypes); err != nil {
		return err
	}
	return tx.DeleteConversationPreviews(ctx, pair)
}

// inTxWithRetry runs fn in a transaction, retrying exactly once when another
// writer won a unique-constraint race.
func (s *Service) inTxWithRetry(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if errors.Is(err, ErrConflict) {
		log.Debug().Msg("retrying transition after write conflict")
		err = s.store.InTx(ctx, fn)
	}
	return err
}

// publish hands the event to the dispatcher without blocking the caller.
// Notification delivery is fire-and-forget after commit; a slow fan-out must
// never hold a relationship-row lock.
func (s *Service) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(context.WithoutCancel(ctx), event)
}

func (s *Service) invalidatePreviews(ctx context.Context, pair Pair) {
	if s.previews == nil {
		return
	}
	if err := s.previews.InvalidatePair(ctx, pair); err != nil {
		log.Warn().Err(err).
			Str("low_id", pair.Low.String()).
			Str("high_id", pair.High.String()).
			Msg("failed to invalidate conversation preview cache")
	}
}

func newActivity(eventType EventType, actorID, targetID uuid.UUID) *ActivityEntry {
	return &ActivityEntry{
		ID:        uuid.New(),
		Type:      string(eventType),
		ActorID:   actorID,
		TargetID:  targetID,
		CreatedAt: time.Now(),
	}
}
