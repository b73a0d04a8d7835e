package friendship

import (
	"context"

	"github.com/google/uuid"
)

// RelationshipStatus is the caller-relative view of a pair used by the
// status endpoint.
type RelationshipStatus string

const (
	StatusViewNone            RelationshipStatus = "none"
	StatusViewFriends         RelationshipStatus = "friends"
	StatusViewPendingIncoming RelationshipStatus = "pending_incoming"
	StatusViewPendingOutgoing RelationshipStatus = "pending_outgoing"
	StatusViewBlockedByMe     RelationshipStatus = "blocked_by_me"
	StatusViewBlockedMe       RelationshipStatus = "blocked_me"
)

// StatusView bundles the relative status with the pending request, when one
// is what the status refers to.
type StatusView struct {
	Status  RelationshipStatus
	Request *FriendRequest
}

// ListFriends returns the user's active relationships.
func (s *Service) ListFriends(ctx context.Context, userID uuid.UUID) ([]*Relationship, error) {
	return s.store.ListFriends(ctx, userID)
}

// ListIncomingRequests returns pending requests addressed to the user.
func (s *Service) ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	return s.store.ListIncomingRequests(ctx, userID)
}

// ListOutgoingRequests returns pending requests the user has sent.
func (s *Service) ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	return s.store.ListOutgoingRequests(ctx, userID)
}

// ListBlocked returns relationships the user has blocked.
func (s *Service) ListBlocked(ctx context.Context, userID uuid.UUID) ([]*Relationship, error) {
	return s.store.ListBlocked(ctx, userID)
}

// GetStatus resolves the caller-relative status toward another user.
func (s *Service) GetStatus(ctx context.Context, userID, otherID uuid.UUID) (*StatusView, error) {
	if userID == otherID {
		return nil, ErrSelfTarget
	}
	pair := NewPair(userID, otherID)

	rel, err := s.store.GetRelationship(ctx, pair)
	if err != nil {
		return nil, err
	}
	if rel != nil {
		switch {
		case rel.State == StateActive:
			return &StatusView{Status: StatusViewFriends}, nil
		case rel.BlockedBy(userID):
			return &StatusView{Status: StatusViewBlockedByMe}, nil
		default:
			return &StatusView{Status: StatusViewBlockedMe}, nil
		}
	}

	pending, err := s.store.GetPendingBetween(ctx, pair)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return &StatusView{Status: StatusViewNone}, nil
	}
	if pending.ReceiverID == userID {
		return &StatusView{Status: StatusViewPendingIncoming, Request: pending}, nil
	}
	return &StatusView{Status: StatusViewPendingOutgoing, Request: pending}, nil
}
