package friendship

import "github.com/google/uuid"

// PairState is a snapshot of everything the validator needs to judge a
// transition: the relationship row (nil when absent) and any pending request
// between the pair, in either direction (nil when absent).
type PairState struct {
	Relationship *Relationship
	Pending      *FriendRequest
}

// ValidateSendRequest decides whether actor may open a new request to target.
func ValidateSendRequest(state PairState, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	if rel := state.Relationship; rel != nil {
		switch rel.State {
		case StateActive:
			return ErrAlreadyFriends
		case StateBlocked:
			return ErrBlocked
		}
	}
	if state.Pending != nil {
		// A pending request in either direction blocks a new one.
		return ErrRequestExists
	}
	return nil
}

// ValidateAccept decides whether actor may accept the pending request.
// Only the receiver may accept.
func ValidateAccept(req *FriendRequest, actorID uuid.UUID) error {
	if req == nil || req.Status != StatusPending {
		return ErrNoSuchRequest
	}
	if req.ReceiverID != actorID {
		return ErrNotAuthorized
	}
	return nil
}

// ValidateDecline decides whether actor may decline the pending request.
// Only the receiver may decline.
func ValidateDecline(req *FriendRequest, actorID uuid.UUID) error {
	if req == nil || req.Status != StatusPending {
		return ErrNoSuchRequest
	}
	if req.ReceiverID != actorID {
		return ErrNotAuthorized
	}
	return nil
}

// ValidateCancel decides whether actor may cancel the pending request.
// Only the sender may cancel.
func ValidateCancel(req *FriendRequest, actorID uuid.UUID) error {
	if req == nil || req.Status != StatusPending {
		return ErrNoSuchRequest
	}
	if req.SenderID != actorID {
		return ErrNotAuthorized
	}
	return nil
}

// ValidateRemove decides whether actor may unfriend target. Removal is
// symmetric and idempotent, so an absent relationship is allowed; a blocked
// relationship is not removable through unfriending.
func ValidateRemove(state PairState, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	if rel := state.Relationship; rel != nil && rel.State == StateBlocked {
		return ErrBlocked
	}
	return nil
}

// ValidateBlock decides whether blocker may block target. Blocking wins over
// any other state; the only rejections are self-targeting and an already
// existing block by the other side (their block stands, and stacking a
// second directional block on the same row is not representable).
func ValidateBlock(state PairState, blockerID, targetID uuid.UUID) error {
	if blockerID == targetID {
		return ErrSelfTarget
	}
	if rel := state.Relationship; rel != nil && rel.State == StateBlocked && !rel.BlockedBy(blockerID) {
		return ErrBlocked
	}
	return nil
}

// ValidateUnblock decides whether actor may lift a block. Only the blocker
// may unblock. Unblocking when no block exists is an idempotent no-op and
// is reported via the returned bool instead of an error.
func ValidateUnblock(state PairState, actorID uuid.UUID) (blocked bool, err error) {
	rel := state.Relationship
	if rel == nil || rel.State != StateBlocked {
		return false, nil
	}
	if !rel.BlockedBy(actorID) {
		return true, ErrNotAuthorized
	}
	return true, nil
}
