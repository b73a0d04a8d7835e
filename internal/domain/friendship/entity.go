package friendship

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// RelationshipState is the stored state of a canonical pair. Absence of a
// row means the pair has no relationship at all.
type RelationshipState string

const (
	StateActive  RelationshipState = "active"
	StateBlocked RelationshipState = "blocked"
)

// RequestStatus tracks a friend request while it is live. Resolved requests
// are deleted once their outcome is folded into the relationship row, so a
// stale row can never block re-friending.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusDeclined  RequestStatus = "declined"
	StatusCancelled RequestStatus = "cancelled"
)

// Pair is an unordered user pair stored in canonical order (Low < High by
// byte comparison). Every lookup, uniqueness check and cleanup query keys on
// the canonical pair, so no query needs OR fan-out across both orderings.
type Pair struct {
	Low  uuid.UUID
	High uuid.UUID
}

// NewPair canonicalizes two user IDs into a Pair.
func NewPair(a, b uuid.UUID) Pair {
	if bytes.Compare(a[:], b[:]) < 0 {
		return Pair{Low: a, High: b}
	}
	return Pair{Low: b, High: a}
}

// Other returns the counterparty of id within the pair.
func (p Pair) Other(id uuid.UUID) uuid.UUID {
	if p.Low == id {
		return p.High
	}
	return p.Low
}

// Contains reports whether id is one side of the pair.
func (p Pair) Contains(id uuid.UUID) bool {
	return p.Low == id || p.High == id
}

// Relationship is the canonical friendship record for a pair.
// BlockerID is set only when State is blocked.
type Relationship struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	LowID     uuid.UUID         `db:"low_id" json:"low_id"`
	HighID    uuid.UUID         `db:"high_id" json:"high_id"`
	State     RelationshipState `db:"state" json:"state"`
	BlockerID *uuid.UUID        `db:"blocker_id" json:"blocker_id,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Pair returns the canonical pair of the relationship.
func (r *Relationship) Pair() Pair {
	return Pair{Low: r.LowID, High: r.HighID}
}

// BlockedBy reports whether userID is the blocker of this relationship.
func (r *Relationship) BlockedBy(userID uuid.UUID) bool {
	return r.State == StateBlocked && r.BlockerID != nil && *r.BlockerID == userID
}

// FriendRequest is a directional proposal from sender to receiver.
type FriendRequest struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	SenderID   uuid.UUID     `db:"sender_id" json:"sender_id"`
	ReceiverID uuid.UUID     `db:"receiver_id" json:"receiver_id"`
	Status     RequestStatus `db:"status" json:"status"`
	Message    string        `db:"message" json:"message,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// Pair returns the canonical pair of the request.
func (fr *FriendRequest) Pair() Pair {
	return NewPair(fr.SenderID, fr.ReceiverID)
}

// ActivityEntry is an append-only audit record of a transition. It exists
// for offline inspection and never participates in transition validation.
type ActivityEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Type      string    `db:"type" json:"type"`
	ActorID   uuid.UUID `db:"actor_id" json:"actor_id"`
	TargetID  uuid.UUID `db:"target_id" json:"target_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
