package friendship

import (
	"context"

	"github.com/google/uuid"
)

// NotificationSeed is the inbox row the engine creates as part of a
// transition transaction. The notification domain owns everything after
// creation (read state, listing, retention).
type NotificationSeed struct {
	UserID       uuid.UUID
	SourceUserID uuid.UUID
	Type         string
	Title        string
	Body         string
}

// Tx is the transaction-scoped store surface. Every method runs against the
// transaction it was obtained from; no business logic lives behind it.
type Tx interface {
	// AcquirePairLock takes a transaction-scoped advisory lock on the
	// canonical pair. Row locks only serialize writers once a relationship
	// row exists; this closes the window where two writers race on a pair
	// with no row yet, such as opposite-direction sends.
	AcquirePairLock(ctx context.Context, pair Pair) error

	// GetRelationshipForUpdate locks and returns the relationship row for
	// the pair, or nil when absent. The row lock serializes concurrent
	// transitions on the same pair.
	GetRelationshipForUpdate(ctx context.Context, pair Pair) (*Relationship, error)

	// GetPendingRequestBetween returns the pending request between the pair
	// in either direction, or nil.
	GetPendingRequestBetween(ctx context.Context, pair Pair) (*FriendRequest, error)

	// GetRequestForUpdate locks and returns the request row, or nil.
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*FriendRequest, error)

	// InsertRequest inserts a pending request. A unique-constraint violation
	// on the pending index is returned as ErrConflict.
	InsertRequest(ctx context.Context, req *FriendRequest) error

	DeleteRequest(ctx context.Context, id uuid.UUID) error

	// DeleteRequestsForPair removes every request between the pair
	// regardless of status and returns the number of rows deleted.
	DeleteRequestsForPair(ctx context.Context, pair Pair) (int64, error)

	// UpsertRelationship inserts or replaces the relationship row for its
	// canonical pair. A concurrent insert for the same pair is returned as
	// ErrConflict.
	UpsertRelationship(ctx context.Context, rel *Relationship) error

	// DeleteRelationship removes the pair's row, reporting whether one existed.
	DeleteRelationship(ctx context.Context, pair Pair) (bool, error)

	// DeleteNotificationsForPair removes inbox rows of the given types where
	// both the recipient and the source user belong to the pair.
	DeleteNotificationsForPair(ctx context.Context, pair Pair, types []string) (int64, error)

	// DeleteConversationPreviews removes the durable preview row for the pair.
	DeleteConversationPreviews(ctx context.Context, pair Pair) error

	InsertNotification(ctx context.Context, seed NotificationSeed) error
	InsertActivity(ctx context.Context, entry *ActivityEntry) error
}

// Store opens transactions for the consistency engine and answers the
// read-only queries the HTTP surface needs.
type Store interface {
	// InTx runs fn inside a single database transaction, committing when fn
	// returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetRelationship(ctx context.Context, pair Pair) (*Relationship, error)
	GetPendingBetween(ctx context.Context, pair Pair) (*FriendRequest, error)
	ListFriends(ctx context.Context, userID uuid.UUID) ([]*Relationship, error)
	ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error)
	ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error)
	ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]*Relationship, error)
}
