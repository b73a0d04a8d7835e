package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type represents notification type
type Type string

const (
	TypeFriendRequest   Type = "friend_request"   // Receiver: new request
	TypeFriendAccepted  Type = "friend_accepted"  // Both: request accepted
	TypeFriendDeclined  Type = "friend_declined"  // Sender: request declined
	TypeFriendRemoved   Type = "friend_removed"   // Both: friendship removed
	TypeFriendBlocked   Type = "friend_blocked"   // Blocker only: block confirmed
	TypeFriendUnblocked Type = "friend_unblocked" // Blocker only: block lifted
)

// Notification represents a user inbox entry. Rows are written by the
// friendship engine inside its transactions; this package owns reading
// them and the read/unread state.
type Notification struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	UserID       uuid.UUID      `db:"user_id" json:"user_id"`
	SourceUserID uuid.UUID      `db:"source_user_id" json:"source_user_id"`
	Type         Type           `db:"type" json:"type"`
	Title        string         `db:"title" json:"title"`
	Body         sql.NullString `db:"body" json:"body,omitempty"`
	IsRead       bool           `db:"is_read" json:"is_read"`
	ReadAt       sql.NullTime   `db:"read_at" json:"read_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
