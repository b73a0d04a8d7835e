package friendship

import (
	"time"

	"github.com/google/uuid"
)

// SendRequestBody for POST /friends/requests
type SendRequestBody struct {
	ReceiverID uuid.UUID `json:"receiver_id" validate:"required"`
	Message    string    `json:"message" validate:"max=500"`
}

// BlockUserBody for POST /users/{id}/block
type BlockUserBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

// FriendResponse represents one side of an active relationship in API output.
type FriendResponse struct {
	RelationshipID uuid.UUID `json:"relationship_id"`
	UserID         uuid.UUID `json:"user_id"`
	FriendsSince   string    `json:"friends_since"`
}

// FriendResponseFromEntity converts a relationship to the viewer's friend entry.
func FriendResponseFromEntity(rel *Relationship, viewerID uuid.UUID) *FriendResponse {
	return &FriendResponse{
		RelationshipID: rel.ID,
		UserID:         rel.Pair().Other(viewerID),
		FriendsSince:   rel.CreatedAt.Format(time.RFC3339),
	}
}

// RequestResponse represents a friend request in API output.
type RequestResponse struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

// RequestResponseFromEntity converts a request entity to API output.
func RequestResponseFromEntity(req *FriendRequest) *RequestResponse {
	return &RequestResponse{
		ID:         req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Message:    req.Message,
		CreatedAt:  req.CreatedAt.Format(time.RFC3339),
	}
}

// BlockedUserResponse represents a blocked user in API output.
type BlockedUserResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	BlockedAt string    `json:"blocked_at"`
}

// StatusResponse for GET /friends/status/{id}
type StatusResponse struct {
	Status    string           `json:"status"`
	RequestID *uuid.UUID       `json:"request_id,omitempty"`
	Request   *RequestResponse `json:"request,omitempty"`
}
