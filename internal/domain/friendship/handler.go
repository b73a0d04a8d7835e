package friendship

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/circlehq/circle-api/internal/middleware"
	"github.com/circlehq/circle-api/internal/pkg/response"
	"github.com/circlehq/circle-api/internal/pkg/validator"
)

// Presence answers which of the given users are currently connected.
type Presence interface {
	GetOnlineUsers(userIDs []uuid.UUID) []uuid.UUID
}

// Handler handles friendship HTTP requests.
type Handler struct {
	service  *Service
	presence Presence
}

// NewHandler creates friendship handler. presence may be nil, in which case
// the online endpoint reports nobody online.
func NewHandler(service *Service, presence Presence) *Handler {
	return &Handler{service: service, presence: presence}
}

// SendRequest handles POST /friends/requests
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var body SendRequestBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if fieldErrors := validator.Validate(body); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	userID := middleware.GetUserID(r.Context())
	requestID, err := h.service.SendRequest(r.Context(), userID, body.ReceiverID, body.Message)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.Created(w, map[string]uuid.UUID{"request_id": requestID})
}

// Accept handles POST /friends/requests/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	relationshipID, err := h.service.AcceptRequest(r.Context(), requestID, userID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]uuid.UUID{"relationship_id": relationshipID})
}

// Decline handles POST /friends/requests/{id}/decline
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.DeclineRequest(r.Context(), requestID, userID); err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// Cancel handles DELETE /friends/requests/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.CancelRequest(r.Context(), requestID, userID); err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// Remove handles DELETE /friends/{id}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.RemoveFriend(r.Context(), userID, targetID); err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// Block handles POST /users/{id}/block
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var body BlockUserBody
	if r.ContentLength > 0 {
		if err := response.DecodeJSON(r.Body, &body); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
		if fieldErrors := validator.Validate(body); fieldErrors != nil {
			response.ValidationError(w, fieldErrors)
			return
		}
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.BlockUser(r.Context(), userID, targetID, body.Reason); err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// Unblock handles DELETE /users/{id}/block
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.UnblockUser(r.Context(), userID, targetID); err != nil {
		h.writeTransitionError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// ListFriends handles GET /friends
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rels, err := h.service.ListFriends(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	items := make([]*FriendResponse, len(rels))
	for i, rel := range rels {
		items[i] = FriendResponseFromEntity(rel, userID)
	}
	response.OK(w, items)
}

// ListOnline handles GET /friends/online
func (h *Handler) ListOnline(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rels, err := h.service.ListFriends(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	friendIDs := make([]uuid.UUID, len(rels))
	for i, rel := range rels {
		friendIDs[i] = rel.Pair().Other(userID)
	}

	online := []uuid.UUID{}
	if h.presence != nil {
		online = h.presence.GetOnlineUsers(friendIDs)
	}
	response.OK(w, map[string][]uuid.UUID{"online": online})
}

// ListIncoming handles GET /friends/requests/incoming
func (h *Handler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	reqs, err := h.service.ListIncomingRequests(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, requestResponses(reqs))
}

// ListOutgoing handles GET /friends/requests/outgoing
func (h *Handler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	reqs, err := h.service.ListOutgoingRequests(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, requestResponses(reqs))
}

// ListBlocked handles GET /users/me/blocked
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rels, err := h.service.ListBlocked(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	items := make([]*BlockedUserResponse, len(rels))
	for i, rel := range rels {
		items[i] = &BlockedUserResponse{
			UserID:    rel.Pair().Other(userID),
			BlockedAt: rel.UpdatedAt.Format(time.RFC3339),
		}
	}
	response.OK(w, items)
}

// GetStatus handles GET /friends/status/{id}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	otherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	userID := middleware.GetUserID(r.Context())
	view, err := h.service.GetStatus(r.Context(), userID, otherID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	resp := &StatusResponse{Status: string(view.Status)}
	if view.Request != nil {
		resp.RequestID = &view.Request.ID
		resp.Request = RequestResponseFromEntity(view.Request)
	}
	response.OK(w, resp)
}

// writeTransitionError maps engine errors onto HTTP responses. Storage
// failures become an opaque 500.
func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	code := ReasonCode(err)
	switch {
	case errors.Is(err, ErrSelfTarget):
		response.Error(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, ErrAlreadyFriends), errors.Is(err, ErrRequestExists):
		response.Error(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrNotAuthorized):
		response.Error(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, ErrNoSuchRequest), errors.Is(err, ErrNoSuchRelationship):
		response.Error(w, http.StatusNotFound, code, err.Error())
	default:
		response.InternalError(w)
	}
}

func requestResponses(reqs []*FriendRequest) []*RequestResponse {
	items := make([]*RequestResponse, len(reqs))
	for i, req := range reqs {
		items[i] = RequestResponseFromEntity(req)
	}
	return items
}
