package friendship

import "errors"

// Transition rejections. Handlers map these to 4xx responses with the
// matching reason code; they are terminal for the caller, not retry hints.
var (
	ErrSelfTarget         = errors.New("cannot target yourself")
	ErrAlreadyFriends     = errors.New("users are already friends")
	ErrRequestExists      = errors.New("a pending request already exists between these users")
	ErrBlocked            = errors.New("blocked between these users")
	ErrNotAuthorized      = errors.New("actor is not authorized for this transition")
	ErrNoSuchRequest      = errors.New("friend request not found or already resolved")
	ErrNoSuchRelationship = errors.New("relationship not found")
)

// ErrConflict signals a unique-constraint race with another writer. The
// engine retries the operation once internally; callers never see it unless
// storage keeps conflicting, in which case it surfaces as ErrRequestExists.
var ErrConflict = errors.New("concurrent write conflict")

// IsInvalidTransition reports whether err is a transition rejection
// (as opposed to a not-found or storage failure).
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrSelfTarget) ||
		errors.Is(err, ErrAlreadyFriends) ||
		errors.Is(err, ErrRequestExists) ||
		errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrNotAuthorized)
}

// ReasonCode returns the wire-level reason code for a transition error.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrSelfTarget):
		return "SELF_TARGET"
	case errors.Is(err, ErrAlreadyFriends):
		return "ALREADY_FRIENDS"
	case errors.Is(err, ErrRequestExists):
		return "REQUEST_EXISTS"
	case errors.Is(err, ErrBlocked):
		return "BLOCKED"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED_FOR_TRANSITION"
	case errors.Is(err, ErrNoSuchRequest):
		return "NO_SUCH_REQUEST"
	case errors.Is(err, ErrNoSuchRelationship):
		return "NO_SUCH_RELATIONSHIP"
	default:
		return "INTERNAL_ERROR"
	}
}
