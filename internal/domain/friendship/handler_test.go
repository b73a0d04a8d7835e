package friendship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/circlehq/circle-api/internal/middleware"
)

// testAuth injects the user id from the X-Test-User header, standing in for
// the JWT middleware.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get("X-Test-User"))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (chi.Router, *memStore) {
	t.Helper()
	store := newMemStore()
	handler := NewHandler(NewService(store, nil, nil), nil)

	r := chi.NewRouter()
	r.Mount("/friends", handler.Routes(testAuth))
	r.Mount("/users", handler.BlockRoutes(testAuth))
	return r, store
}

func doJSON(t *testing.T, router chi.Router, method, path string, asUser uuid.UUID, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User", asUser.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env apiEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func sendRequestVia(t *testing.T, router chi.Router, sender, receiver uuid.UUID) uuid.UUID {
	t.Helper()
	rec, env := doJSON(t, router, http.MethodPost, "/friends/requests", sender,
		SendRequestBody{ReceiverID: receiver})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send request: status %d body %s", rec.Code, rec.Body.String())
	}
	var data struct {
		RequestID uuid.UUID `json:"request_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode request_id: %v", err)
	}
	return data.RequestID
}

func TestHandlerSendAndAccept(t *testing.T) {
	router, store := newTestRouter(t)
	userA, userB := uuid.New(), uuid.New()

	reqID := sendRequestVia(t, router, userA, userB)

	rec, env := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/friends/requests/%s/accept", reqID), userB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", rec.Code, rec.Body.String())
	}
	var data struct {
		RelationshipID uuid.UUID `json:"relationship_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode relationship_id: %v", err)
	}
	if data.RelationshipID == uuid.Nil {
		t.Fatal("expected relationship id in response")
	}
	if rel := store.rels[NewPair(userA, userB)]; rel == nil || rel.State != StateActive {
		t.Fatalf("expected active relationship, got %+v", rel)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)
	userA, userB := uuid.New(), uuid.New()

	// Self target is a bad request.
	rec, env := doJSON(t, router, http.MethodPost, "/friends/requests", userA,
		SendRequestBody{ReceiverID: userA})
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "SELF_TARGET" {
		t.Fatalf("self target: status %d body %s", rec.Code, rec.Body.String())
	}

	reqID := sendRequestVia(t, router, userA, userB)

	// Duplicate send conflicts.
	rec, env = doJSON(t, router, http.MethodPost, "/friends/requests", userA,
		SendRequestBody{ReceiverID: userB})
	if rec.Code != http.StatusConflict || env.Error == nil || env.Error.Code != "REQUEST_EXISTS" {
		t.Fatalf("duplicate send: status %d body %s", rec.Code, rec.Body.String())
	}

	// The sender may not accept its own request.
	rec, env = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/friends/requests/%s/accept", reqID), userA, nil)
	if rec.Code != http.StatusForbidden || env.Error == nil || env.Error.Code != "NOT_AUTHORIZED_FOR_TRANSITION" {
		t.Fatalf("sender accept: status %d body %s", rec.Code, rec.Body.String())
	}

	// Unknown request id is not found.
	rec, env = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/friends/requests/%s/accept", uuid.New()), userB, nil)
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NO_SUCH_REQUEST" {
		t.Fatalf("unknown request: status %d body %s", rec.Code, rec.Body.String())
	}

	// Malformed ids never reach the engine.
	rec, _ = doJSON(t, router, http.MethodPost, "/friends/requests/not-a-uuid/accept", userB, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: status %d", rec.Code)
	}
}

func TestHandlerBlockedPairForbidden(t *testing.T) {
	router, _ := newTestRouter(t)
	userA, userB := uuid.New(), uuid.New()

	rec, _ := doJSON(t, router, http.MethodPost, "/users/"+userB.String()+"/block", userA,
		BlockUserBody{Reason: "spam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("block: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, env := doJSON(t, router, http.MethodPost, "/friends/requests", userB,
		SendRequestBody{ReceiverID: userA})
	if rec.Code != http.StatusForbidden || env.Error == nil || env.Error.Code != "BLOCKED" {
		t.Fatalf("send to blocker: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, router, http.MethodDelete, "/users/"+userB.String()+"/block", userA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unblock: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec, _ = doJSON(t, router, http.MethodPost, "/friends/requests", userB,
		SendRequestBody{ReceiverID: userA}); rec.Code != http.StatusCreated {
		t.Fatalf("send after unblock: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerRemoveIsIdempotent(t *testing.T) {
	router, _ := newTestRouter(t)
	userA, userB := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		rec, _ := doJSON(t, router, http.MethodDelete, "/friends/"+userB.String(), userA, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("remove attempt %d: status %d body %s", i+1, rec.Code, rec.Body.String())
		}
	}
}

func TestHandlerListsAndStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	userA, userB := uuid.New(), uuid.New()

	reqID := sendRequestVia(t, router, userA, userB)

	rec, env := doJSON(t, router, http.MethodGet, "/friends/requests/incoming", userB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("incoming: status %d", rec.Code)
	}
	var incoming []*RequestResponse
	if err := json.Unmarshal(env.Data, &incoming); err != nil {
		t.Fatalf("decode incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != reqID {
		t.Fatalf("expected one incoming request %s, got %+v", reqID, incoming)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/friends/status/"+userB.String(), userA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status StatusResponse
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != string(StatusViewPendingOutgoing) {
		t.Fatalf("expected pending_outgoing, got %s", status.Status)
	}

	if rec, _ := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/friends/requests/%s/accept", reqID), userB, nil); rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d", rec.Code)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/friends/", userA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list friends: %d", rec.Code)
	}
	var friends []*FriendResponse
	if err := json.Unmarshal(env.Data, &friends); err != nil {
		t.Fatalf("decode friends: %v", err)
	}
	if len(friends) != 1 || friends[0].UserID != userB {
		t.Fatalf("expected %s as friend, got %+v", userB, friends)
	}
}
