package friendship

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// memStore is an in-memory Store. Transactions are serialized by a mutex,
// mirroring the row locks the Postgres store takes per pair, and roll back
// by snapshot on error.
type memStore struct {
	mu          sync.Mutex
	rels        map[Pair]*Relationship
	reqs        map[uuid.UUID]*FriendRequest
	notifs      []NotificationSeed
	activities  []*ActivityEntry
	previews    map[Pair]string
	lockedPairs []Pair
}

func newMemStore() *memStore {
	return &memStore{
		rels:     make(map[Pair]*Relationship),
		reqs:     make(map[uuid.UUID]*FriendRequest),
		previews: make(map[Pair]string),
	}
}

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.clone()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	for k, v := range m.rels {
		rel := *v
		c.rels[k] = &rel
	}
	for k, v := range m.reqs {
		req := *v
		c.reqs[k] = &req
	}
	c.notifs = append([]NotificationSeed(nil), m.notifs...)
	c.activities = append([]*ActivityEntry(nil), m.activities...)
	for k, v := range m.previews {
		c.previews[k] = v
	}
	return c
}

func (m *memStore) restore(s *memStore) {
	m.rels = s.rels
	m.reqs = s.reqs
	m.notifs = s.notifs
	m.activities = s.activities
	m.previews = s.previews
}

func (m *memStore) GetRelationship(_ context.Context, pair Pair) (*Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rel, ok := m.rels[pair]; ok {
		cp := *rel
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetPendingBetween(_ context.Context, pair Pair) (*FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pendingBetween(m.reqs, pair), nil
}

func (m *memStore) ListFriends(_ context.Context, userID uuid.UUID) ([]*Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Relationship
	for _, rel := range m.rels {
		if rel.State == StateActive && rel.Pair().Contains(userID) {
			cp := *rel
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListIncomingRequests(_ context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FriendRequest
	for _, req := range m.reqs {
		if req.Status == StatusPending && req.ReceiverID == userID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListOutgoingRequests(_ context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FriendRequest
	for _, req := range m.reqs {
		if req.Status == StatusPending && req.SenderID == userID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListBlocked(_ context.Context, blockerID uuid.UUID) ([]*Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Relationship
	for _, rel := range m.rels {
		if rel.BlockedBy(blockerID) {
			cp := *rel
			out = append(out, &cp)
		}
	}
	return out, nil
}

func pendingBetween(reqs map[uuid.UUID]*FriendRequest, pair Pair) *FriendRequest {
	for _, req := range reqs {
		if req.Status == StatusPending && req.Pair() == pair {
			cp := *req
			return &cp
		}
	}
	return nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) AcquirePairLock(_ context.Context, pair Pair) error {
	t.store.lockedPairs = append(t.store.lockedPairs, pair)
	return nil
}

func (t *memTx) GetRelationshipForUpdate(_ context.Context, pair Pair) (*Relationship, error) {
	if rel, ok := t.store.rels[pair]; ok {
		cp := *rel
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) GetPendingRequestBetween(_ context.Context, pair Pair) (*FriendRequest, error) {
	return pendingBetween(t.store.reqs, pair), nil
}

func (t *memTx) GetRequestForUpdate(_ context.Context, id uuid.UUID) (*FriendRequest, error) {
	if req, ok := t.store.reqs[id]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) InsertRequest(_ context.Context, req *FriendRequest) error {
	for _, existing := range t.store.reqs {
		if existing.Status == StatusPending &&
			existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID {
			return ErrConflict
		}
	}
	cp := *req
	t.store.reqs[req.ID] = &cp
	return nil
}

func (t *memTx) DeleteRequest(_ context.Context, id uuid.UUID) error {
	delete(t.store.reqs, id)
	return nil
}

func (t *memTx) DeleteRequestsForPair(_ context.Context, pair Pair) (int64, error) {
	var deleted int64
	for id, req := range t.store.reqs {
		if req.Pair() == pair {
			delete(t.store.reqs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *memTx) UpsertRelationship(_ context.Context, rel *Relationship) error {
	cp := *rel
	t.store.rels[rel.Pair()] = &cp
	return nil
}

func (t *memTx) DeleteRelationship(_ context.Context, pair Pair) (bool, error) {
	if _, ok := t.store.rels[pair]; !ok {
		return false, nil
	}
	delete(t.store.rels, pair)
	return true, nil
}

func (t *memTx) DeleteNotificationsForPair(_ context.Context, pair Pair, types []string) (int64, error) {
	typeSet := make(map[string]bool, len(types))
	for _, tp := range types {
		typeSet[tp] = true
	}

	var kept []NotificationSeed
	var deleted int64
	for _, n := range t.store.notifs {
		if typeSet[n.Type] && NewPair(n.UserID, n.SourceUserID) == pair {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	t.store.notifs = kept
	return deleted, nil
}

func (t *memTx) DeleteConversationPreviews(_ context.Context, pair Pair) error {
	delete(t.store.previews, pair)
	return nil
}

func (t *memTx) InsertNotification(_ context.Context, seed NotificationSeed) error {
	t.store.notifs = append(t.store.notifs, seed)
	return nil
}

func (t *memTx) InsertActivity(_ context.Context, entry *ActivityEntry) error {
	cp := *entry
	t.store.activities = append(t.store.activities, &cp)
	return nil
}

// capturePublisher records emitted events.
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// capturePreviews records preview invalidations.
type capturePreviews struct {
	mu    sync.Mutex
	pairs []Pair
}

func (p *capturePreviews) InvalidatePair(_ context.Context, pair Pair) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs = append(p.pairs, pair)
	return nil
}

func newTestEngine() (*Service, *memStore, *capturePublisher, *capturePreviews) {
	store := newMemStore()
	events := &capturePublisher{}
	previews := &capturePreviews{}
	return NewService(store, events, previews), store, events, previews
}

func TestSendAcceptCreatesCanonicalRelationship(t *testing.T) {
	engine, store, events, _ := newTestEngine()
	ctx := context.Background()
	userA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	userB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	reqID, err := engine.SendRequest(ctx, userA, userB, "hi")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if reqID == uuid.Nil {
		t.Fatal("expected a request id")
	}

	relID, err := engine.AcceptRequest(ctx, reqID, userB)
	if err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if relID == uuid.Nil {
		t.Fatal("expected a relationship id")
	}

	pair := NewPair(userA, userB)
	if pair.Low != userA || pair.High != userB {
		t.Fatalf("expected canonical order (A,B), got (%s,%s)", pair.Low, pair.High)
	}
	rel := store.rels[pair]
	if rel == nil || rel.State != StateActive {
		t.Fatalf("expected active relationship at canonical pair, got %+v", rel)
	}
	if len(store.reqs) != 0 {
		t.Fatalf("expected request row deleted after accept, %d remain", len(store.reqs))
	}
	got := events.types()
	want := []EventType{EventFriendRequest, EventFriendAccepted}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestRefriendAfterRemove(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, err := engine.SendRequest(ctx, userA, userB, "hi")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// No stale history may block the second round, in either direction.
	reqID, err = engine.SendRequest(ctx, userB, userA, "hi again")
	if err != nil {
		t.Fatalf("re-send after remove: %v", err)
	}
	if _, err := engine.AcceptRequest(ctx, reqID, userA); err != nil {
		t.Fatalf("re-accept after remove: %v", err)
	}

	pair := NewPair(userA, userB)
	if rel := store.rels[pair]; rel == nil || rel.State != StateActive {
		t.Fatalf("expected active relationship after re-friend, got %+v", rel)
	}
	if len(store.reqs) != 0 {
		t.Fatalf("expected zero leftover requests, got %d", len(store.reqs))
	}
}

func TestRemoveFriendIdempotent(t *testing.T) {
	engine, store, events, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("second remove should be a no-op success, got %v", err)
	}

	if len(store.rels) != 0 || len(store.reqs) != 0 {
		t.Fatalf("expected zero relationship/request rows, got %d/%d", len(store.rels), len(store.reqs))
	}

	removed := 0
	for _, tp := range events.types() {
		if tp == EventFriendRemoved {
			removed++
		}
	}
	if removed != 1 {
		t.Fatalf("expected exactly one friend_removed event, got %d", removed)
	}
}

func TestConcurrentRemoveBothSucceed(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.RemoveFriend(ctx, userA, userB)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent remove %d failed: %v", i, err)
		}
	}
	if len(store.rels) != 0 {
		t.Fatalf("expected zero relationships, got %d", len(store.rels))
	}
}

func TestConcurrentSendExactlyOnePending(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.SendRequest(ctx, userA, userB, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrRequestExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one send to succeed, got %d", succeeded)
	}
	if len(store.reqs) != 1 {
		t.Fatalf("expected exactly one pending row, got %d", len(store.reqs))
	}
}

func TestSendRequestRejections(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	if _, err := engine.SendRequest(ctx, userA, userA, ""); !errors.Is(err, ErrSelfTarget) {
		t.Fatalf("expected ErrSelfTarget, got %v", err)
	}

	if _, err := engine.SendRequest(ctx, userA, userB, ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := engine.SendRequest(ctx, userA, userB, ""); !errors.Is(err, ErrRequestExists) {
		t.Fatalf("expected ErrRequestExists for duplicate, got %v", err)
	}
	// Reverse direction is blocked by the same pending request.
	if _, err := engine.SendRequest(ctx, userB, userA, ""); !errors.Is(err, ErrRequestExists) {
		t.Fatalf("expected ErrRequestExists for reverse direction, got %v", err)
	}
}

func TestSendRequestToFriendRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := engine.SendRequest(ctx, userA, userB, ""); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("expected ErrAlreadyFriends, got %v", err)
	}
}

func TestAcceptanceSymmetry(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")

	// Sender may not accept or decline its own request.
	if _, err := engine.AcceptRequest(ctx, reqID, userA); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for sender accept, got %v", err)
	}
	if err := engine.DeclineRequest(ctx, reqID, userA); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for sender decline, got %v", err)
	}
	// Receiver may not cancel.
	if err := engine.CancelRequest(ctx, reqID, userB); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for receiver cancel, got %v", err)
	}

	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("receiver accept: %v", err)
	}
}

func TestDoubleAcceptIsError(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// Double-accept surfaces the race instead of silently succeeding.
	if _, err := engine.AcceptRequest(ctx, reqID, userB); !errors.Is(err, ErrNoSuchRequest) {
		t.Fatalf("expected ErrNoSuchRequest, got %v", err)
	}
}

func TestRemoveDeletesPendingSoAcceptFails(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")

	// Remove races accept: once remove wins, accept must fail cleanly
	// rather than leave a hybrid state.
	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := engine.AcceptRequest(ctx, reqID, userB); !errors.Is(err, ErrNoSuchRequest) {
		t.Fatalf("expected ErrNoSuchRequest after remove, got %v", err)
	}
}

func TestBlockPrecedence(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := engine.BlockUser(ctx, userA, userB, "spam"); err != nil {
		t.Fatalf("block: %v", err)
	}

	pair := NewPair(userA, userB)
	rel := store.rels[pair]
	if rel == nil || rel.State != StateBlocked || !rel.BlockedBy(userA) {
		t.Fatalf("expected blocked relationship replacing friendship, got %+v", rel)
	}
	if len(store.reqs) != 0 {
		t.Fatalf("expected requests wiped by block, got %d", len(store.reqs))
	}

	if _, err := engine.SendRequest(ctx, userB, userA, ""); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked for blocked sender, got %v", err)
	}
	if _, err := engine.SendRequest(ctx, userA, userB, ""); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked for blocker, got %v", err)
	}

	if err := engine.UnblockUser(ctx, userA, userB); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if len(store.rels) != 0 {
		t.Fatal("expected unblock to return the pair to no relationship")
	}
	if _, err := engine.SendRequest(ctx, userB, userA, ""); err != nil {
		t.Fatalf("send after unblock: %v", err)
	}
}

func TestUnblockAuthorization(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	if err := engine.BlockUser(ctx, userA, userB, ""); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := engine.UnblockUser(ctx, userB, userA); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-blocker unblock, got %v", err)
	}
	// Unblocking a pair that is not blocked is an idempotent success.
	userC := uuid.New()
	if err := engine.UnblockUser(ctx, userA, userC); err != nil {
		t.Fatalf("expected no-op unblock success, got %v", err)
	}
}

func TestRemoveCleansDerivedRecords(t *testing.T) {
	engine, store, _, previews := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()
	pair := NewPair(userA, userB)

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if _, err := engine.AcceptRequest(ctx, reqID, userB); err != nil {
		t.Fatalf("accept: %v", err)
	}
	store.previews[pair] = "last message"

	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("remove: %v", err)
	}

	for _, n := range store.notifs {
		if n.Type == string(EventFriendRequest) || n.Type == string(EventFriendAccepted) {
			t.Fatalf("expected pair notifications deleted, found %+v", n)
		}
	}
	if _, ok := store.previews[pair]; ok {
		t.Fatal("expected durable conversation preview deleted")
	}
	if len(previews.pairs) != 1 || previews.pairs[0] != pair {
		t.Fatalf("expected one cache invalidation for the pair, got %v", previews.pairs)
	}
}

func TestCancelEmitsNoEvent(t *testing.T) {
	engine, store, events, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	reqID, _ := engine.SendRequest(ctx, userA, userB, "")
	if err := engine.CancelRequest(ctx, reqID, userA); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(store.reqs) != 0 {
		t.Fatalf("expected request deleted on cancel, got %d rows", len(store.reqs))
	}
	for _, tp := range events.types() {
		if tp != EventFriendRequest {
			t.Fatalf("expected no event beyond the original send, got %v", tp)
		}
	}
}

func TestConcurrentOppositeSendsOnlyOnePending(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()

	// Opposite directions hit a pair with no relationship row yet, so only
	// the pair lock serializes them.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = engine.SendRequest(ctx, userA, userB, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = engine.SendRequest(ctx, userB, userA, "")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrRequestExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one crossed send to succeed, got %d", succeeded)
	}
	if len(store.reqs) != 1 {
		t.Fatalf("expected exactly one pending row, got %d", len(store.reqs))
	}
}

func TestPairOperationsAcquirePairLock(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()
	pair := NewPair(userA, userB)

	if _, err := engine.SendRequest(ctx, userA, userB, ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := engine.RemoveFriend(ctx, userA, userB); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.BlockUser(ctx, userA, userB, ""); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := engine.UnblockUser(ctx, userA, userB); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	if len(store.lockedPairs) != 4 {
		t.Fatalf("expected 4 pair-lock acquisitions, got %d", len(store.lockedPairs))
	}
	for i, locked := range store.lockedPairs {
		if locked != pair {
			t.Fatalf("acquisition %d locked %v, want %v", i, locked, pair)
		}
	}
}

// conflictStore fails every InsertRequest with ErrConflict to drive the
// engine's retry-then-surface path.
type conflictStore struct {
	*memStore
	attempts int
}

func (c *conflictStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	c.attempts++
	return c.memStore.InTx(ctx, func(tx Tx) error {
		return fn(&conflictTx{Tx: tx})
	})
}

type conflictTx struct {
	Tx
}

func (c *conflictTx) InsertRequest(context.Context, *FriendRequest) error {
	return ErrConflict
}

func TestPersistentConflictSurfacesAsRequestExists(t *testing.T) {
	store := &conflictStore{memStore: newMemStore()}
	engine := NewService(store, nil, nil)

	_, err := engine.SendRequest(context.Background(), uuid.New(), uuid.New(), "")
	if !errors.Is(err, ErrRequestExists) {
		t.Fatalf("expected ErrRequestExists after retry, got %v", err)
	}
	if store.attempts != 2 {
		t.Fatalf("expected exactly one retry (2 attempts), got %d", store.attempts)
	}
}
