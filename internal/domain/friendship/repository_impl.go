package friendship

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type store struct {
	db *sqlx.DB
}

// NewStore creates the Postgres-backed relationship store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	dbtx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	if err := fn(&storeTx{tx: dbtx}); err != nil {
		return err
	}
	return dbtx.Commit()
}

func (s *store) GetRelationship(ctx context.Context, pair Pair) (*Relationship, error) {
	query := `SELECT * FROM relationships WHERE low_id = $1 AND high_id = $2`
	var rel Relationship
	err := s.db.GetContext(ctx, &rel, query, pair.Low, pair.High)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func (s *store) GetPendingBetween(ctx context.Context, pair Pair) (*FriendRequest, error) {
	query := `
		SELECT * FROM friend_requests
		WHERE status = 'pending'
		AND sender_id IN ($1, $2) AND receiver_id IN ($1, $2)
		LIMIT 1
	`
	var req FriendRequest
	err := s.db.GetContext(ctx, &req, query, pair.Low, pair.High)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (s *store) ListFriends(ctx context.Context, userID uuid.UUID) ([]*Relationship, error) {
	query := `
		SELECT * FROM relationships
		WHERE state = 'active' AND (low_id = $1 OR high_id = $1)
		ORDER BY created_at DESC
	`
	var rels []*Relationship
	err := s.db.SelectContext(ctx, &rels, query, userID)
	return rels, err
}

func (s *store) ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	query := `
		SELECT * FROM friend_requests
		WHERE receiver_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	var reqs []*FriendRequest
	err := s.db.SelectContext(ctx, &reqs, query, userID)
	return reqs, err
}

func (s *store) ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*FriendRequest, error) {
	query := `
		SELECT * FROM friend_requests
		WHERE sender_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	var reqs []*FriendRequest
	err := s.db.SelectContext(ctx, &reqs, query, userID)
	return reqs, err
}

func (s *store) ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]*Relationship, error) {
	query := `
		SELECT * FROM relationships
		WHERE state = 'blocked' AND blocker_id = $1
		ORDER BY updated_at DESC
	`
	var rels []*Relationship
	err := s.db.SelectContext(ctx, &rels, query, blockerID)
	return rels, err
}

type storeTx struct {
	tx *sqlx.Tx
}

// pairLockKey derives the advisory-lock key for a canonical pair. Collisions
// across distinct pairs only cost extra serialization, never correctness.
func pairLockKey(pair Pair) int64 {
	h := fnv.New64a()
	h.Write(pair.Low[:])
	h.Write(pair.High[:])
	return int64(h.Sum64())
}

func (t *storeTx) AcquirePairLock(ctx context.Context, pair Pair) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairLockKey(pair))
	return err
}

func (t *storeTx) GetRelationshipForUpdate(ctx context.Context, pair Pair) (*Relationship, error) {
	query := `SELECT * FROM relationships WHERE low_id = $1 AND high_id = $2 FOR UPDATE`
	var rel Relationship
	err := t.tx.GetContext(ctx, &rel, query, pair.Low, pair.High)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func (t *storeTx) GetPendingRequestBetween(ctx context.Context, pair Pair) (*FriendRequest, error) {
	query := `
		SELECT * FROM friend_requests
		WHERE status = 'pending'
		AND sender_id IN ($1, $2) AND receiver_id IN ($1, $2)
		LIMIT 1
	`
	var req FriendRequest
	err := t.tx.GetContext(ctx, &req, query, pair.Low, pair.High)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (t *storeTx) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (*FriendRequest, error) {
	query := `SELECT * FROM friend_requests WHERE id = $1 FOR UPDATE`
	var req FriendRequest
	err := t.tx.GetContext(ctx, &req, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (t *storeTx) InsertRequest(ctx context.Context, req *FriendRequest) error {
	query := `
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.ExecContext(ctx, query,
		req.ID, req.SenderID, req.ReceiverID, req.Status, req.Message, req.CreatedAt, req.UpdatedAt)
	return mapConstraintError(err)
}

func (t *storeTx) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM friend_requests WHERE id = $1`
	_, err := t.tx.ExecContext(ctx, query, id)
	return err
}

func (t *storeTx) DeleteRequestsForPair(ctx context.Context, pair Pair) (int64, error) {
	query := `
		DELETE FROM friend_requests
		WHERE sender_id IN ($1, $2) AND receiver_id IN ($1, $2)
	`
	result, err := t.tx.ExecContext(ctx, query, pair.Low, pair.High)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *storeTx) UpsertRelationship(ctx context.Context, rel *Relationship) error {
	query := `
		INSERT INTO relationships (id, low_id, high_id, state, blocker_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (low_id, high_id) DO UPDATE
		SET state = EXCLUDED.state, blocker_id = EXCLUDED.blocker_id, updated_at = EXCLUDED.updated_at
	`
	_, err := t.tx.ExecContext(ctx, query,
		rel.ID, rel.LowID, rel.HighID, rel.State, rel.BlockerID, rel.CreatedAt, rel.UpdatedAt)
	return mapConstraintError(err)
}

func (t *storeTx) DeleteRelationship(ctx context.Context, pair Pair) (bool, error) {
	query := `DELETE FROM relationships WHERE low_id = $1 AND high_id = $2`
	result, err := t.tx.ExecContext(ctx, query, pair.Low, pair.High)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (t *storeTx) DeleteNotificationsForPair(ctx context.Context, pair Pair, types []string) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE user_id IN ($1, $2) AND source_user_id IN ($1, $2)
		AND type = ANY($3)
	`
	result, err := t.tx.ExecContext(ctx, query, pair.Low, pair.High, pq.Array(types))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *storeTx) DeleteConversationPreviews(ctx context.Context, pair Pair) error {
	query := `DELETE FROM conversation_previews WHERE low_id = $1 AND high_id = $2`
	_, err := t.tx.ExecContext(ctx, query, pair.Low, pair.High)
	return err
}

func (t *storeTx) InsertNotification(ctx context.Context, seed NotificationSeed) error {
	query := `
		INSERT INTO notifications (id, user_id, source_user_id, type, title, body, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), false, NOW())
	`
	_, err := t.tx.ExecContext(ctx, query,
		uuid.New(), seed.UserID, seed.SourceUserID, seed.Type, seed.Title, seed.Body)
	return err
}

func (t *storeTx) InsertActivity(ctx context.Context, entry *ActivityEntry) error {
	query := `
		INSERT INTO friend_activity (id, type, actor_id, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.ExecContext(ctx, query,
		entry.ID, entry.Type, entry.ActorID, entry.TargetID, entry.CreatedAt)
	return err
}

// mapConstraintError converts a Postgres unique violation into ErrConflict
// so the engine can drive its single retry.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}
