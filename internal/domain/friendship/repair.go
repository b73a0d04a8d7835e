package friendship

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// actionableNotificationTypes are the inbox rows a user could act on. Rows
// of these types pointing at a pair with no live state are orphans; purely
// informational rows (removed, declined) are left to the retention job.
var actionableNotificationTypes = []string{
	string(EventFriendRequest),
	string(EventFriendAccepted),
	string(EventFriendBlocked),
}

// FindingKind classifies an invariant violation found by the audit scan.
type FindingKind string

const (
	// FindingStaleResolvedRequest is a resolved request row that was never
	// deleted when its outcome was folded into the relationship store. These
	// are the rows that historically blocked re-friending.
	FindingStaleResolvedRequest FindingKind = "stale_resolved_request"

	// FindingRelationshipWithoutRequest is an active relationship with no
	// surviving accepted request. Informational: resolved requests are
	// deleted on fold, so this is the expected steady state, not an error.
	FindingRelationshipWithoutRequest FindingKind = "relationship_without_request"

	// FindingDuplicatePendingRequest is more than one pending request for a
	// single canonical pair, in either direction. Crossed A->B and B->A
	// pendings count: the validator rejects the second one serially, so two
	// surviving rows always mean a race slipped past the engine.
	FindingDuplicatePendingRequest FindingKind = "duplicate_pending_request"

	// FindingOrphanedNotification is a friend notification whose pair has
	// neither a relationship nor a pending request.
	FindingOrphanedNotification FindingKind = "orphaned_notification"
)

// Finding is one detected violation, with the pair it concerns and the rows
// involved.
type Finding struct {
	Kind       FindingKind
	UserA      uuid.UUID
	UserB      uuid.UUID
	RequestIDs []uuid.UUID

	// RequestSenders is parallel to RequestIDs for duplicate-pending
	// findings; cancellation must act as each request's own sender.
	RequestSenders []uuid.UUID
}

// Repairable reports whether the finding has an auto-correction.
func (f Finding) Repairable() bool {
	return f.Kind != FindingRelationshipWithoutRequest
}

// Scanner is the offline audit tool. Detection reads the store directly;
// every correction goes through the consistency engine so repairs cannot
// themselves introduce new inconsistency.
type Scanner struct {
	db     *sqlx.DB
	engine *Service
}

// NewScanner creates the repair/audit scanner.
func NewScanner(db *sqlx.DB, engine *Service) *Scanner {
	return &Scanner{db: db, engine: engine}
}

// Scan detects invariant violations without mutating anything.
func (s *Scanner) Scan(ctx context.Context) ([]Finding, error) {
	var findings []Finding

	stale, err := s.scanStaleResolvedRequests(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, stale...)

	orphanRels, err := s.scanRelationshipsWithoutRequests(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, orphanRels...)

	dupes, err := s.scanDuplicatePending(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, dupes...)

	orphanNotifs, err := s.scanOrphanedNotifications(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, orphanNotifs...)

	for _, f := range findings {
		log.Warn().
			Str("kind", string(f.Kind)).
			Str("user_a", f.UserA.String()).
			Str("user_b", f.UserB.String()).
			Int("requests", len(f.RequestIDs)).
			Bool("repairable", f.Repairable()).
			Msg("Invariant violation found")
	}
	return findings, nil
}

// Fix reconciles repairable findings through engine operations and returns
// the number of findings corrected.
func (s *Scanner) Fix(ctx context.Context, findings []Finding) (int, error) {
	fixed := 0
	for _, f := range findings {
		if !f.Repairable() {
			continue
		}
		if err := s.fixOne(ctx, f); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func (s *Scanner) fixOne(ctx context.Context, f Finding) error {
	switch f.Kind {
	case FindingStaleResolvedRequest, FindingOrphanedNotification:
		// RemoveFriend is idempotent and wipes every request and derived
		// notification for the pair, whether or not a relationship exists.
		err := s.engine.RemoveFriend(ctx, f.UserA, f.UserB)
		if errors.Is(err, ErrBlocked) {
			// A standing block keeps its pair state; the stale rows get
			// swept when the block is lifted or reapplied.
			log.Warn().
				Str("user_a", f.UserA.String()).
				Str("user_b", f.UserB.String()).
				Msg("Skipping repair for blocked pair")
			return nil
		}
		return err

	case FindingDuplicatePendingRequest:
		// Keep the newest pending request, cancel the rest on behalf of
		// their senders. RequestIDs are ordered oldest first, newest last.
		for i, id := range f.RequestIDs[:len(f.RequestIDs)-1] {
			if err := s.engine.CancelRequest(ctx, id, f.RequestSenders[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (s *Scanner) scanStaleResolvedRequests(ctx context.Context) ([]Finding, error) {
	// Any non-pending request row is stale under the delete-on-resolve
	// model; accepted ones without a live relationship are the dangerous
	// variant, but all of them are swept the same way.
	query := `
		SELECT id, sender_id, receiver_id FROM friend_requests
		WHERE status <> 'pending'
		ORDER BY sender_id, receiver_id, created_at
	`
	var rows []struct {
		ID         uuid.UUID `db:"id"`
		SenderID   uuid.UUID `db:"sender_id"`
		ReceiverID uuid.UUID `db:"receiver_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	byPair := make(map[Pair]*Finding)
	var order []Pair
	for _, row := range rows {
		pair := NewPair(row.SenderID, row.ReceiverID)
		f, ok := byPair[pair]
		if !ok {
			f = &Finding{Kind: FindingStaleResolvedRequest, UserA: pair.Low, UserB: pair.High}
			byPair[pair] = f
			order = append(order, pair)
		}
		f.RequestIDs = append(f.RequestIDs, row.ID)
	}

	findings := make([]Finding, 0, len(order))
	for _, pair := range order {
		findings = append(findings, *byPair[pair])
	}
	return findings, nil
}

func (s *Scanner) scanRelationshipsWithoutRequests(ctx context.Context) ([]Finding, error) {
	query := `
		SELECT low_id, high_id FROM relationships rel
		WHERE rel.state = 'active'
		AND NOT EXISTS (
			SELECT 1 FROM friend_requests fr
			WHERE fr.sender_id IN (rel.low_id, rel.high_id)
			AND fr.receiver_id IN (rel.low_id, rel.high_id)
			AND fr.status = 'accepted'
		)
	`
	var rows []struct {
		LowID  uuid.UUID `db:"low_id"`
		HighID uuid.UUID `db:"high_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, Finding{
			Kind:  FindingRelationshipWithoutRequest,
			UserA: row.LowID,
			UserB: row.HighID,
		})
	}
	return findings, nil
}

func (s *Scanner) scanDuplicatePending(ctx context.Context) ([]Finding, error) {
	// Grouped by canonical pair, not by direction, so crossed A->B and B->A
	// pendings are detected too.
	query := `
		SELECT id, sender_id, receiver_id FROM friend_requests
		WHERE status = 'pending'
		AND (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id)) IN (
			SELECT LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id)
			FROM friend_requests
			WHERE status = 'pending'
			GROUP BY 1, 2
			HAVING COUNT(*) > 1
		)
		ORDER BY LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id), created_at
	`
	var rows []struct {
		ID         uuid.UUID `db:"id"`
		SenderID   uuid.UUID `db:"sender_id"`
		ReceiverID uuid.UUID `db:"receiver_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	byPair := make(map[Pair]*Finding)
	var order []Pair
	for _, row := range rows {
		pair := NewPair(row.SenderID, row.ReceiverID)
		f, ok := byPair[pair]
		if !ok {
			f = &Finding{Kind: FindingDuplicatePendingRequest, UserA: pair.Low, UserB: pair.High}
			byPair[pair] = f
			order = append(order, pair)
		}
		f.RequestIDs = append(f.RequestIDs, row.ID)
		f.RequestSenders = append(f.RequestSenders, row.SenderID)
	}

	findings := make([]Finding, 0, len(order))
	for _, pair := range order {
		findings = append(findings, *byPair[pair])
	}
	return findings, nil
}

func (s *Scanner) scanOrphanedNotifications(ctx context.Context) ([]Finding, error) {
	query := `
		SELECT DISTINCT LEAST(n.user_id, n.source_user_id) AS low_id,
		       GREATEST(n.user_id, n.source_user_id) AS high_id
		FROM notifications n
		WHERE n.type = ANY($1)
		AND NOT EXISTS (
			SELECT 1 FROM relationships rel
			WHERE rel.low_id = LEAST(n.user_id, n.source_user_id)
			AND rel.high_id = GREATEST(n.user_id, n.source_user_id)
		)
		AND NOT EXISTS (
			SELECT 1 FROM friend_requests fr
			WHERE fr.status = 'pending'
			AND fr.sender_id IN (n.user_id, n.source_user_id)
			AND fr.receiver_id IN (n.user_id, n.source_user_id)
		)
	`
	var rows []struct {
		LowID  uuid.UUID `db:"low_id"`
		HighID uuid.UUID `db:"high_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(actionableNotificationTypes)); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, Finding{
			Kind:  FindingOrphanedNotification,
			UserA: row.LowID,
			UserB: row.HighID,
		})
	}
	return findings, nil
}
