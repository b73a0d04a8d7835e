package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// unreadRetentionDays is how long unread rows survive past the normal
// retention window before they are dropped too.
const unreadRetentionDays = 180

// CleanupJob handles notification retention cleanup
type CleanupJob struct {
	repo          Repository
	retentionDays int
}

// NewCleanupJob creates a cleanup job
func NewCleanupJob(repo Repository, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupJob{
		repo:          repo,
		retentionDays: retentionDays,
	}
}

// Start starts the cleanup job with the given interval
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	j.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Notification cleanup job stopped")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *CleanupJob) run(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	deleted, err := j.repo.DeleteReadOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old notifications")
		return
	}
	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Int("retention_days", j.retentionDays).
			Msg("Cleaned up old notifications")
	}

	// Unread rows get extra grace, then go regardless.
	unreadCutoff := time.Now().AddDate(0, 0, -unreadRetentionDays)
	if deleted, err := j.repo.DeleteOlderThan(ctx, unreadCutoff); err == nil && deleted > 0 {
		log.Info().Int64("deleted_unread", deleted).Msg("Cleaned up very old unread notifications")
	}
}

// RunOnce runs cleanup once (for manual trigger or testing)
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	return j.repo.DeleteReadOlderThan(ctx, cutoff)
}
