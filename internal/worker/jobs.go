// Package worker runs the periodic jobs of the backend: monthly credit
// grants and publishing of scheduled posts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/ledger"
	"blogpilot/internal/posts"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// MonthlyGrantJob grants the monthly allowance for the current UTC month.
// Grants are keyed by period, so running it twice in a month is harmless.
type MonthlyGrantJob struct {
	Ledger *ledger.Service
	Logger zerolog.Logger
	Now    func() time.Time
}

func (j *MonthlyGrantJob) Name() string { return "monthly_grant" }

func (j *MonthlyGrantJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	report, err := j.Ledger.GrantMonthly(ctx, Period(now()))
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("monthly grant %s: %d grants failed", report.Period, report.Failed)
	}
	return nil
}

// Period formats t as the YYYY-MM key used by monthly grants.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PostSyncer pushes a post to its remote WordPress copy.
type PostSyncer interface {
	SyncPost(ctx context.Context, userID, postID string, categories []int64) (*domain.Post, error)
}

// PublishScheduledJob publishes due scheduled posts. Posts that already
// have a WordPress copy are synced again so the remote status follows.
type PublishScheduledJob struct {
	Posts     *posts.Service
	WordPress PostSyncer
	Batch     int
	Logger    zerolog.Logger
}

func (j *PublishScheduledJob) Name() string { return "publish_scheduled" }

func (j *PublishScheduledJob) Run(ctx context.Context) error {
	batch := j.Batch
	if batch <= 0 {
		batch = 100
	}
	published, err := j.Posts.PublishDue(ctx, batch)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range published {
		j.Logger.Info().Str("post_id", p.ID).Str("user_id", p.UserID).Msg("scheduled post published")
		if j.WordPress == nil || p.WordPress == nil {
			continue
		}
		if _, err := j.WordPress.SyncPost(ctx, p.UserID, p.ID, nil); err != nil {
			if errors.Is(err, domain.ErrIntegrationMissing) {
				continue
			}
			errs = append(errs, fmt.Errorf("sync post %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}
