// Package sweep periodically resolves posts whose judging window has closed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/announce"
	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/metrics"
	"github.com/example/twist-judge/services/judge/internal/publisher"
	"github.com/example/twist-judge/services/judge/internal/resolver"
	"github.com/example/twist-judge/services/judge/internal/store"
)

// JobName is the scheduler name the sweep runs under.
const JobName = "postsUpdaterJob"

// ResultPublisher receives committed results.
type ResultPublisher interface {
	Finished(ctx context.Context, ev publisher.FinishedEvent)
}

type Deps struct {
	Store     store.Store
	Content   content.Provider
	Settings  config.Provider
	Resolver  *resolver.Resolver
	Announcer *announce.Manager
	Results   ResultPublisher
	Metrics   metrics.Recorder
	Log       *zap.Logger
	Now       func() time.Time
}

type Job struct {
	Deps
}

func New(d Deps) *Job {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Job{Deps: d}
}

// Run performs one pass. It only fails when the settings, tracked posts or
// finished markers cannot be loaded; per-post failures are logged.
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	defer func() { j.Metrics.RecordSweep(time.Since(start)) }()

	s, err := j.Settings.Settings(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	if !s.Enabled {
		return nil
	}

	cutoff := j.Now().Add(-s.StickyWindow())
	due, err := j.Store.TrackedPosts(ctx, 0, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("sweep: list tracked posts: %w", err)
	}
	finished, err := j.Store.FinishedPosts(ctx)
	if err != nil {
		return fmt.Errorf("sweep: list finished posts: %w", err)
	}

	resolved := 0
	for _, tp := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, done := finished[tp.ID]; done {
			continue
		}
		ok, err := j.resolvePost(ctx, tp.ID, s)
		if err != nil {
			j.Log.Warn("sweep: post failed", zap.String("post_id", tp.ID), zap.Error(err))
			continue
		}
		if ok {
			resolved++
		}
	}
	j.Log.Info("sweep complete", zap.Int("due", len(due)), zap.Int("resolved", resolved))
	return nil
}

func (j *Job) resolvePost(ctx context.Context, postID string, s config.Settings) (bool, error) {
	post, err := j.Content.Post(ctx, postID)
	if errors.Is(err, content.ErrNotFound) {
		j.Log.Info("sweep: tracked post is gone, untracking", zap.String("post_id", postID))
		return false, j.Store.UntrackPost(ctx, postID)
	}
	if err != nil {
		return false, fmt.Errorf("fetch post: %w", err)
	}

	winner, err := j.Resolver.Resolve(ctx, post, s)
	if err != nil {
		return false, err
	}
	if winner == nil {
		return false, nil
	}

	ann, err := j.Announcer.Announce(ctx, post.ID, announce.RenderWinner(s.StickyTemplate, *winner))
	if err != nil {
		return false, err
	}
	if err := j.Store.SetCommentAnnouncement(ctx, winner.ID, ann.ID); err != nil {
		return false, fmt.Errorf("map winner announcement: %w", err)
	}
	if err := j.Store.SetFinished(ctx, post.ID, winner.ID); err != nil {
		return false, fmt.Errorf("mark finished: %w", err)
	}
	j.Metrics.RecordResolved()
	j.Log.Info("winner committed",
		zap.String("post_id", post.ID),
		zap.String("comment_id", winner.ID),
		zap.Int("score", winner.Score),
	)
	if j.Results != nil {
		j.Results.Finished(ctx, publisher.FinishedEvent{
			PostID:         post.ID,
			WinnerID:       winner.ID,
			AnnouncementID: ann.ID,
			Score:          winner.Score,
		})
	}
	return true, nil
}
