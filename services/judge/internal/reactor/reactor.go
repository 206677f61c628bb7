// Package reactor keeps the store consistent with lifecycle notifications.
// Every handler is idempotent and may run concurrently with any other
// handler and with the sweep.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/announce"
	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/policy"
	"github.com/example/twist-judge/services/judge/internal/scheduler"
	"github.com/example/twist-judge/services/judge/internal/store"
)

// Installer starts a named recurring job, replacing any previous instance.
type Installer interface {
	StartSingleton(name string, interval time.Duration, job scheduler.Job) error
}

type Deps struct {
	Store     store.Store
	Content   content.Provider
	Settings  config.Provider
	Announcer *announce.Manager
	Scheduler Installer

	// SweepName, SweepInterval and Sweep describe the job AppChanged installs.
	SweepName     string
	SweepInterval time.Duration
	Sweep         scheduler.Job

	Log *zap.Logger
}

type Reactor struct {
	Deps

	meMu sync.Mutex
	me   *content.User
}

func New(d Deps) *Reactor {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SweepInterval <= 0 {
		d.SweepInterval = time.Minute
	}
	return &Reactor{Deps: d}
}

// identity returns the app's own account, cached after the first success.
func (r *Reactor) identity(ctx context.Context) (content.User, error) {
	r.meMu.Lock()
	defer r.meMu.Unlock()
	if r.me != nil {
		return *r.me, nil
	}
	me, err := r.Content.Me(ctx)
	if err != nil {
		return content.User{}, fmt.Errorf("resolve app identity: %w", err)
	}
	r.me = &me
	return me, nil
}

func (r *Reactor) PostCreated(ctx context.Context, ev PostCreate) error {
	post, err := r.Content.Post(ctx, ev.PostID)
	if errors.Is(err, content.ErrNotFound) {
		r.Log.Debug("created post already gone", zap.String("post_id", ev.PostID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch post %s: %w", ev.PostID, err)
	}
	s, err := r.Settings.Settings(ctx)
	if err != nil {
		return err
	}
	if !policy.TrackablePost(post, s) {
		return nil
	}
	if err := r.Store.TrackPost(ctx, post.ID, post.CreatedAt); err != nil {
		return fmt.Errorf("track post %s: %w", post.ID, err)
	}
	r.Log.Info("post tracked", zap.String("post_id", post.ID))
	if _, err := r.Announcer.Announce(ctx, post.ID, announce.RenderPending(s.NewPostSticky, post.AuthorName)); err != nil {
		return err
	}
	return nil
}

// PostDeleted tears down everything kept for a post its author deleted.
// The post is untracked last so a failed attempt is retried in full.
func (r *Reactor) PostDeleted(ctx context.Context, ev PostDelete) error {
	if ev.Source != SourceUser {
		return nil
	}
	tracked, err := r.Store.IsTrackedPost(ctx, ev.PostID)
	if err != nil {
		return err
	}
	winner, err := r.Store.FinishedWinner(ctx, ev.PostID)
	if err != nil {
		return err
	}
	ann, err := r.Store.PostAnnouncement(ctx, ev.PostID)
	if err != nil {
		return err
	}
	if !tracked && winner == "" && ann == "" {
		return nil
	}

	if err := r.Announcer.Remove(ctx, ev.PostID); err != nil {
		return err
	}
	if err := r.clearFinished(ctx, ev.PostID, winner); err != nil {
		return err
	}
	cands, err := r.Store.Candidates(ctx, ev.PostID)
	if err != nil {
		return err
	}
	for _, c := range cands {
		if err := r.Store.UntrackCandidate(ctx, ev.PostID, c.CommentID); err != nil {
			return err
		}
	}
	if err := r.Store.UntrackPost(ctx, ev.PostID); err != nil {
		return err
	}
	r.Log.Info("deleted post cleaned up", zap.String("post_id", ev.PostID), zap.Int("candidates", len(cands)))
	return nil
}

func (r *Reactor) CommentCreated(ctx context.Context, ev CommentCreate) error {
	c, err := r.Content.Comment(ctx, ev.CommentID)
	if errors.Is(err, content.ErrNotFound) {
		r.Log.Debug("created comment already gone", zap.String("comment_id", ev.CommentID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch comment %s: %w", ev.CommentID, err)
	}
	return r.admit(ctx, c)
}

// admit tracks c as a candidate when it qualifies and invalidates the
// post's result if c now outscores the recorded winner.
func (r *Reactor) admit(ctx context.Context, c content.Comment) error {
	me, err := r.identity(ctx)
	if err != nil {
		return err
	}
	if c.AuthorID == me.ID {
		return nil
	}
	s, err := r.Settings.Settings(ctx)
	if err != nil {
		return err
	}
	if !policy.TrackableComment(c, s) {
		return nil
	}
	if err := r.Store.TrackCandidate(ctx, c.PostID, c.ID, c.Score); err != nil {
		return fmt.Errorf("track candidate %s: %w", c.ID, err)
	}

	winnerID, err := r.Store.FinishedWinner(ctx, c.PostID)
	if err != nil || winnerID == "" || winnerID == c.ID {
		return err
	}
	winner, err := r.Content.Comment(ctx, winnerID)
	switch {
	case errors.Is(err, content.ErrNotFound):
		r.Log.Info("recorded winner is gone, reopening", zap.String("post_id", c.PostID), zap.String("comment_id", winnerID))
		return r.clearFinished(ctx, c.PostID, winnerID)
	case err != nil:
		return fmt.Errorf("fetch winner %s: %w", winnerID, err)
	case c.Score > winner.Score:
		r.Log.Info("new candidate outscores winner, reopening",
			zap.String("post_id", c.PostID),
			zap.String("comment_id", c.ID),
			zap.Int("score", c.Score),
			zap.Int("winner_score", winner.Score),
		)
		return r.clearFinished(ctx, c.PostID, winnerID)
	}
	return nil
}

// clearFinished reopens postID and forgets winnerID's announcement mapping.
func (r *Reactor) clearFinished(ctx context.Context, postID, winnerID string) error {
	if err := r.Store.DeleteFinished(ctx, postID); err != nil {
		return err
	}
	if winnerID == "" {
		return nil
	}
	return r.Store.DeleteCommentAnnouncement(ctx, winnerID)
}

func (r *Reactor) CommentDeleted(ctx context.Context, ev CommentDelete) error {
	if ev.Source != SourceUser {
		return nil
	}
	if ev.ParentID != "" && ev.ParentID != ev.PostID {
		return nil
	}
	if err := r.Store.UntrackCandidate(ctx, ev.PostID, ev.CommentID); err != nil {
		return err
	}

	mapped, err := r.Store.CommentAnnouncement(ctx, ev.CommentID)
	if err != nil {
		return err
	}
	current, err := r.Store.PostAnnouncement(ctx, ev.PostID)
	if err != nil {
		return err
	}
	winner, err := r.Store.FinishedWinner(ctx, ev.PostID)
	if err != nil {
		return err
	}
	if (mapped != "" && mapped == current) || winner == ev.CommentID {
		r.Log.Info("announced winner deleted, reopening", zap.String("post_id", ev.PostID), zap.String("comment_id", ev.CommentID))
		if err := r.Store.DeleteFinished(ctx, ev.PostID); err != nil {
			return err
		}
	}
	if mapped != "" {
		return r.Store.DeleteCommentAnnouncement(ctx, ev.CommentID)
	}
	return nil
}

func (r *Reactor) ModAction(ctx context.Context, ev ModAction) error {
	me, err := r.identity(ctx)
	if err != nil {
		return err
	}
	if (ev.ModeratorID != "" && ev.ModeratorID == me.ID) || (ev.ModeratorName != "" && strings.EqualFold(ev.ModeratorName, me.Name)) {
		return nil
	}

	switch ev.Action {
	case ActionRemoveComment, ActionSpamComment:
		postID, err := r.commentPost(ctx, ev)
		if err != nil || postID == "" {
			return err
		}
		if err := r.Store.UntrackCandidate(ctx, postID, ev.TargetID); err != nil {
			return err
		}
		winner, err := r.Store.FinishedWinner(ctx, postID)
		if err != nil {
			return err
		}
		if winner == ev.TargetID {
			r.Log.Info("winner removed by moderator, reopening", zap.String("post_id", postID), zap.String("comment_id", winner))
			return r.clearFinished(ctx, postID, winner)
		}
		return nil

	case ActionApproveComment:
		c, err := r.Content.Comment(ctx, ev.TargetID)
		if errors.Is(err, content.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch comment %s: %w", ev.TargetID, err)
		}
		return r.admit(ctx, c)

	case ActionApproveLink:
		return r.Announcer.Approve(ctx, ev.TargetID)
	case ActionRemoveLink, ActionSpamLink:
		return r.Announcer.Hide(ctx, ev.TargetID)
	}
	return nil
}

// commentPost finds the post a moderated comment belongs to, preferring the
// id carried on the event. "" means the comment is unknown.
func (r *Reactor) commentPost(ctx context.Context, ev ModAction) (string, error) {
	if content.IsPostID(ev.PostID) {
		return ev.PostID, nil
	}
	c, err := r.Content.Comment(ctx, ev.TargetID)
	if errors.Is(err, content.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch comment %s: %w", ev.TargetID, err)
	}
	return c.PostID, nil
}

// AppChanged (re)installs the sweep. Failure is fatal for the install.
func (r *Reactor) AppChanged(_ context.Context, ev AppChange) error {
	if err := r.Scheduler.StartSingleton(r.SweepName, r.SweepInterval, r.Sweep); err != nil {
		return fmt.Errorf("install %s: %w", r.SweepName, err)
	}
	r.Log.Info("sweep installed", zap.String("reason", ev.Reason), zap.String("job", r.SweepName))
	return nil
}
