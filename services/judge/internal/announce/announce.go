// Package announce keeps exactly one result comment per judged post.
package announce

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/metrics"
	"github.com/example/twist-judge/services/judge/internal/store"
)

type Manager struct {
	store   store.Store
	content content.Provider
	log     *zap.Logger
	metrics metrics.Recorder
}

type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

func New(st store.Store, cp content.Provider, opts ...Option) *Manager {
	m := &Manager{store: st, content: cp, log: zap.NewNop(), metrics: metrics.Nop{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Announce creates or updates the announcement on postID so that its body is
// body. The existing mapped comment is edited when it still exists;
// otherwise the stale mapping is dropped and a new comment is submitted.
func (m *Manager) Announce(ctx context.Context, postID, body string) (content.Comment, error) {
	existingID, err := m.store.PostAnnouncement(ctx, postID)
	if err != nil {
		return content.Comment{}, fmt.Errorf("load announcement for %s: %w", postID, err)
	}

	if existingID != "" {
		c, updateErr := m.update(ctx, existingID, body)
		if updateErr == nil {
			m.metrics.RecordAnnouncement(metrics.OpUpdated)
			return c, nil
		}
		m.log.Warn("announcement is stale, replacing",
			zap.String("post_id", postID),
			zap.String("comment_id", existingID),
			zap.Error(updateErr),
		)
		if err := m.store.DeletePostAnnouncement(ctx, postID); err != nil {
			return content.Comment{}, fmt.Errorf("drop stale announcement for %s: %w", postID, err)
		}
		if !errors.Is(updateErr, content.ErrNotFound) {
			if derr := m.content.DeleteComment(ctx, existingID); derr != nil && !errors.Is(derr, content.ErrNotFound) {
				m.log.Warn("delete stale announcement", zap.String("comment_id", existingID), zap.Error(derr))
			}
		}
		m.metrics.RecordAnnouncement(metrics.OpStale)
	}

	c, err := m.content.SubmitComment(ctx, postID, body)
	if err != nil {
		return content.Comment{}, fmt.Errorf("submit announcement on %s: %w", postID, err)
	}
	if err := m.store.SetPostAnnouncement(ctx, postID, c.ID); err != nil {
		// An unmapped comment would be duplicated on the next call.
		if derr := m.content.DeleteComment(ctx, c.ID); derr != nil {
			m.log.Warn("delete unmapped announcement", zap.String("comment_id", c.ID), zap.Error(derr))
		}
		return content.Comment{}, fmt.Errorf("map announcement for %s: %w", postID, err)
	}
	m.decorate(ctx, c.ID)
	m.metrics.RecordAnnouncement(metrics.OpCreated)
	m.log.Info("announcement created", zap.String("post_id", postID), zap.String("comment_id", c.ID))
	return c, nil
}

func (m *Manager) update(ctx context.Context, id, body string) (content.Comment, error) {
	if _, err := m.content.Comment(ctx, id); err != nil {
		return content.Comment{}, err
	}
	c, err := m.content.EditComment(ctx, id, body)
	if err != nil {
		return content.Comment{}, err
	}
	if err := m.content.ApproveComment(ctx, id); err != nil {
		m.log.Warn("approve announcement", zap.String("comment_id", id), zap.Error(err))
	}
	m.decorate(ctx, id)
	return c, nil
}

// decorate pins and locks id. Both are cosmetic, so failures are only logged.
func (m *Manager) decorate(ctx context.Context, id string) {
	if err := m.content.DistinguishComment(ctx, id, true); err != nil {
		m.log.Warn("distinguish announcement", zap.String("comment_id", id), zap.Error(err))
	}
	if err := m.content.LockComment(ctx, id); err != nil {
		m.log.Warn("lock announcement", zap.String("comment_id", id), zap.Error(err))
	}
}

// Remove deletes the announcement on postID and its mapping. Without a
// mapping it falls back to the post's sticky comment when the app wrote it.
func (m *Manager) Remove(ctx context.Context, postID string) error {
	id, err := m.store.PostAnnouncement(ctx, postID)
	if err != nil {
		return fmt.Errorf("load announcement for %s: %w", postID, err)
	}
	if id == "" {
		id = m.ownSticky(ctx, postID)
	}
	if id != "" {
		if err := m.content.DeleteComment(ctx, id); err != nil && !errors.Is(err, content.ErrNotFound) {
			m.log.Warn("delete announcement", zap.String("post_id", postID), zap.String("comment_id", id), zap.Error(err))
		} else {
			m.metrics.RecordAnnouncement(metrics.OpDeleted)
		}
	}
	if err := m.store.DeletePostAnnouncement(ctx, postID); err != nil {
		return fmt.Errorf("drop announcement for %s: %w", postID, err)
	}
	return nil
}

func (m *Manager) ownSticky(ctx context.Context, postID string) string {
	sticky, err := m.content.StickyComment(ctx, postID)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			m.log.Warn("fetch sticky comment", zap.String("post_id", postID), zap.Error(err))
		}
		return ""
	}
	me, err := m.content.Me(ctx)
	if err != nil {
		m.log.Warn("resolve app identity", zap.Error(err))
		return ""
	}
	if sticky.AuthorID != me.ID {
		return ""
	}
	return sticky.ID
}

// Approve approves and re-pins the announcement on postID, if any.
func (m *Manager) Approve(ctx context.Context, postID string) error {
	id, err := m.store.PostAnnouncement(ctx, postID)
	if err != nil || id == "" {
		return err
	}
	if err := m.content.ApproveComment(ctx, id); err != nil {
		m.log.Warn("approve announcement", zap.String("post_id", postID), zap.String("comment_id", id), zap.Error(err))
		return nil
	}
	if err := m.content.DistinguishComment(ctx, id, true); err != nil {
		m.log.Warn("distinguish announcement", zap.String("post_id", postID), zap.String("comment_id", id), zap.Error(err))
	}
	return nil
}

// Hide removes the announcement on postID, if any. The announcement is
// never marked as spam, even when its post was.
func (m *Manager) Hide(ctx context.Context, postID string) error {
	id, err := m.store.PostAnnouncement(ctx, postID)
	if err != nil || id == "" {
		return err
	}
	if err := m.content.RemoveComment(ctx, id, false); err != nil {
		m.log.Warn("remove announcement", zap.String("post_id", postID), zap.String("comment_id", id), zap.Error(err))
	}
	return nil
}
