// Package resolver picks the winning candidate for a post from live data.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/store"
)

const defaultConcurrency = 8

type Resolver struct {
	store       store.Store
	content     content.Provider
	log         *zap.Logger
	concurrency int
}

type Option func(*Resolver)

func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithConcurrency bounds parallel comment fetches.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(st store.Store, cp content.Provider, opts ...Option) *Resolver {
	r := &Resolver{store: st, content: cp, log: zap.NewNop(), concurrency: defaultConcurrency}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the best live candidate for post, or nil when none
// qualifies. It never mutates the store. Individual comment fetch failures
// drop that candidate; only a failure to list candidates is returned.
func (r *Resolver) Resolve(ctx context.Context, post content.Post, s config.Settings) (*content.Comment, error) {
	cands, err := r.store.Candidates(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates for %s: %w", post.ID, err)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	live := make([]*content.Comment, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, cand := range cands {
		i, cand := i, cand
		g.Go(func() error {
			c, err := r.content.Comment(gctx, cand.CommentID)
			if err != nil {
				r.log.Warn("candidate fetch failed",
					zap.String("post_id", post.ID),
					zap.String("comment_id", cand.CommentID),
					zap.Error(err),
				)
				return nil
			}
			live[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	var best *content.Comment
	for _, c := range live {
		if c == nil || !Eligible(*c, post, s) {
			continue
		}
		if best == nil || Better(*c, *best) {
			best = c
		}
	}
	return best, nil
}

// Eligible reports whether a live comment may win post under s.
func Eligible(c content.Comment, post content.Post, s config.Settings) bool {
	switch {
	case c.Removed, c.Spam:
		return false
	case c.AuthorID == "":
		return false
	case !strings.HasPrefix(c.Body, s.CommentPrefix):
		return false
	case !s.AllowOp && c.AuthorID == post.AuthorID:
		return false
	}
	return true
}

// Better orders candidates: higher score, then earlier creation, then
// the lexically smaller id.
func Better(a, b content.Comment) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
