// Package store persists the judge's tracking state: tracked posts,
// candidate comments, announcement mappings and finished markers.
//
// Every operation maps onto one atomic backend primitive so concurrent
// event handlers and the sweep can share the store without locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/twist-judge/services/judge/internal/content"
)

var ErrInvalidID = errors.New("store: invalid id")

type TrackedPost struct {
	ID        string    `json:"id"`
	TrackedAt time.Time `json:"tracked_at"`
}

// Candidate is a tracked reply. Score is a snapshot taken when it was
// tracked and is never used to pick a winner.
type Candidate struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	Score     int    `json:"score"`
}

// Store is implemented by RedisStore and MemoryStore. Getters return "" for
// absent values.
type Store interface {
	TrackPost(ctx context.Context, postID string, trackedAt time.Time) error
	UntrackPost(ctx context.Context, postID string) error
	// TrackedPosts lists posts whose tracked time in unix ms is within [min, max].
	TrackedPosts(ctx context.Context, min, max int64) ([]TrackedPost, error)
	IsTrackedPost(ctx context.Context, postID string) (bool, error)

	TrackCandidate(ctx context.Context, postID, commentID string, score int) error
	UntrackCandidate(ctx context.Context, postID, commentID string) error
	Candidates(ctx context.Context, postID string) ([]Candidate, error)

	PostAnnouncement(ctx context.Context, postID string) (string, error)
	SetPostAnnouncement(ctx context.Context, postID, announcementID string) error
	DeletePostAnnouncement(ctx context.Context, postID string) error

	CommentAnnouncement(ctx context.Context, commentID string) (string, error)
	SetCommentAnnouncement(ctx context.Context, commentID, announcementID string) error
	DeleteCommentAnnouncement(ctx context.Context, commentID string) error

	FinishedWinner(ctx context.Context, postID string) (string, error)
	SetFinished(ctx context.Context, postID, winnerID string) error
	DeleteFinished(ctx context.Context, postID string) error
	// FinishedPosts maps every finished post to its winner.
	FinishedPosts(ctx context.Context) (map[string]string, error)
}

func checkPost(id string) error {
	if !content.IsPostID(id) {
		return fmt.Errorf("%w: post %q", ErrInvalidID, id)
	}
	return nil
}

func checkComment(id string) error {
	if !content.IsCommentID(id) {
		return fmt.Errorf("%w: comment %q", ErrInvalidID, id)
	}
	return nil
}

func checkPair(postID, commentID string) error {
	if err := checkPost(postID); err != nil {
		return err
	}
	return checkComment(commentID)
}
