// Package content models the posts and comments the judge reads and writes,
// and the Provider contract used to reach the hosting site.
package content

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by a Provider when the requested thing no longer exists.
var ErrNotFound = errors.New("content: not found")

// Fullname prefixes.
const (
	PrefixComment = "t1_"
	PrefixUser    = "t2_"
	PrefixPost    = "t3_"
)

// IsPostID reports whether id is a well-formed post fullname.
func IsPostID(id string) bool { return hasFullnamePrefix(id, PrefixPost) }

// IsCommentID reports whether id is a well-formed comment fullname.
func IsCommentID(id string) bool { return hasFullnamePrefix(id, PrefixComment) }

// IsUserID reports whether id is a well-formed user fullname.
func IsUserID(id string) bool { return hasFullnamePrefix(id, PrefixUser) }

func hasFullnamePrefix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) == len(prefix) {
		return false
	}
	for _, r := range id[len(prefix):] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	Permalink  string    `json:"permalink,omitempty"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	Removed    bool      `json:"removed,omitempty"`
	Spam       bool      `json:"spam,omitempty"`
}

type Comment struct {
	ID            string    `json:"id"`
	PostID        string    `json:"post_id"`
	ParentID      string    `json:"parent_id"`
	Body          string    `json:"body"`
	AuthorID      string    `json:"author_id,omitempty"`
	AuthorName    string    `json:"author_name,omitempty"`
	Permalink     string    `json:"permalink,omitempty"`
	Score         int       `json:"score"`
	CreatedAt     time.Time `json:"created_at"`
	Removed       bool      `json:"removed,omitempty"`
	Spam          bool      `json:"spam,omitempty"`
	Distinguished bool      `json:"distinguished,omitempty"`
	Stickied      bool      `json:"stickied,omitempty"`
	Locked        bool      `json:"locked,omitempty"`
}

// IsTopLevel reports whether the comment replies directly to its post.
func (c Comment) IsTopLevel() bool {
	return c.ParentID == c.PostID && IsPostID(c.ParentID)
}

// User identifies an account, typically the app's own.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is the hosting site as seen by the judge. Post and Comment return
// ErrNotFound (possibly wrapped) when the thing is gone.
type Provider interface {
	Post(ctx context.Context, id string) (Post, error)
	Comment(ctx context.Context, id string) (Comment, error)
	SubmitComment(ctx context.Context, postID, body string) (Comment, error)
	EditComment(ctx context.Context, id, body string) (Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ApproveComment(ctx context.Context, id string) error
	RemoveComment(ctx context.Context, id string, spam bool) error
	DistinguishComment(ctx context.Context, id string, sticky bool) error
	LockComment(ctx context.Context, id string) error
	// StickyComment returns the comment pinned on postID, or ErrNotFound.
	StickyComment(ctx context.Context, postID string) (Comment, error)
	Me(ctx context.Context) (User, error)
}
