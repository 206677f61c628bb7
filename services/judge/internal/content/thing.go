package content

import (
	"context"
	"fmt"
	"time"
)

type Kind int

const (
	KindPost Kind = iota + 1
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Thing holds either a Post or a Comment. Accessors expose the capabilities
// both share so callers need not switch on Kind.
type Thing struct {
	Kind    Kind     `json:"kind"`
	Post    *Post    `json:"post,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

func PostThing(p Post) Thing       { return Thing{Kind: KindPost, Post: &p} }
func CommentThing(c Comment) Thing { return Thing{Kind: KindComment, Comment: &c} }

func (t Thing) ID() string {
	switch t.Kind {
	case KindPost:
		return t.Post.ID
	case KindComment:
		return t.Comment.ID
	}
	return ""
}

// PostID is the owning post: itself for a post, the parent post for a comment.
func (t Thing) PostID() string {
	switch t.Kind {
	case KindPost:
		return t.Post.ID
	case KindComment:
		return t.Comment.PostID
	}
	return ""
}

func (t Thing) AuthorID() string {
	switch t.Kind {
	case KindPost:
		return t.Post.AuthorID
	case KindComment:
		return t.Comment.AuthorID
	}
	return ""
}

func (t Thing) Score() int {
	switch t.Kind {
	case KindPost:
		return t.Post.Score
	case KindComment:
		return t.Comment.Score
	}
	return 0
}

func (t Thing) CreatedAt() time.Time {
	switch t.Kind {
	case KindPost:
		return t.Post.CreatedAt
	case KindComment:
		return t.Comment.CreatedAt
	}
	return time.Time{}
}

// IsRemoved reports removal or spam state.
func (t Thing) IsRemoved() bool {
	switch t.Kind {
	case KindPost:
		return t.Post.Removed || t.Post.Spam
	case KindComment:
		return t.Comment.Removed || t.Comment.Spam
	}
	return false
}

// Fetch resolves a fullname of either kind through p.
func Fetch(ctx context.Context, p Provider, id string) (Thing, error) {
	switch {
	case IsPostID(id):
		post, err := p.Post(ctx, id)
		if err != nil {
			return Thing{}, err
		}
		return PostThing(post), nil
	case IsCommentID(id):
		c, err := p.Comment(ctx, id)
		if err != nil {
			return Thing{}, err
		}
		return CommentThing(c), nil
	default:
		return Thing{}, fmt.Errorf("content: unsupported id %q", id)
	}
}
