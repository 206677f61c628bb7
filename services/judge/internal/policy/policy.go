// Package policy decides which posts and comments enter the judging window.
package policy

import (
	"strings"

	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
)

// TrackablePost reports whether a newly created post opens a judging window.
func TrackablePost(p content.Post, s config.Settings) bool {
	return s.Enabled && s.TrackNewPosts && strings.HasPrefix(p.Title, s.PostPrefix)
}

// TrackableComment reports whether c is a candidate answer. Only direct
// replies to the post qualify.
func TrackableComment(c content.Comment, s config.Settings) bool {
	return s.Enabled && c.IsTopLevel() && strings.HasPrefix(c.Body, s.CommentPrefix)
}
