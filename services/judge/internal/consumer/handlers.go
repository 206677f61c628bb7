package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/twist-judge/services/judge/internal/reactor"
)

// Notification types, taken from the subject suffix.
const (
	TypePostCreate    = "post_create"
	TypePostDelete    = "post_delete"
	TypeCommentCreate = "comment_create"
	TypeCommentDelete = "comment_delete"
	TypeModAction     = "mod_action"
	TypeAppInstall    = "app_install"
	TypeAppUpgrade    = "app_upgrade"
)

// ErrBadPayload marks a message that can never be processed.
var ErrBadPayload = errors.New("consumer: bad payload")

type HandlerFunc func(ctx context.Context, data json.RawMessage) error

// Handlers routes every notification type to the reactor.
func Handlers(r *reactor.Reactor) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		TypePostCreate:    decode(r.PostCreated),
		TypePostDelete:    decode(r.PostDeleted),
		TypeCommentCreate: decode(r.CommentCreated),
		TypeCommentDelete: decode(r.CommentDeleted),
		TypeModAction:     decode(r.ModAction),
		TypeAppInstall:    decode(appChange(r, "install")),
		TypeAppUpgrade:    decode(appChange(r, "upgrade")),
	}
}

func appChange(r *reactor.Reactor, reason string) func(context.Context, reactor.AppChange) error {
	return func(ctx context.Context, ev reactor.AppChange) error {
		if ev.Reason == "" {
			ev.Reason = reason
		}
		return r.AppChanged(ctx, ev)
	}
}

func decode[T any](fn func(context.Context, T) error) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) error {
		var ev T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
		}
		return fn(ctx, ev)
	}
}
