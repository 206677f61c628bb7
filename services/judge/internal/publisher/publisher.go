// Package publisher emits judge result events to NATS JetStream.
package publisher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/twist-judge/internal/platform/events"
	"github.com/example/twist-judge/internal/platform/natsconn"
)

const (
	SubjectFinished = "judge.results.finished"
	StreamName      = "JUDGE_RESULTS"
	streamSubjects  = "judge.results.>"
	streamMaxAge    = 30 * 24 * time.Hour
)

// FinishedEvent is published once a winner has been committed for a post.
type FinishedEvent struct {
	EventID        string    `json:"event_id"`
	PostID         string    `json:"post_id"`
	WinnerID       string    `json:"winner_id"`
	AnnouncementID string    `json:"announcement_id"`
	Score          int       `json:"score"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher struct {
	events *events.Publisher
	log    *zap.Logger
}

// New wraps an events publisher. A nil or stub events publisher makes
// every call a no-op.
func New(ev *events.Publisher, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{events: ev, log: log}
}

// EnsureStream creates the results stream when it is missing.
func EnsureStream(js natsconn.StreamManager) error {
	return natsconn.EnsureStream(js, StreamName, streamSubjects, streamMaxAge)
}

// Finished publishes ev fire-and-forget, filling EventID and OccurredAt
// when they are unset.
func (p *Publisher) Finished(_ context.Context, ev FinishedEvent) {
	if p == nil || !p.events.Enabled() {
		return
	}
	if ev.EventID == "" {
		ev.EventID = events.NewEventID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	p.events.Publish(SubjectFinished, ev)
	p.log.Debug("result published", zap.String("post_id", ev.PostID), zap.String("event_id", ev.EventID))
}
