// Package events provides a fire-and-forget JetStream publisher for
// outbound domain events.
package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AsyncPublisher is the subset of nats.JetStreamContext used for publishing.
type AsyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher publishes JSON events. The zero value and a nil pointer are both
// safe no-op stubs.
type Publisher struct {
	js  AsyncPublisher
	log *zap.Logger
}

// New creates a Publisher. Pass js=nil to get a no-op stub.
func New(js AsyncPublisher, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// NewEventID returns a fresh id for an outbound event.
func NewEventID() string { return uuid.NewString() }

// Enabled reports whether events actually leave the process.
func (p *Publisher) Enabled() bool { return p != nil && p.js != nil }

// Publish marshals v and sends it asynchronously. Failures are logged as
// warnings and never surface to the caller.
func (p *Publisher) Publish(subject string, v any) {
	if !p.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
