// Package consumer drains the JUDGE_EVENTS JetStream stream and hands each
// notification to the reactor.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/twist-judge/internal/platform/natsconn"
	"github.com/example/twist-judge/services/judge/internal/idempotency"
	"github.com/example/twist-judge/services/judge/internal/metrics"
)

const (
	StreamName    = "JUDGE_EVENTS"
	SubjectPrefix = "judge.events."
	DLQSubject    = "judge.dlq.events"

	eventSubjects = "judge.events.>"
	dlqSubjects   = "judge.dlq.>"
	durableName   = "judge_reactor"
	streamMaxAge  = 7 * 24 * time.Hour
	markTimeout   = 2 * time.Second
)

// Envelope wraps every notification payload.
type Envelope struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Fetcher is a pull subscription.
type Fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Message is the acknowledgement surface of a JetStream message.
type Message interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Metadata() (*nats.MsgMetadata, error)
}

// DLQPublisher receives messages that exhausted their deliveries.
type DLQPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Options struct {
	BatchSize   int
	Concurrency int
	MaxDeliver  int
	FetchWait   time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.FetchWait <= 0 {
		o.FetchWait = 2 * time.Second
	}
	return o
}

type Consumer struct {
	handlers map[string]HandlerFunc
	idem     idempotency.Store
	dlq      DLQPublisher
	opts     Options
	metrics  metrics.Recorder
	log      *zap.Logger
}

func New(handlers map[string]HandlerFunc, idem idempotency.Store, dlq DLQPublisher, opts Options, rec metrics.Recorder, log *zap.Logger) *Consumer {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{handlers: handlers, idem: idem, dlq: dlq, opts: opts.withDefaults(), metrics: rec, log: log}
}

// JetStream is what Subscribe needs from nats.JetStreamContext.
type JetStream interface {
	natsconn.StreamManager
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Subscribe makes sure the stream covers both the event and DLQ subjects
// and binds the durable pull consumer.
func Subscribe(js JetStream) (*nats.Subscription, error) {
	for _, subj := range []string{eventSubjects, dlqSubjects} {
		if err := natsconn.EnsureStream(js, StreamName, subj, streamMaxAge); err != nil {
			return nil, fmt.Errorf("ensure stream %s (%s): %w", StreamName, subj, err)
		}
	}
	return js.PullSubscribe(eventSubjects, durableName, nats.BindStream(StreamName), nats.ManualAck())
}

// Run fetches batches until ctx is cancelled. Messages in a batch are
// handled concurrently up to Options.Concurrency.
func (c *Consumer) Run(ctx context.Context, sub Fetcher) error {
	c.log.Info("event consumer started", zap.String("stream", StreamName), zap.String("durable", durableName))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.opts.BatchSize, nats.MaxWait(c.opts.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Error("event consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(c.opts.Concurrency)
		for _, m := range msgs {
			m := m
			g.Go(func() error {
				c.Handle(ctx, m.Subject, m.Data, m)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// Handle processes one message and returns the recorded outcome.
func (c *Consumer) Handle(ctx context.Context, subject string, data []byte, m Message) string {
	typ := strings.TrimPrefix(subject, SubjectPrefix)
	delivered := uint64(1)
	if md, err := m.Metadata(); err == nil && md != nil {
		delivered = md.NumDelivered
	}

	h, ok := c.handlers[typ]
	if !ok {
		c.log.Debug("ignoring unknown notification", zap.String("subject", subject))
		_ = m.Ack()
		return c.record("unknown", metrics.OutcomeIgnored)
	}

	if c.opts.MaxDeliver > 0 && int(delivered) > c.opts.MaxDeliver {
		c.deadLetter(subject, data, fmt.Sprintf("max deliveries exceeded: %d", delivered))
		_ = m.Ack()
		return c.record(typ, metrics.OutcomeDLQ)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("bad envelope", zap.String("subject", subject), zap.Error(err))
		_ = m.Ack()
		return c.record(typ, metrics.OutcomeInvalid)
	}

	dedup := env.EventID != "" && c.idem != nil
	if dedup {
		seen, err := c.idem.Seen(ctx, env.EventID)
		switch {
		case err != nil:
			c.log.Warn("dedup unavailable, processing anyway", zap.String("event_id", env.EventID), zap.Error(err))
		case seen:
			_ = m.Ack()
			return c.record(typ, metrics.OutcomeDuplicate)
		}
	}

	if err := h(ctx, env.Data); err != nil {
		if errors.Is(err, ErrBadPayload) {
			c.log.Warn("bad payload", zap.String("subject", subject), zap.String("event_id", env.EventID), zap.Error(err))
			_ = m.Ack()
			return c.record(typ, metrics.OutcomeInvalid)
		}
		c.log.Warn("notification failed",
			zap.String("subject", subject),
			zap.String("event_id", env.EventID),
			zap.Uint64("attempt", delivered),
			zap.Error(err),
		)
		_ = m.NakWithDelay(backoffDelay(delivered))
		return c.record(typ, metrics.OutcomeRetry)
	}

	if dedup {
		// Recorded even when ctx was cancelled after the handler succeeded.
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
		if err := c.idem.Mark(mctx, env.EventID); err != nil {
			c.log.Warn("mark event id", zap.String("event_id", env.EventID), zap.Error(err))
		}
		cancel()
	}
	_ = m.Ack()
	return c.record(typ, metrics.OutcomeOK)
}

func (c *Consumer) record(typ, outcome string) string {
	c.metrics.RecordEvent(typ, outcome)
	return outcome
}

func (c *Consumer) deadLetter(subject string, data []byte, reason string) {
	if c.dlq == nil {
		c.log.Error("dropping undeliverable notification", zap.String("subject", subject), zap.String("reason", reason))
		return
	}
	msg := map[string]any{"subject": subject, "reason": reason, "payload": json.RawMessage(data)}
	if !json.Valid(data) {
		msg["payload"] = string(data)
	}
	b, _ := json.Marshal(msg)
	if _, err := c.dlq.Publish(DLQSubject, b); err != nil {
		c.log.Error("dlq publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
