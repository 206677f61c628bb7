package publisher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/example/twist-judge/internal/platform/events"
)

type captureJS struct {
	subject string
	data    []byte
}

func (c *captureJS) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	c.subject, c.data = subj, data
	return nil, nil
}

func TestFinished_FillsIDAndTime(t *testing.T) {
	js := &captureJS{}
	p := New(events.New(js, nil), nil)

	p.Finished(context.Background(), FinishedEvent{PostID: "t3_p", WinnerID: "t1_w", AnnouncementID: "t1_s", Score: 10})

	if js.subject != SubjectFinished {
		t.Fatalf("unexpected subject %q", js.subject)
	}
	var got FinishedEvent
	if err := json.Unmarshal(js.data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID == "" || got.OccurredAt.IsZero() {
		t.Fatalf("expected generated id and time, got %+v", got)
	}
	if got.PostID != "t3_p" || got.WinnerID != "t1_w" || got.Score != 10 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestFinished_StubIsNoop(t *testing.T) {
	var p *Publisher
	p.Finished(context.Background(), FinishedEvent{PostID: "t3_p"})
	New(events.New(nil, nil), nil).Finished(context.Background(), FinishedEvent{PostID: "t3_p"})
}

type fakeStreams struct {
	added []*nats.StreamConfig
}

func (f *fakeStreams) StreamInfo(string, ...nats.JSOpt) (*nats.StreamInfo, error) {
	return nil, nats.ErrStreamNotFound
}

func (f *fakeStreams) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.added = append(f.added, cfg)
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeStreams) UpdateStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestEnsureStream(t *testing.T) {
	f := &fakeStreams{}
	if err := EnsureStream(f); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(f.added) != 1 || f.added[0].Name != StreamName || f.added[0].Subjects[0] != "judge.results.>" {
		t.Fatalf("unexpected stream config %+v", f.added)
	}
}
