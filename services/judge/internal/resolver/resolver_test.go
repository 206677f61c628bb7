package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/store"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.MemoryStore
	content *content.MemoryProvider
	post    content.Post
	r       *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		content: content.NewMemoryProvider(content.User{ID: "t2_bot", Name: "judge-bot"}),
		post:    content.Post{ID: "t3_p", Title: "TI hello", AuthorID: "t2_op", AuthorName: "op"},
	}
	f.content.PutPost(f.post)
	f.r = New(f.store, f.content, WithConcurrency(2))
	return f
}

func (f *fixture) candidate(t *testing.T, c content.Comment) {
	t.Helper()
	c.PostID, c.ParentID = f.post.ID, f.post.ID
	if c.AuthorID == "" {
		c.AuthorID = "t2_" + c.ID[3:]
	}
	f.content.PutComment(c)
	if err := f.store.TrackCandidate(context.Background(), f.post.ID, c.ID, c.Score); err != nil {
		t.Fatalf("track: %v", err)
	}
}

func settings() config.Settings {
	s := config.Defaults()
	s.Enabled = true
	return s
}

func TestResolve_HighestLiveScoreWins(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_a", Body: "FU first", Score: 5, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_b", Body: "FU second", Score: 10, CreatedAt: t0.Add(time.Minute)})
	// Stored snapshot says b leads, live data says a.
	f.content.SetScore("t1_a", 50)

	w, err := f.r.Resolve(context.Background(), f.post, settings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.ID != "t1_a" {
		t.Fatalf("expected t1_a by live score, got %+v", w)
	}
}

func TestResolve_PrefixRequired(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_a", Body: "FU ok", Score: 1, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_b", Body: "edited away the prefix", Score: 1000, CreatedAt: t0})

	w, _ := f.r.Resolve(context.Background(), f.post, settings())
	if w == nil || w.ID != "t1_a" {
		t.Fatalf("unprefixed comment must never win, got %+v", w)
	}
}

func TestResolve_TieBreaks(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_late", Body: "FU x", Score: 7, CreatedAt: t0.Add(time.Hour)})
	f.candidate(t, content.Comment{ID: "t1_early", Body: "FU y", Score: 7, CreatedAt: t0})

	w, _ := f.r.Resolve(context.Background(), f.post, settings())
	if w == nil || w.ID != "t1_early" {
		t.Fatalf("expected earliest of equal scores, got %+v", w)
	}

	f2 := newFixture(t)
	f2.candidate(t, content.Comment{ID: "t1_zz", Body: "FU x", Score: 7, CreatedAt: t0})
	f2.candidate(t, content.Comment{ID: "t1_aa", Body: "FU y", Score: 7, CreatedAt: t0})
	for i := 0; i < 5; i++ {
		w, _ := f2.r.Resolve(context.Background(), f2.post, settings())
		if w == nil || w.ID != "t1_aa" {
			t.Fatalf("expected lexically smallest id on full tie, got %+v", w)
		}
	}
}

func TestResolve_Filters(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_removed", Body: "FU a", Score: 100, Removed: true, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_spam", Body: "FU b", Score: 90, Spam: true, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_deleted", Body: "FU c", Score: 80, AuthorID: "", CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_op", Body: "FU d", Score: 70, AuthorID: "t2_op", CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_ok", Body: "FU e", Score: 1, CreatedAt: t0})
	// PutComment defaulted the author, so blank it again to model deletion.
	c, _ := f.content.Comment(context.Background(), "t1_deleted")
	c.AuthorID = ""
	f.content.PutComment(c)

	w, _ := f.r.Resolve(context.Background(), f.post, settings())
	if w == nil || w.ID != "t1_op" {
		t.Fatalf("with allowOp the op may win, got %+v", w)
	}

	s := settings()
	s.AllowOp = false
	w, _ = f.r.Resolve(context.Background(), f.post, s)
	if w == nil || w.ID != "t1_ok" {
		t.Fatalf("without allowOp expected t1_ok, got %+v", w)
	}
}

func TestResolve_FetchFailuresDropCandidate(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_flaky", Body: "FU a", Score: 100, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_gone", Body: "FU b", Score: 90, CreatedAt: t0})
	f.candidate(t, content.Comment{ID: "t1_ok", Body: "FU c", Score: 1, CreatedAt: t0})
	f.content.Fail("t1_flaky", errors.New("upstream 503"))
	f.content.Forget("t1_gone")

	w, err := f.r.Resolve(context.Background(), f.post, settings())
	if err != nil {
		t.Fatalf("fetch failures must not fail resolution: %v", err)
	}
	if w == nil || w.ID != "t1_ok" {
		t.Fatalf("expected surviving t1_ok, got %+v", w)
	}
}

func TestResolve_NoSurvivorLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	f.candidate(t, content.Comment{ID: "t1_a", Body: "nope", Score: 3, CreatedAt: t0})

	w, err := f.r.Resolve(context.Background(), f.post, settings())
	if err != nil || w != nil {
		t.Fatalf("expected no winner, got %+v %v", w, err)
	}
	cands, _ := f.store.Candidates(context.Background(), f.post.ID)
	if len(cands) != 1 {
		t.Fatalf("resolution must not mutate candidates, got %+v", cands)
	}
	if v, _ := f.store.FinishedWinner(context.Background(), f.post.ID); v != "" {
		t.Fatalf("resolution must not mark finished, got %q", v)
	}
}

type failingStore struct{ store.Store }

func (failingStore) Candidates(context.Context, string) ([]store.Candidate, error) {
	return nil, errors.New("redis down")
}

func TestResolve_ListFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	r := New(failingStore{f.store}, f.content)
	if _, err := r.Resolve(context.Background(), f.post, settings()); err == nil {
		t.Fatal("expected store error")
	}
}
