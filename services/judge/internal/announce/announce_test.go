package announce

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/store"
)

func newManager(t *testing.T) (*Manager, *store.MemoryStore, *content.MemoryProvider) {
	t.Helper()
	st := store.NewMemoryStore()
	cp := content.NewMemoryProvider(content.User{ID: "t2_bot", Name: "judge-bot"})
	cp.PutPost(content.Post{ID: "t3_p", Title: "TI hello", AuthorID: "t2_op"})
	return New(st, cp), st, cp
}

func countOps(ops []string, prefix string) int {
	n := 0
	for _, op := range ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func TestAnnounce_CreatesThenEdits(t *testing.T) {
	m, st, cp := newManager(t)
	ctx := context.Background()

	first, err := m.Announce(ctx, "t3_p", "pending")
	if err != nil {
		t.Fatalf("first announce: %v", err)
	}
	if !first.IsTopLevel() {
		t.Fatalf("announcement must be top-level, got %+v", first)
	}
	got, _ := cp.Comment(ctx, first.ID)
	if !got.Distinguished || !got.Stickied || !got.Locked {
		t.Fatalf("expected pinned and locked announcement, got %+v", got)
	}

	second, err := m.Announce(ctx, "t3_p", "pending")
	if err != nil {
		t.Fatalf("second announce: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second call must edit, not create: %s vs %s", second.ID, first.ID)
	}
	if n := countOps(cp.Operations(), "submit:"); n != 1 {
		t.Fatalf("expected exactly one submit, got %d", n)
	}
	if n := countOps(cp.Operations(), "edit:"); n != 1 {
		t.Fatalf("expected one edit, got %d", n)
	}

	third, _ := m.Announce(ctx, "t3_p", "winner text")
	if third.ID != first.ID || third.Body != "winner text" {
		t.Fatalf("unexpected update result %+v", third)
	}
	if v, _ := st.PostAnnouncement(ctx, "t3_p"); v != first.ID {
		t.Fatalf("mapping drifted: %q", v)
	}
	if n := len(cp.CommentsOn("t3_p")); n != 1 {
		t.Fatalf("expected a single comment on the post, got %d", n)
	}
}

func TestAnnounce_ReplacesVanishedComment(t *testing.T) {
	m, st, cp := newManager(t)
	ctx := context.Background()

	first, _ := m.Announce(ctx, "t3_p", "v1")
	cp.Forget(first.ID)

	second, err := m.Announce(ctx, "t3_p", "v2")
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh comment after the old one vanished")
	}
	if v, _ := st.PostAnnouncement(ctx, "t3_p"); v != second.ID {
		t.Fatalf("mapping must point at the new comment, got %q", v)
	}
}

func TestAnnounce_EditFailureDeletesStaleComment(t *testing.T) {
	m, st, cp := newManager(t)
	ctx := context.Background()

	first, _ := m.Announce(ctx, "t3_p", "v1")
	cp.Fail(first.ID, errors.New("403 forbidden"))

	second, err := m.Announce(ctx, "t3_p", "v2")
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected replacement comment")
	}
	if v, _ := st.PostAnnouncement(ctx, "t3_p"); v != second.ID {
		t.Fatalf("unexpected mapping %q", v)
	}
}

func TestAnnounce_SubmitFailureReturnsError(t *testing.T) {
	m, st, cp := newManager(t)
	cp.Fail("t3_p", errors.New("rate limited"))

	if _, err := m.Announce(context.Background(), "t3_p", "x"); err == nil {
		t.Fatal("expected error")
	}
	if v, _ := st.PostAnnouncement(context.Background(), "t3_p"); v != "" {
		t.Fatalf("no mapping expected, got %q", v)
	}
}

func TestRemove_UsesMappingThenOwnSticky(t *testing.T) {
	m, st, cp := newManager(t)
	ctx := context.Background()

	c, _ := m.Announce(ctx, "t3_p", "x")
	if err := m.Remove(ctx, "t3_p"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := cp.Comment(ctx, c.ID); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("announcement should be deleted, got %v", err)
	}
	if v, _ := st.PostAnnouncement(ctx, "t3_p"); v != "" {
		t.Fatalf("mapping should be gone, got %q", v)
	}

	// Unmapped sticky written by the app is still cleaned up.
	orphan, _ := cp.SubmitComment(ctx, "t3_p", "orphan")
	_ = cp.DistinguishComment(ctx, orphan.ID, true)
	if err := m.Remove(ctx, "t3_p"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := cp.Comment(ctx, orphan.ID); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("orphan sticky should be deleted, got %v", err)
	}

	// A moderator's sticky is left alone.
	cp.PutComment(content.Comment{ID: "t1_modnote", PostID: "t3_p", AuthorID: "t2_mod", Stickied: true})
	_ = m.Remove(ctx, "t3_p")
	if _, err := cp.Comment(ctx, "t1_modnote"); err != nil {
		t.Fatalf("foreign sticky must survive, got %v", err)
	}
}

func TestApproveAndHide(t *testing.T) {
	m, _, cp := newManager(t)
	ctx := context.Background()

	c, _ := m.Announce(ctx, "t3_p", "x")
	if err := m.Hide(ctx, "t3_p"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	got, _ := cp.Comment(ctx, c.ID)
	if !got.Removed || got.Spam {
		t.Fatalf("expected removed, not spammed, announcement, got %+v", got)
	}
	if err := m.Approve(ctx, "t3_p"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ = cp.Comment(ctx, c.ID)
	if got.Removed || !got.Distinguished {
		t.Fatalf("expected approved and distinguished, got %+v", got)
	}
}

func TestRenderWinner(t *testing.T) {
	w := content.Comment{AuthorName: "alice", Permalink: "/r/x/comments/p/_/c/", Body: "FU line one\nline two"}
	got := RenderWinner(config.DefaultStickyTemplate, w)
	want := "This is how you fucked up, as was written by u/alice in [this comment](/r/x/comments/p/_/c/):\n\n\n> FU line one\n> line two"
	if got != want {
		t.Fatalf("unexpected render:\n%q\nwant\n%q", got, want)
	}
	if out := RenderWinner("{{unknown}} {{author}}", w); out != "{{unknown}} alice" {
		t.Fatalf("unknown placeholders must stay verbatim, got %q", out)
	}
}

func TestRenderPending(t *testing.T) {
	if got := RenderPending("Hi {{author}}, wait. {{body}}", "op"); got != "Hi op, wait. {{body}}" {
		t.Fatalf("unexpected render %q", got)
	}
	if got := RenderPending(config.DefaultNewPostSticky, "op"); got != config.DefaultNewPostSticky {
		t.Fatalf("template without placeholders must be unchanged, got %q", got)
	}
}
