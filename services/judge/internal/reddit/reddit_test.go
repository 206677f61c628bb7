package reddit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/twist-judge/services/judge/internal/content"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, ClientConfig{UserAgent: "test-agent", MaxRetries: 2, RetryBaseDelay: time.Millisecond},
		WithHTTPClient(srv.Client()))
}

const infoComment = `{"kind":"Listing","data":{"children":[{"kind":"t1","data":{
	"name":"t1_abc","link_id":"t3_p1","parent_id":"t3_p1","body":"twist!","author":"alice",
	"author_fullname":"t2_u1","score":7,"created_utc":1700000000.5,"stickied":false}}]}}`

func TestComment_DecodesInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/info" || r.URL.Query().Get("id") != "t1_abc" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("user agent = %q", ua)
		}
		_, _ = w.Write([]byte(infoComment))
	})

	got, err := c.Comment(context.Background(), "t1_abc")
	if err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if got.PostID != "t3_p1" || got.Score != 7 || got.AuthorName != "alice" || !got.IsTopLevel() {
		t.Fatalf("unexpected comment %+v", got)
	}
	if got.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("created at = %v", got.CreatedAt)
	}
}

func TestPost_DeletedAuthorAndRemoval(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[{"kind":"t3","data":{
			"name":"t3_p1","title":"Mystery","author":"[deleted]","removed_by_category":"moderator"}}]}}`))
	})
	p, err := c.Post(context.Background(), "t3_p1")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if p.AuthorName != "" || !p.Removed || p.Title != "Mystery" {
		t.Fatalf("unexpected post %+v", p)
	}
}

func TestInfo_NotFound(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"empty listing": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[]}}`))
		},
		"404": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			if _, err := c.Comment(context.Background(), "t1_gone"); !errors.Is(err, content.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRetry_IdempotentReads(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(infoComment))
	})
	if _, err := c.Comment(context.Background(), "t1_abc"); err != nil {
		t.Fatalf("Comment after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestRetry_NotOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})
	if err := c.ApproveComment(context.Background(), "t1_abc"); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestSubmitComment_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := c.SubmitComment(context.Background(), "t3_p1", "hello"); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestSubmitComment_Form(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/comment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("thing_id") != "t3_p1" || r.PostForm.Get("text") != "hello" || r.PostForm.Get("api_type") != "json" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{
			"name":"t1_new","link_id":"t3_p1","parent_id":"t3_p1","body":"hello","author":"judgebot"}}]}}}`))
	})
	got, err := c.SubmitComment(context.Background(), "t3_p1", "hello")
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	if got.ID != "t1_new" || got.PostID != "t3_p1" {
		t.Fatalf("unexpected comment %+v", got)
	}
}

func TestWrite_APIErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"json":{"errors":[["THREAD_LOCKED","thread is locked","parent"]]}}`))
	})
	_, err := c.EditComment(context.Background(), "t1_abc", "body")
	if err == nil || !strings.Contains(err.Error(), "THREAD_LOCKED") {
		t.Fatalf("expected THREAD_LOCKED error, got %v", err)
	}
}

func TestDistinguishAndRemoveForms(t *testing.T) {
	seen := map[string]string{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/api/distinguish":
			seen["distinguish"] = r.PostForm.Get("how") + "/" + r.PostForm.Get("sticky")
			_, _ = w.Write([]byte(`{"json":{"errors":[]}}`))
		case "/api/remove":
			seen["remove"] = r.PostForm.Get("id") + "/" + r.PostForm.Get("spam")
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	if err := c.DistinguishComment(context.Background(), "t1_abc", true); err != nil {
		t.Fatalf("DistinguishComment: %v", err)
	}
	if err := c.RemoveComment(context.Background(), "t1_abc", true); err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}
	if seen["distinguish"] != "yes/true" || seen["remove"] != "t1_abc/true" {
		t.Errorf("unexpected forms %v", seen)
	}
}

func TestStickyComment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/comments/p1.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"name":"t3_p1"}}]}},
			{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"name":"t1_a","link_id":"t3_p1","parent_id":"t3_p1"}},
				{"kind":"t1","data":{"name":"t1_s","link_id":"t3_p1","parent_id":"t3_p1","stickied":true,"author":"judgebot"}},
				{"kind":"more","data":{}}
			]}}]`))
	})
	got, err := c.StickyComment(context.Background(), "t3_p1")
	if err != nil {
		t.Fatalf("StickyComment: %v", err)
	}
	if got.ID != "t1_s" || !got.Stickied {
		t.Fatalf("unexpected sticky %+v", got)
	}
}

func TestStickyComment_None(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"kind":"Listing","data":{"children":[]}},{"kind":"Listing","data":{"children":[]}}]`))
	})
	if _, err := c.StickyComment(context.Background(), "t3_p1"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMe_PrefixesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"u9","name":"judgebot"}`))
	})
	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.ID != "t2_u9" || me.Name != "judgebot" {
		t.Fatalf("unexpected identity %+v", me)
	}
}

func TestMe_RejectsMalformedID(t *testing.T) {
	for _, body := range []string{`{"id":"","name":"judgebot"}`, `{"id":"U-9","name":"judgebot"}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		if me, err := c.Me(context.Background()); err == nil {
			t.Fatalf("%s: expected error, got %+v", body, me)
		}
	}
}

func TestBreaker_IgnoresNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	cb := gobreaker.NewCircuitBreaker(NewBreakerSettings("reddit-test", 1, time.Minute, time.Minute, 2, zap.NewNop()))
	c := New(srv.URL, ClientConfig{MaxRetries: 0}, WithHTTPClient(srv.Client()), WithCircuitBreaker(cb))

	for i := 0; i < 5; i++ {
		if _, err := c.Post(context.Background(), "t3_gone"); !errors.Is(err, content.ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("breaker state = %v, want closed", cb.State())
	}
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	cb := gobreaker.NewCircuitBreaker(NewBreakerSettings("reddit-test", 1, time.Minute, time.Minute, 2, zap.NewNop()))
	c := New(srv.URL, ClientConfig{MaxRetries: 0}, WithHTTPClient(srv.Client()), WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		_, _ = c.Post(context.Background(), "t3_p1")
	}
	if _, err := c.Post(context.Background(), "t3_p1"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}

func TestNewHTTPClient_PasswordGrant(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls.Add(1)
			_ = r.ParseForm()
			user, _, ok := r.BasicAuth()
			if !ok || user != "cid" || r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("username") != "bot" {
				t.Errorf("unexpected token request user=%q form=%v", user, r.PostForm)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
		case "/api/v1/me":
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("authorization = %q", got)
			}
			if ua := r.Header.Get("User-Agent"); ua != "judge-test" {
				t.Errorf("user agent = %q", ua)
			}
			_, _ = w.Write([]byte(`{"id":"u1","name":"bot"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	hc := NewHTTPClient(context.Background(), Credentials{
		TokenURL: srv.URL + "/token", ClientID: "cid", ClientSecret: "secret",
		Username: "bot", Password: "pw", UserAgent: "judge-test",
	})
	c := New(srv.URL, ClientConfig{UserAgent: "judge-test"}, WithHTTPClient(hc))
	for i := 0; i < 2; i++ {
		if _, err := c.Me(context.Background()); err != nil {
			t.Fatalf("Me: %v", err)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token calls = %d, want 1", tokenCalls.Load())
	}
}
