package policy

import (
	"testing"

	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
)

func enabled() config.Settings {
	s := config.Defaults()
	s.Enabled = true
	s.TrackNewPosts = true
	return s
}

func TestTrackablePost(t *testing.T) {
	cases := []struct {
		name  string
		title string
		mod   func(*config.Settings)
		want  bool
	}{
		{"prefixed", "TI hello", nil, true},
		{"case sensitive", "ti hello", nil, false},
		{"no space", "TIhello", nil, false},
		{"disabled", "TI hello", func(s *config.Settings) { s.Enabled = false }, false},
		{"new posts off", "TI hello", func(s *config.Settings) { s.TrackNewPosts = false }, false},
		{"custom prefix", "[J] x", func(s *config.Settings) { s.PostPrefix = "[J]" }, true},
	}
	for _, tc := range cases {
		s := enabled()
		if tc.mod != nil {
			tc.mod(&s)
		}
		if got := TrackablePost(content.Post{ID: "t3_p", Title: tc.title}, s); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTrackableComment(t *testing.T) {
	top := content.Comment{ID: "t1_c", PostID: "t3_p", ParentID: "t3_p", Body: "FU answer"}
	reply := top
	reply.ParentID = "t1_other"
	unprefixed := top
	unprefixed.Body = "answer"

	s := enabled()
	if !TrackableComment(top, s) {
		t.Fatal("expected top-level prefixed comment to be trackable")
	}
	if TrackableComment(reply, s) {
		t.Fatal("nested reply must not be trackable even with prefix")
	}
	if TrackableComment(unprefixed, s) {
		t.Fatal("comment without prefix must not be trackable")
	}

	s.TrackNewPosts = false
	if !TrackableComment(top, s) {
		t.Fatal("comment tracking does not depend on trackNewPosts")
	}
	s.Enabled = false
	if TrackableComment(top, s) {
		t.Fatal("disabled settings must reject comments")
	}
}
