package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a development-only Store.
// WARNING: state is lost on restart and is not shared across instances.
type MemoryStore struct {
	mu              sync.Mutex
	posts           map[string]time.Time
	candidates      map[string]map[string]int
	finished        map[string]string
	postAnnounce    map[string]string
	commentAnnounce map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:           make(map[string]time.Time),
		candidates:      make(map[string]map[string]int),
		finished:        make(map[string]string),
		postAnnounce:    make(map[string]string),
		commentAnnounce: make(map[string]string),
	}
}

func (s *MemoryStore) TrackPost(_ context.Context, postID string, trackedAt time.Time) error {
	if err := checkPost(postID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[postID] = time.UnixMilli(trackedAt.UnixMilli())
	return nil
}

func (s *MemoryStore) UntrackPost(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, postID)
	return nil
}

func (s *MemoryStore) TrackedPosts(_ context.Context, min, max int64) ([]TrackedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TrackedPost
	for id, at := range s.posts {
		if ms := at.UnixMilli(); ms >= min && ms <= max {
			out = append(out, TrackedPost{ID: id, TrackedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TrackedAt.Equal(out[j].TrackedAt) {
			return out[i].TrackedAt.Before(out[j].TrackedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) IsTrackedPost(_ context.Context, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.posts[postID]
	return ok, nil
}

func (s *MemoryStore) TrackCandidate(_ context.Context, postID, commentID string, score int) error {
	if err := checkPair(postID, commentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.candidates[postID]
	if !ok {
		m = make(map[string]int)
		s.candidates[postID] = m
	}
	m[commentID] = score
	return nil
}

func (s *MemoryStore) UntrackCandidate(_ context.Context, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.candidates[postID]; ok {
		delete(m, commentID)
		if len(m) == 0 {
			delete(s.candidates, postID)
		}
	}
	return nil
}

func (s *MemoryStore) Candidates(_ context.Context, postID string) ([]Candidate, error) {
	if err := checkPost(postID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, 0, len(s.candidates[postID]))
	for id, score := range s.candidates[postID] {
		out = append(out, Candidate{PostID: postID, CommentID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommentID < out[j].CommentID })
	return out, nil
}

func (s *MemoryStore) get(m map[string]string, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m[key]
}

func (s *MemoryStore) put(m map[string]string, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m[key] = value
}

func (s *MemoryStore) del(m map[string]string, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(m, key)
}

func (s *MemoryStore) PostAnnouncement(_ context.Context, postID string) (string, error) {
	return s.get(s.postAnnounce, postID), nil
}

func (s *MemoryStore) SetPostAnnouncement(_ context.Context, postID, announcementID string) error {
	if err := checkPair(postID, announcementID); err != nil {
		return err
	}
	s.put(s.postAnnounce, postID, announcementID)
	return nil
}

func (s *MemoryStore) DeletePostAnnouncement(_ context.Context, postID string) error {
	s.del(s.postAnnounce, postID)
	return nil
}

func (s *MemoryStore) CommentAnnouncement(_ context.Context, commentID string) (string, error) {
	return s.get(s.commentAnnounce, commentID), nil
}

func (s *MemoryStore) SetCommentAnnouncement(_ context.Context, commentID, announcementID string) error {
	if err := checkComment(commentID); err != nil {
		return err
	}
	if err := checkComment(announcementID); err != nil {
		return err
	}
	s.put(s.commentAnnounce, commentID, announcementID)
	return nil
}

func (s *MemoryStore) DeleteCommentAnnouncement(_ context.Context, commentID string) error {
	s.del(s.commentAnnounce, commentID)
	return nil
}

func (s *MemoryStore) FinishedWinner(_ context.Context, postID string) (string, error) {
	return s.get(s.finished, postID), nil
}

func (s *MemoryStore) SetFinished(_ context.Context, postID, winnerID string) error {
	if err := checkPair(postID, winnerID); err != nil {
		return err
	}
	s.put(s.finished, postID, winnerID)
	return nil
}

func (s *MemoryStore) DeleteFinished(_ context.Context, postID string) error {
	s.del(s.finished, postID)
	return nil
}

func (s *MemoryStore) FinishedPosts(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.finished))
	for k, v := range s.finished {
		out[k] = v
	}
	return out, nil
}
