package content

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider for local development and tests.
// Failures can be injected per id with Fail.
type MemoryProvider struct {
	mu       sync.Mutex
	me       User
	posts    map[string]Post
	comments map[string]Comment
	failures map[string]error
	ops      []string
	seq      int64
	now      func() time.Time
}

func NewMemoryProvider(me User) *MemoryProvider {
	return &MemoryProvider{
		me:       me,
		posts:    make(map[string]Post),
		comments: make(map[string]Comment),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// SetClock overrides the creation timestamp source for submitted comments.
func (m *MemoryProvider) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryProvider) PutPost(p Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

func (m *MemoryProvider) PutComment(c Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.PostID == "" {
		c.PostID = c.ParentID
	}
	if c.ParentID == "" {
		c.ParentID = c.PostID
	}
	m.comments[c.ID] = c
}

// SetScore updates a stored comment's live score.
func (m *MemoryProvider) SetScore(id string, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.comments[id]; ok {
		c.Score = score
		m.comments[id] = c
	}
}

// Forget drops a post or comment as if it had been deleted upstream.
func (m *MemoryProvider) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	delete(m.comments, id)
}

// Fail makes every read or write touching id return err until cleared with a nil err.
func (m *MemoryProvider) Fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, id)
		return
	}
	m.failures[id] = err
}

// Operations returns the mutating calls made so far, formatted "op:id".
func (m *MemoryProvider) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// CommentsOn returns the live comments under postID ordered by id.
func (m *MemoryProvider) CommentsOn(postID string) []Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryProvider) Post(_ context.Context, id string) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[id]; err != nil {
		return Post{}, err
	}
	p, ok := m.posts[id]
	if !ok {
		return Post{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemoryProvider) Comment(_ context.Context, id string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commentLocked(id)
}

func (m *MemoryProvider) commentLocked(id string) (Comment, error) {
	if err := m.failures[id]; err != nil {
		return Comment{}, err
	}
	c, ok := m.comments[id]
	if !ok {
		return Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryProvider) SubmitComment(_ context.Context, postID, body string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[postID]; err != nil {
		return Comment{}, err
	}
	if _, ok := m.posts[postID]; !ok {
		return Comment{}, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	m.seq++
	id := PrefixComment + "mem" + strconv.FormatInt(m.seq, 36)
	c := Comment{
		ID:         id,
		PostID:     postID,
		ParentID:   postID,
		Body:       body,
		AuthorID:   m.me.ID,
		AuthorName: m.me.Name,
		Permalink:  "/comments/" + postID[len(PrefixPost):] + "/_/" + id[len(PrefixComment):] + "/",
		Score:      1,
		CreatedAt:  m.now(),
	}
	m.comments[id] = c
	m.ops = append(m.ops, "submit:"+id)
	return c, nil
}

func (m *MemoryProvider) EditComment(_ context.Context, id, body string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.commentLocked(id)
	if err != nil {
		return Comment{}, err
	}
	c.Body = body
	m.comments[id] = c
	m.ops = append(m.ops, "edit:"+id)
	return c, nil
}

func (m *MemoryProvider) DeleteComment(_ context.Context, id string) error {
	return m.mutate("delete", id, func(_ Comment) (Comment, bool) { return Comment{}, false })
}

func (m *MemoryProvider) ApproveComment(_ context.Context, id string) error {
	return m.mutate("approve", id, func(c Comment) (Comment, bool) {
		c.Removed, c.Spam = false, false
		return c, true
	})
}

func (m *MemoryProvider) RemoveComment(_ context.Context, id string, spam bool) error {
	return m.mutate("remove", id, func(c Comment) (Comment, bool) {
		c.Removed, c.Spam = true, spam
		return c, true
	})
}

func (m *MemoryProvider) DistinguishComment(_ context.Context, id string, sticky bool) error {
	return m.mutate("distinguish", id, func(c Comment) (Comment, bool) {
		c.Distinguished, c.Stickied = true, sticky
		return c, true
	})
}

func (m *MemoryProvider) LockComment(_ context.Context, id string) error {
	return m.mutate("lock", id, func(c Comment) (Comment, bool) {
		c.Locked = true
		return c, true
	})
}

// mutate applies fn to comment id; fn returning keep=false deletes it.
func (m *MemoryProvider) mutate(op, id string, fn func(Comment) (Comment, bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.commentLocked(id)
	if err != nil {
		return err
	}
	if next, keep := fn(c); keep {
		m.comments[id] = next
	} else {
		delete(m.comments, id)
	}
	m.ops = append(m.ops, op+":"+id)
	return nil
}

func (m *MemoryProvider) StickyComment(_ context.Context, postID string) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[postID]; err != nil {
		return Comment{}, err
	}
	for _, c := range m.comments {
		if c.PostID == postID && c.Stickied && !c.Removed {
			return c, nil
		}
	}
	return Comment{}, fmt.Errorf("sticky on %s: %w", postID, ErrNotFound)
}

func (m *MemoryProvider) Me(context.Context) (User, error) {
	return m.me, nil
}
