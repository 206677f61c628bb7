package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Setting keys as stored and exchanged over the settings API.
const (
	KeyEnabled        = "enabled"
	KeyTrackNewPosts  = "trackNewPosts"
	KeyStickyMinutes  = "stickyMinutes"
	KeyPostPrefix     = "postPrefix"
	KeyCommentPrefix  = "commentPrefix"
	KeyStickyTemplate = "stickyTemplate"
	KeyNewPostSticky  = "newPostSticky"
	KeyAllowOp        = "allowOp"
)

const (
	DefaultStickyTemplate = "This is how you fucked up, as was written by u/{{author}} in [this comment]({{permalink}}):\n\n{{body}}"
	DefaultNewPostSticky  = "Thank you for submitting what you did. You will find out how you fucked up in 12 hours."
)

var (
	ErrUnknownSetting = errors.New("config: unknown setting")
	ErrInvalidSetting = errors.New("config: invalid setting value")
)

// Settings is the moderator-editable configuration snapshot.
type Settings struct {
	Enabled        bool    `json:"enabled"`
	TrackNewPosts  bool    `json:"trackNewPosts"`
	StickyMinutes  float64 `json:"stickyMinutes"`
	PostPrefix     string  `json:"postPrefix"`
	CommentPrefix  string  `json:"commentPrefix"`
	StickyTemplate string  `json:"stickyTemplate"`
	NewPostSticky  string  `json:"newPostSticky"`
	AllowOp        bool    `json:"allowOp"`
}

// StickyWindow is how long a post stays open for replies, rounded to the
// nearest second.
func (s Settings) StickyWindow() time.Duration {
	return time.Duration(math.Round(s.StickyMinutes*60)) * time.Second
}

func Defaults() Settings {
	return Settings{
		StickyMinutes:  720,
		PostPrefix:     "TI ",
		CommentPrefix:  "FU ",
		StickyTemplate: DefaultStickyTemplate,
		NewPostSticky:  DefaultNewPostSticky,
		AllowOp:        true,
	}
}

// Provider yields the current Settings. Implementations substitute the
// default for any missing or mistyped value.
type Provider interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticProvider always returns the same snapshot.
type StaticProvider struct {
	Value Settings
}

func (p StaticProvider) Settings(context.Context) (Settings, error) { return p.Value, nil }

// Editor is a Provider whose values can be patched at runtime.
type Editor interface {
	Provider
	Update(ctx context.Context, patch map[string]json.RawMessage) (Settings, error)
}

// MemoryProvider is an in-process Editor used when Redis is not configured.
type MemoryProvider struct {
	mu  sync.RWMutex
	cur Settings
}

func NewMemoryProvider(initial Settings) *MemoryProvider {
	return &MemoryProvider{cur: initial}
}

func (p *MemoryProvider) Settings(context.Context) (Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cur, nil
}

func (p *MemoryProvider) Update(_ context.Context, patch map[string]json.RawMessage) (Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.cur
	for key, v := range patch {
		if err := next.set(key, v); err != nil {
			return Settings{}, err
		}
	}
	p.cur = next
	return next, nil
}

// Apply decodes raw JSON scalars onto s, keeping s's value for any key that is
// absent or has the wrong JSON type.
func (s Settings) Apply(raw map[string]string) Settings {
	for key, v := range raw {
		_ = s.set(key, json.RawMessage(v))
	}
	return s
}

func (s *Settings) set(key string, v json.RawMessage) error {
	var err error
	switch key {
	case KeyEnabled:
		err = decodeInto(v, &s.Enabled)
	case KeyTrackNewPosts:
		err = decodeInto(v, &s.TrackNewPosts)
	case KeyAllowOp:
		err = decodeInto(v, &s.AllowOp)
	case KeyStickyMinutes:
		var f float64
		if err = decodeInto(v, &f); err == nil {
			if f < 0 {
				return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, key)
			}
			s.StickyMinutes = f
		}
	case KeyPostPrefix:
		err = decodeInto(v, &s.PostPrefix)
	case KeyCommentPrefix:
		err = decodeInto(v, &s.CommentPrefix)
	case KeyStickyTemplate:
		err = decodeInto(v, &s.StickyTemplate)
	case KeyNewPostSticky:
		err = decodeInto(v, &s.NewPostSticky)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}
	return nil
}

// decodeInto refuses null so a stored null falls back to the default.
func decodeInto[T any](raw json.RawMessage, dst *T) error {
	if string(raw) == "null" {
		return errors.New("null value")
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// RedisProvider reads settings from a Redis hash whose fields hold JSON scalars.
type RedisProvider struct {
	client redis.Cmdable
	key    string
}

func NewRedisProvider(client redis.Cmdable, prefix string) *RedisProvider {
	return &RedisProvider{client: client, key: prefix + ":settings"}
}

func (p *RedisProvider) Settings(ctx context.Context) (Settings, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return Defaults(), fmt.Errorf("load settings: %w", err)
	}
	return Defaults().Apply(raw), nil
}

// Update validates every key in patch against the current snapshot and
// writes them in a single HSET.
func (p *RedisProvider) Update(ctx context.Context, patch map[string]json.RawMessage) (Settings, error) {
	current, err := p.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if len(patch) == 0 {
		return current, nil
	}
	values := make(map[string]any, len(patch))
	for key, v := range patch {
		if err := current.set(key, v); err != nil {
			return Settings{}, err
		}
		values[key] = string(v)
	}
	if err := p.client.HSet(ctx, p.key, values).Err(); err != nil {
		return Settings{}, fmt.Errorf("store settings: %w", err)
	}
	return current, nil
}

var (
	_ Editor = (*RedisProvider)(nil)
	_ Editor = (*MemoryProvider)(nil)
)
