package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStore_UnmarkedIsNotSeen(t *testing.T) {
	s := newMemoryStore(0)
	seen, err := s.Seen(context.Background(), "evt_001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("unmarked event must not be seen")
	}
}

func TestMemoryStore_SeenOnlyAfterMark(t *testing.T) {
	s := newMemoryStore(0)
	ctx := context.Background()

	if seen, _ := s.Seen(ctx, "evt_002"); seen {
		t.Fatal("Seen must not mark the event")
	}
	if seen, _ := s.Seen(ctx, "evt_002"); seen {
		t.Fatal("repeated Seen must not mark the event")
	}
	if err := s.Mark(ctx, "evt_002"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, _ := s.Seen(ctx, "evt_002"); !seen {
		t.Fatal("marked event must be seen")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := newMemoryStore(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Mark(ctx, "evt_004")
	now = now.Add(2 * time.Hour)
	if seen, _ := s.Seen(ctx, "evt_004"); seen {
		t.Fatal("expired entry must not count as seen")
	}
}

func TestRedisStore_SeenAndMark(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := NewStore(context.Background(), Options{Redis: client, Prefix: "test", TTL: time.Hour})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if seen, err := s.Seen(ctx, "evt_A"); err != nil || seen {
		t.Fatalf("first check: seen=%v err=%v", seen, err)
	}
	if mr.Exists("test:idempotent:evt_A") {
		t.Fatal("Seen must not write")
	}
	if err := s.Mark(ctx, "evt_A"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, _ := s.Seen(ctx, "evt_A"); !seen {
		t.Fatal("marked event must be seen")
	}
	if ttl := mr.TTL("test:idempotent:evt_A"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if seen, _ := s.Seen(ctx, "evt_A"); seen {
		t.Fatal("expired key must not be seen")
	}
}

func TestNewStore_DefaultsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := NewStore(context.Background(), Options{Redis: client, Prefix: "test"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_ = s.Mark(context.Background(), "evt_B")
	if ttl := mr.TTL("test:idempotent:evt_B"); ttl != defaultTTL {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestNewStore_FallsBackToMemory(t *testing.T) {
	s, err := NewStore(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected memoryStore when no backend provided, got %T", s)
	}
}

func TestNewStore_RejectsMemoryInProd(t *testing.T) {
	s, err := NewStore(context.Background(), Options{Production: true})
	if err == nil {
		t.Fatalf("expected error in production with no backend, got store %T", s)
	}
	if s != nil {
		t.Fatalf("expected nil store, got %T", s)
	}
}
