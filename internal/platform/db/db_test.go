package db

import (
	"context"
	"testing"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpen_RejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected parse error")
	}
}
