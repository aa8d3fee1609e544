package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creerlio/connect-gate/internal/domain"
)

func TestGetIdempotency_NoScope_ReturnsNotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	rec, err := GetIdempotency(context.Background(), db, "u1", "   ", "k1", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for empty scope, got (%v, %v)", rec, err)
	}
}

func TestIdempotency_CreateGetDuplicateExpire(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "conv-1", "k1", "m1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "u1", "conv-1", "k1", time.Now().UTC())
	if err != nil || got.ResourceID != "m1" || got.Status != 201 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "conv-1", "k1", "m2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	later := rec.ExpiresAt.Add(time.Second)
	if _, err := GetIdempotency(ctx, db, "u1", "conv-1", "k1", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be hidden, got %v", err)
	}
	n, err := PurgeExpiredIdempotency(ctx, db, later)
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}
