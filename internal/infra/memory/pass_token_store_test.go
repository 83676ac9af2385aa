package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"anniv-certificate-service/internal/domain"
)

func TestPassTokenStoreLifecycle(t *testing.T) {
	store := NewPassTokenStore()
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, domain.PassToken{Token: "tok-1", QuizCode: "QZ"}, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Lookup(ctx, "tok-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.QuizCode != "QZ" {
		t.Fatalf("unexpected token %+v", got)
	}

	now = now.Add(time.Hour)
	if _, err := store.Lookup(ctx, "tok-1"); !errors.Is(err, domain.ErrPassTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired token pruned")
	}
}

func TestPassTokenStoreUnknown(t *testing.T) {
	store := NewPassTokenStore()
	if _, err := store.Lookup(context.Background(), "missing"); !errors.Is(err, domain.ErrPassTokenInvalid) {
		t.Fatalf("expected ErrPassTokenInvalid, got %v", err)
	}
}
