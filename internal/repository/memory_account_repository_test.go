package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"resetd/internal/interfaces"
	"resetd/internal/models"
)

func TestMemoryRepositoryCopiesRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAccountRepository()

	a := &models.Account{ID: "u1", Email: "user@example.com", PasswordHash: "h1",
		Reset: &models.ResetEntry{TokenHash: "d1", ExpiresAt: time.Now().Add(time.Minute)}}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a.PasswordHash = "mutated"
	a.Reset.TokenHash = "mutated"

	got, err := repo.Get(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PasswordHash != "h1" || got.Reset.TokenHash != "d1" {
		t.Fatalf("store shares memory with caller: %+v", got)
	}

	got.Reset = nil
	again, _ := repo.Get(ctx, "user@example.com")
	if again.Reset == nil {
		t.Fatalf("mutating a fetched record changed the store")
	}
}

func TestMemoryRepositoryCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAccountRepository()

	if err := repo.Create(ctx, &models.Account{Email: "user@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, &models.Account{Email: "user@example.com"}); !errors.Is(err, interfaces.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestMemoryRepositoryGetUnknown(t *testing.T) {
	_, err := NewMemoryAccountRepository().Get(context.Background(), "ghost@example.com")
	if !errors.Is(err, interfaces.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
