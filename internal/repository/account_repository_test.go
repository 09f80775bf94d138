package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
)

func TestAccountRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	acc := &domain.Account{Name: "Jane", Email: "jane@example.com", PasswordHash: "hash", IsVerified: true}
	if err := repo.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("expected generated id")
	}

	byEmail, err := repo.FindByEmail(ctx, "jane@example.com")
	if err != nil || byEmail.ID != acc.ID {
		t.Fatalf("find by email: %+v err=%v", byEmail, err)
	}
	byID, err := repo.FindByID(ctx, acc.ID)
	if err != nil || byID.Email != acc.Email {
		t.Fatalf("find by id: %+v err=%v", byID, err)
	}

	exists, err := repo.ExistsByEmail(ctx, "jane@example.com")
	if err != nil || !exists {
		t.Fatalf("expected exists, got %v err=%v", exists, err)
	}
	exists, err = repo.ExistsByEmail(ctx, "nobody@example.com")
	if err != nil || exists {
		t.Fatalf("expected not exists, got %v err=%v", exists, err)
	}
}

func TestAccountRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	if _, err := repo.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepositoryDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	if err := repo.Create(ctx, &domain.Account{Name: "A", Email: "dup@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := repo.Create(ctx, &domain.Account{Name: "B", Email: "dup@example.com", PasswordHash: "h"})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestAccountRepositoryConcurrentCreateKeepsOneAccount(t *testing.T) {
	ctx := context.Background()
	db := newRepositoryDBForTest(t)
	repo := NewAccountRepository(db)

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, &domain.Account{Name: "Racer", Email: "race@example.com", PasswordHash: "h"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateAccount):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 create and %d duplicates, got %d/%d", workers-1, created, duplicates)
	}
	var count int64
	db.Model(&domain.Account{}).Where("email = ?", "race@example.com").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one stored account, got %d", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]bool{
		"UNIQUE constraint failed: accounts.email":                          true,
		`ERROR: duplicate key value violates unique constraint "idx_email"`: true,
		"connection refused":                                                false,
	}
	for msg, want := range cases {
		if got := isUniqueViolation(errors.New(msg)); got != want {
			t.Fatalf("isUniqueViolation(%q)=%v want=%v", msg, got, want)
		}
	}
	if isUniqueViolation(nil) {
		t.Fatal("nil must not be a unique violation")
	}
}

func TestAccountRepositoryUpdateProfile(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(newRepositoryDBForTest(t))

	acc := &domain.Account{Name: "Jane", Email: "jane@example.com", PasswordHash: "hash", IsVerified: true}
	if err := repo.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := repo.UpdateProfile(ctx, acc.ID, "Jane Doe", true)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "Jane Doe" || !updated.IsOnboarded || updated.Email != acc.Email {
		t.Fatalf("unexpected updated account: %+v", updated)
	}

	// A false flag must be written, not skipped as a zero value.
	updated, err = repo.UpdateProfile(ctx, acc.ID, "Jane Doe", false)
	if err != nil || updated.IsOnboarded {
		t.Fatalf("expected onboarding cleared, got %+v err=%v", updated, err)
	}

	if _, err := repo.UpdateProfile(ctx, "missing", "Nobody", true); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
