package files

import (
	"context"
	"errors"
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestMemoryRepoListSignedExpiringBefore(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	mustCreate := func(f File) File {
		t.Helper()
		created, err := repo.Create(ctx, f)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return created
	}

	late := mustCreate(File{UserID: "u", Key: "late", IsSigned: true, ExpiryTime: ptr(now.Add(90 * time.Minute))})
	early := mustCreate(File{UserID: "u", Key: "early", IsSigned: true, ExpiryTime: ptr(now.Add(-time.Minute))})
	mustCreate(File{UserID: "u", Key: "valid", IsSigned: true, ExpiryTime: ptr(now.Add(10 * time.Hour))})
	mustCreate(File{UserID: "u", Key: "public"})

	out, err := repo.ListSignedExpiringBefore(ctx, now.Add(2*time.Hour), 10, 0)
	if err != nil {
		t.Fatalf("ListSignedExpiringBefore: %v", err)
	}
	if len(out) != 2 || out[0].ID != early.ID || out[1].ID != late.ID {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestMemoryRepoUpdateNeverMovesExpiryBack(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	f, err := repo.Create(ctx, File{UserID: "u", Key: "k", URL: "old", IsSigned: true, ExpiryTime: ptr(now)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.UpdateURLAndExpiry(ctx, f.ID, "new", now.Add(24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 row, got %d err=%v", n, err)
	}
	n, err = repo.UpdateURLAndExpiry(ctx, f.ID, "stale", now.Add(23*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected 0 rows for older expiry, got %d err=%v", n, err)
	}

	got, err := repo.FindByKey(ctx, "k")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if got.URL != "new" || !got.ExpiryTime.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryRepoRejectsDuplicateKey(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if _, err := repo.Create(ctx, File{UserID: "u", Key: "k"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(ctx, File{UserID: "u", Key: "k"}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestMemoryRepoOwnership(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	f, _ := repo.Create(ctx, File{UserID: "owner", Key: "k"})

	if _, err := repo.GetByID(ctx, "other", f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "other", f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "owner", f.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestStateAt(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		file File
		want State
	}{
		{name: "public", file: File{}, want: StateUnsigned},
		{name: "valid", file: File{IsSigned: true, ExpiryTime: ptr(now.Add(3 * time.Hour))}, want: StateSignedValid},
		{name: "within lookahead", file: File{IsSigned: true, ExpiryTime: ptr(now.Add(30 * time.Minute))}, want: StateSignedExpiring},
		{name: "at threshold", file: File{IsSigned: true, ExpiryTime: ptr(now.Add(2 * time.Hour))}, want: StateSignedExpiring},
		{name: "expired", file: File{IsSigned: true, ExpiryTime: ptr(now.Add(-time.Hour))}, want: StateSignedExpiring},
	}
	for _, tt := range tests {
		if got := StateAt(tt.file, now, 2*time.Hour); got != tt.want {
			t.Fatalf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}
