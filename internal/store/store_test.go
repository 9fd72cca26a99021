package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"koihealth/internal/domain"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSetGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := createTestStore(t)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "ai-health-chat-history", `[]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "ai-health-chat-history", `[{"role":"user"}]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "ai-health-chat-history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != `[{"role":"user"}]` {
		t.Fatalf("unexpected value %q", got)
	}

	if err := s.Delete(ctx, "ai-health-chat-history"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "ai-health-chat-history"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.Get(ctx, "ai-health-chat-history"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.sqlite")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "tts-settings", `{"enabled":false}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "tts-settings")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got != `{"enabled":false}` {
		t.Fatalf("unexpected value %q", got)
	}
}
