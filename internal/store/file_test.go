package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	s, err := NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestFileStore_Contract(t *testing.T) {
	s, _ := newTestFileStore(t)
	runStoreContract(t, s)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestFileStore(t)

	if err := s.Put(ctx, "12345", "https://example.com/hook"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = s.Close()

	reopened, err := NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "12345")
	if err != nil || got != "https://example.com/hook" {
		t.Errorf("Get() after reopen = %q, %v", got, err)
	}
}

func TestFileStore_ReloadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	s, path := newTestFileStore(t)

	if err := os.WriteFile(path, []byte(`{"ext":"https://example.org/x"}`), 0o600); err != nil {
		t.Fatalf("external write failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v, err := s.Get(ctx, "ext"); err == nil && v == "https://example.org/x" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("external edit was not picked up by the watcher")
}

func TestFileStore_CorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, zerolog.Nop()); err == nil {
		t.Fatal("expected error opening corrupt store file")
	}
}
