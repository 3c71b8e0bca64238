package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// runStoreContract exercises the behavior every Store backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "missing-key")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		if err := s.Put(ctx, "+1 202 555", "https://example.com/hook"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, "+1 202 555")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "https://example.com/hook" {
			t.Errorf("Get() = %q, want %q", got, "https://example.com/hook")
		}
	})

	t.Run("put replaces value", func(t *testing.T) {
		_ = s.Put(ctx, "k1", `{"v":1}`)
		_ = s.Put(ctx, "k1", `{"v":2}`)
		got, _ := s.Get(ctx, "k1")
		if got != `{"v":2}` {
			t.Errorf("Get() = %q, want replaced value", got)
		}
	})

	t.Run("list includes all keys", func(t *testing.T) {
		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if all["k1"] != `{"v":2}` || all["+1 202 555"] != "https://example.com/hook" {
			t.Errorf("List() = %v", all)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := s.Delete(ctx, "k1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, "k1"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent writers never tear values", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.Put(ctx, "shared", fmt.Sprintf(`{"writer":%d}`, i))
			}(i)
		}
		wg.Wait()

		got, err := s.Get(ctx, "shared")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var n int
		if _, err := fmt.Sscanf(got, `{"writer":%d}`, &n); err != nil {
			t.Errorf("torn value %q", got)
		}
	})
}
