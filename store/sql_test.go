package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_ImplementsStore(_ *testing.T) {
	var _ Store = (*SQLStore)(nil)
}

func TestSQLStore_PutIfAbsent(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	out, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Created {
		t.Fatal("expected first insert to win")
	}

	out, err = s.PutIfAbsent(ctx, inProgress("k1", "owner-b", time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Created {
		t.Fatal("expected second insert to lose")
	}
	if out.Existing.Owner != "owner-a" {
		t.Errorf("expected existing owner owner-a, got %s", out.Existing.Owner)
	}
	if out.Existing.Status != StatusInProgress {
		t.Errorf("expected INPROGRESS, got %s", out.Existing.Status)
	}
}

func TestSQLStore_PutIfAbsent_ReclaimsExpired(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", -time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-b", time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Created {
		t.Fatal("expected expired record to be reclaimable")
	}

	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Owner != "owner-b" {
		t.Errorf("expected new owner owner-b, got %s", rec.Owner)
	}
}

func TestSQLStore_GetExpired(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", -time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for expired record, got %v", err)
	}
}

func TestSQLStore_CompleteRoundTrip(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expires := time.Now().Add(time.Hour).UTC()
	if err := s.Complete(ctx, "k1", "owner-a", []byte(`{"ok":true}`), expires); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", rec.Status)
	}
	if string(rec.ResponsePayload) != `{"ok":true}` {
		t.Errorf("unexpected payload %q", rec.ResponsePayload)
	}
}

func TestSQLStore_Complete_WrongOwner(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.Complete(ctx, "k1", "owner-b", nil, time.Now().Add(time.Hour))
	if err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestSQLStore_Complete_AlreadyCompleted(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Complete(ctx, "k1", "owner-a", []byte("{}"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err := s.Complete(ctx, "k1", "owner-a", []byte("{}"), time.Now().Add(time.Hour))
	if err != ErrAlreadyCompleted {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestSQLStore_DeleteReleasesKey(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-a", time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "k1", "owner-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	out, err := s.PutIfAbsent(ctx, inProgress("k1", "owner-b", time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Created {
		t.Error("expected key to be free after delete")
	}
}

func TestSQLStore_PurgeExpired(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := s.PutIfAbsent(ctx, inProgress("dead", "owner-a", -time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.PutIfAbsent(ctx, inProgress("live", "owner-a", time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged row, got %d", n)
	}
	if _, err := s.Get(ctx, "live"); err != nil {
		t.Errorf("expected live record to survive purge, got %v", err)
	}
}
