package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recap/internal/roster"
	"recap/internal/segment"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "recap.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func seedBook(t *testing.T, s *Store, text string) *Book {
	t.Helper()
	book, err := s.CreateBook(context.Background(), "Test Book", "A. Author", text)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return book
}

func TestCreateBookNormalizesText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, "  one\n\ntwo\t three  ")
	if book.TotalLength != len("one two three") {
		t.Errorf("total length: got %d, want %d", book.TotalLength, len("one two three"))
	}

	text, err := s.BookText(ctx, book.ID)
	if err != nil {
		t.Fatalf("book text: %v", err)
	}
	if text != "one two three" {
		t.Errorf("stored text: got %q", text)
	}

	if _, err := s.GetBook(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing book: got %v, want ErrNotFound", err)
	}
}

func TestSeedCheckpointsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, strings.Repeat("a ", 500))
	windows, err := segment.Windows(book.TotalLength, segment.DefaultGrid(10))
	if err != nil {
		t.Fatalf("windows: %v", err)
	}

	if err := s.SeedCheckpoints(ctx, book.ID, 1, windows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cp, err := s.GetCheckpoint(ctx, book.ID, 1, 10)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	cp.Summary = "done"
	if err := s.SaveCompleted(ctx, cp, nil); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	// Re-seeding must not clobber the completed checkpoint.
	if err := s.SeedCheckpoints(ctx, book.ID, 1, windows); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	cp, err = s.GetCheckpoint(ctx, book.ID, 1, 10)
	if err != nil {
		t.Fatalf("get after re-seed: %v", err)
	}
	if cp.Status != StatusCompleted || cp.Summary != "done" {
		t.Errorf("re-seed clobbered checkpoint: %+v", cp)
	}

	all, err := s.ListCheckpoints(ctx, book.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("expected 10 checkpoints, got %d", len(all))
	}
	for i, cp := range all {
		if cp.Progress != (i+1)*10 {
			t.Errorf("checkpoint %d out of order: progress %d", i, cp.Progress)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, strings.Repeat("a ", 100))
	windows, _ := segment.Windows(book.TotalLength, segment.DefaultGrid(10))
	if err := s.SeedCheckpoints(ctx, book.ID, 1, windows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.MarkInProgress(ctx, book.ID, 1, 10); err != nil {
			t.Fatalf("mark in progress: %v", err)
		}
	}
	cp, _ := s.GetCheckpoint(ctx, book.ID, 1, 10)
	if cp.AttemptCount != 3 {
		t.Errorf("attempt count: got %d, want 3", cp.AttemptCount)
	}

	if err := s.MarkFailed(ctx, book.ID, 1, 10, "model timeout"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	cp, _ = s.GetCheckpoint(ctx, book.ID, 1, 10)
	if cp.Status != StatusFailed || cp.LastError != "model timeout" {
		t.Errorf("failed state: %+v", cp)
	}

	n, err := s.ResetFailed(ctx, book.ID, 1)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count: got %d, want 1", n)
	}
	cp, _ = s.GetCheckpoint(ctx, book.ID, 1, 10)
	if cp.Status != StatusPending || cp.AttemptCount != 0 || cp.LastError != "" {
		t.Errorf("reset state: %+v", cp)
	}
}

func TestSaveCompletedWritesRosterAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, strings.Repeat("a ", 100))
	windows, _ := segment.Windows(book.TotalLength, segment.DefaultGrid(10))
	if err := s.SeedCheckpoints(ctx, book.ID, 1, windows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cp, _ := s.GetCheckpoint(ctx, book.ID, 1, 10)
	cp.Summary = "Alice arrives."
	cp.Delta = []string{"alice"}
	cp.Provider = "mock"
	entities := []roster.Entity{
		{Canonical: "alice", Aliases: []roster.Alias{{Raw: "alice", Seen: 10}}, FirstSeen: 10, Mentions: []int{10}},
	}
	if err := s.SaveCompleted(ctx, cp, entities); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	got, _ := s.GetCheckpoint(ctx, book.ID, 1, 10)
	if got.Status != StatusCompleted {
		t.Errorf("status: %s", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at not set")
	}
	if len(got.Delta) != 1 || got.Delta[0] != "alice" {
		t.Errorf("delta round trip: %v", got.Delta)
	}

	stored, err := s.RosterEntities(ctx, book.ID, 1)
	if err != nil {
		t.Fatalf("roster entities: %v", err)
	}
	if len(stored) != 1 || stored[0].Canonical != "alice" || stored[0].FirstSeen != 10 {
		t.Fatalf("roster round trip: %+v", stored)
	}

	// A later checkpoint extends the same entity.
	cp2, _ := s.GetCheckpoint(ctx, book.ID, 1, 20)
	cp2.Summary = "Alice explores."
	entities[0].Mentions = []int{10, 20}
	if err := s.SaveCompleted(ctx, cp2, entities); err != nil {
		t.Fatalf("save second: %v", err)
	}
	stored, _ = s.RosterEntities(ctx, book.ID, 1)
	if len(stored) != 1 || len(stored[0].Mentions) != 2 {
		t.Fatalf("entity not upserted: %+v", stored)
	}
}

func TestCompletedAtOrBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, strings.Repeat("a ", 100))
	windows, _ := segment.Windows(book.TotalLength, segment.DefaultGrid(10))
	if err := s.SeedCheckpoints(ctx, book.ID, 1, windows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Complete 10..40 only.
	for _, p := range []int{10, 20, 30, 40} {
		cp, _ := s.GetCheckpoint(ctx, book.ID, 1, p)
		cp.Summary = "s"
		if err := s.SaveCompleted(ctx, cp, nil); err != nil {
			t.Fatalf("save %d: %v", p, err)
		}
	}
	if err := s.MarkFailed(ctx, book.ID, 1, 50, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	tests := []struct {
		request int
		want    int
		wantErr bool
	}{
		{100, 40, false},
		{45, 40, false},
		{40, 40, false},
		{37, 30, false},
		{10, 10, false},
		{9, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		cp, err := s.CompletedAtOrBefore(ctx, book.ID, 1, tt.request)
		if tt.wantErr {
			if !errors.Is(err, ErrNoCheckpointAvailable) {
				t.Errorf("request %d: got %v, want ErrNoCheckpointAvailable", tt.request, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("request %d: %v", tt.request, err)
			continue
		}
		if cp.Progress != tt.want {
			t.Errorf("request %d: resolved %d, want %d", tt.request, cp.Progress, tt.want)
		}
	}
}

func TestLeaseLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, "some text")

	if err := s.AcquireLease(ctx, book.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := s.AcquireLease(ctx, book.ID, "worker-2", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("second owner: got %v, want ErrLeaseHeld", err)
	}

	// Same owner re-acquires freely.
	if err := s.AcquireLease(ctx, book.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if err := s.RefreshLease(ctx, book.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := s.RefreshLease(ctx, book.ID, "worker-2", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("refresh by non-owner: got %v", err)
	}

	if err := s.ReleaseLease(ctx, book.ID, "worker-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.AcquireLease(ctx, book.ID, "worker-2", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	// An expired lease is reclaimable.
	if err := s.AcquireLease(ctx, book.ID, "worker-2", -time.Second); err != nil {
		t.Fatalf("shorten lease: %v", err)
	}
	if err := s.AcquireLease(ctx, book.ID, "worker-3", time.Minute); err != nil {
		t.Fatalf("reclaim expired: %v", err)
	}

	lease, err := s.GetLease(ctx, book.ID)
	if err != nil {
		t.Fatalf("get lease: %v", err)
	}
	if lease == nil || lease.Owner != "worker-3" {
		t.Errorf("final lease: %+v", lease)
	}
}

func TestBumpVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	book := seedBook(t, s, "some text")
	v, err := s.BumpVersion(ctx, book.ID)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if v != 2 {
		t.Errorf("version: got %d, want 2", v)
	}
	if _, err := s.BumpVersion(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bump missing book: got %v", err)
	}
}
