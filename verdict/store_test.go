package verdict

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	older, err := NewBatchID(base)
	if err != nil {
		t.Fatalf("batch id: %v", err)
	}
	newer, err := NewBatchID(base.Add(time.Second))
	if err != nil {
		t.Fatalf("batch id: %v", err)
	}
	for _, id := range []string{older, newer} {
		if err := store.SaveVerdicts(ctx, batchAt(id, "room-1", base)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	ids, err := store.ListByAnchor(ctx, "room-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != newer {
		t.Fatalf("expected newest first, got %v", ids)
	}

	if err := store.Override(ctx, older, "alice", Override{Status: StatusAbsent, Reviewer: "ta"}); err != nil {
		t.Fatalf("override: %v", err)
	}
	got, err := store.Get(ctx, older)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	alice, _ := got.Record("alice")
	if alice.Status != StatusPresent || alice.EffectiveStatus() != StatusAbsent {
		t.Fatalf("unexpected record after override: %+v", alice)
	}

	// Returned batches are copies.
	got.Records[0].Flags = append(got.Records[0].Flags, "tampered")
	again, _ := store.Get(ctx, older)
	if again.Records[0].HasFlag("tampered") {
		t.Fatalf("store leaked internal state")
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
	if err := store.Override(ctx, older, "nobody", Override{Status: StatusAbsent, Reviewer: "ta"}); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestNewBatchIDSortsByTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	a, err := NewBatchID(base)
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	b, err := NewBatchID(base.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if len(a) != 26 || a >= b {
		t.Fatalf("expected time-ordered ulids, got %s %s", a, b)
	}
}

func TestNormalizeFlags(t *testing.T) {
	got := NormalizeFlags([]string{"b", "a", "b", "c", "a"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected flags %v", got)
	}
	if NormalizeFlags(nil) != nil {
		t.Fatalf("expected nil for no flags")
	}
}

func TestBatchCounts(t *testing.T) {
	counts := testBatch().Counts()
	if counts[StatusPresent] != 1 || counts[StatusAbsent] != 1 || counts[StatusPartial] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
