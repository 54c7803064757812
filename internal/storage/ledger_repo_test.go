package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestLedgerRepo_BeginCompleteListPending(t *testing.T) {
	repo := NewLedgerRepo(newTestDB(t))
	ctx := context.Background()

	first, err := repo.Begin(ctx, OpUpsert, "d1", []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	second, err := repo.Begin(ctx, OpDelete, "d2", nil)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	third, err := repo.Begin(ctx, OpUpsert, "d3", []string{"c9"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !(first < second && second < third) {
		t.Errorf("sequence numbers not increasing: %d %d %d", first, second, third)
	}

	if err := repo.Complete(ctx, first, LedgerCommitted); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := repo.Complete(ctx, third, LedgerAborted); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() returned %d entries, want 1", len(pending))
	}
	e := pending[0]
	if e.Seq != second || e.Op != OpDelete || e.DocumentID != "d2" || e.Status != LedgerPending {
		t.Errorf("pending entry = %+v", e)
	}
	if !reflect.DeepEqual(e.ChunkIDs, []string{}) {
		t.Errorf("ChunkIDs = %#v, want empty slice", e.ChunkIDs)
	}
}

func TestLedgerRepo_CompleteUnknown(t *testing.T) {
	repo := NewLedgerRepo(newTestDB(t))
	if err := repo.Complete(context.Background(), 42, LedgerCommitted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete() error = %v, want ErrNotFound", err)
	}
}
