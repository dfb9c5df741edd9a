package coordinator

import (
	"context"
	"testing"
	"time"
)

func TestCancelRowUpdatesRemovesAllAndOnlyMatching(t *testing.T) {
	svc := &mockService{}
	q := NewUpdateQueue(QueueConfig{TableID: "t", Service: svc, Settle: time.Hour})

	q.Enqueue("row-del", "col-1", strPtr("a"))
	q.Enqueue("row-keep", "col-1", strPtr("b"))
	q.Enqueue("row-del", "col-2", strPtr("c"))
	q.Enqueue("row-keep", "col-2", strPtr("d"))

	if n := q.CancelRowUpdates("row-del"); n != 2 {
		t.Fatalf("expected 2 cancelled operations, got %d", n)
	}

	snap := q.PendingOperations()
	if len(snap) != 2 {
		t.Fatalf("expected 2 surviving operations, got %d", len(snap))
	}
	// Survivors keep their relative order.
	if snap[0].Address.ColumnID != "col-1" || snap[1].Address.ColumnID != "col-2" {
		t.Error("cancellation reordered surviving operations")
	}
	for _, op := range snap {
		if op.Address.RowID != "row-keep" {
			t.Errorf("operation for %s survived cancellation", op.Address.RowID)
		}
	}

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for _, c := range svc.callsFor("UpsertCell") {
		if c.rowID == "row-del" {
			t.Error("cancelled write reached the persistence service")
		}
	}
}

func TestCancelRowUpdatesMatchesTemporaryAlias(t *testing.T) {
	ids := NewIdentityMap()
	ids.Record("temp-row", "row-5")
	svc := &mockService{}
	q := NewUpdateQueue(QueueConfig{
		TableID: "t",
		Service: svc,
		Resolve: ids.Resolve,
		Settle:  time.Hour,
	})

	// Enqueued before the remap landed, so the address was stored under the
	// resolved id already; cancelling by either alias must catch it.
	q.Enqueue("temp-row", "col-1", strPtr("a"))
	q.Enqueue("row-5", "col-2", strPtr("b"))

	if n := q.CancelRowUpdates("temp-row"); n != 2 {
		t.Errorf("expected both aliases cancelled, got %d", n)
	}
	if q.PendingCount() != 0 {
		t.Error("queue not empty after cancelling the row under its alias")
	}
}

func TestCancelCellUpdate(t *testing.T) {
	svc := &mockService{}
	q := NewUpdateQueue(QueueConfig{TableID: "t", Service: svc, Settle: time.Hour})

	q.Enqueue("row-1", "col-1", strPtr("a"))
	q.Enqueue("row-1", "col-2", strPtr("b"))

	if n := q.CancelCellUpdate("row-1", "col-1"); n != 1 {
		t.Fatalf("expected 1 cancelled operation, got %d", n)
	}
	if n := q.CancelCellUpdate("row-1", "col-1"); n != 0 {
		t.Errorf("second cancel of the same address removed %d", n)
	}

	snap := q.PendingOperations()
	if len(snap) != 1 || snap[0].Address.ColumnID != "col-2" {
		t.Errorf("unexpected surviving operations: %+v", snap)
	}
}

func TestCancelOnEmptyQueueIsNoOp(t *testing.T) {
	svc := &mockService{}
	q := NewUpdateQueue(QueueConfig{TableID: "t", Service: svc, Settle: time.Hour})

	if n := q.CancelRowUpdates("row-1"); n != 0 {
		t.Errorf("cancel on empty queue removed %d", n)
	}
	if n := q.CancelCellUpdate("row-1", "col-1"); n != 0 {
		t.Errorf("cancel on empty queue removed %d", n)
	}
}
