package events

import (
	"testing"

	"github.com/codeframe-dev/codeframe/internal/store"
)

func newTestAdapter(t *testing.T) *StoreAdapter {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreAdapter(db)
}

func TestStoreAdapterSaveAndGetPending(t *testing.T) {
	adapter := newTestAdapter(t)

	event := New(TaskCompleted, 1, "42", map[string]interface{}{"commit_sha": "abc123"})
	event.Version = 1
	if err := adapter.Save(event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := adapter.GetPending(1, nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}

	got := pending[0]
	if got.ID != event.ID || got.Type != event.Type || got.EntityID != event.EntityID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, event)
	}
	if got.Payload["commit_sha"] != "abc123" {
		t.Errorf("payload.commit_sha = %v, want abc123", got.Payload["commit_sha"])
	}
}

func TestStoreAdapterMarkDeliveredRemovesFromPending(t *testing.T) {
	adapter := newTestAdapter(t)

	event := New(BlockerCreated, 1, "9", map[string]interface{}{})
	event.Version = 1
	if err := adapter.Save(event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := adapter.MarkDelivered(event.ID); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	pending, err := adapter.GetPending(1, nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending events after delivery, got %d", len(pending))
	}
}

func TestStoreAdapterGetPendingFiltersByType(t *testing.T) {
	adapter := newTestAdapter(t)

	e1 := New(TaskReady, 1, "1", map[string]interface{}{})
	e1.Version = 1
	e2 := New(TaskFailed, 1, "2", map[string]interface{}{})
	e2.Version = 1
	if err := adapter.Save(e1); err != nil {
		t.Fatalf("Save e1: %v", err)
	}
	if err := adapter.Save(e2); err != nil {
		t.Fatalf("Save e2: %v", err)
	}

	pending, err := adapter.GetPending(1, []Type{TaskReady})
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Type != TaskReady {
		t.Errorf("expected only TaskReady event, got %+v", pending)
	}
}

func TestStoreAdapterGetPendingZeroProjectReturnsEveryProject(t *testing.T) {
	adapter := newTestAdapter(t)

	e1 := New(TaskReady, 1, "1", map[string]interface{}{})
	e1.Version = 1
	e2 := New(TaskReady, 2, "2", map[string]interface{}{})
	e2.Version = 1
	if err := adapter.Save(e1); err != nil {
		t.Fatalf("Save e1: %v", err)
	}
	if err := adapter.Save(e2); err != nil {
		t.Fatalf("Save e2: %v", err)
	}

	pending, err := adapter.GetPending(0, nil)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 events across both projects, got %d", len(pending))
	}
}
