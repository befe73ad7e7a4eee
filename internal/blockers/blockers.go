// Package blockers wraps internal/store's blocker CRUD with the
// EventBus emissions spec §4.7 requires on create and resolve.
package blockers

import (
	"fmt"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Manager is the sole human-in-the-loop checkpoint mechanism (spec §4.7).
type Manager struct {
	store *store.Store
	bus   *events.Bus
}

// New builds a Manager. bus may be nil in tests that don't care about
// notifications.
func New(s *store.Store, bus *events.Bus) *Manager {
	return &Manager{store: s, bus: bus}
}

// Create raises a blocker against a task, idempotent on (task_id, reason)
// per spec §4.7 — a duplicate open blocker returns the existing id
// without emitting a second blocker_created event.
func (m *Manager) Create(taskID int64, severity types.BlockerSeverity, reason, question string) (*types.Blocker, error) {
	b := &types.Blocker{
		TaskID:   taskID,
		Severity: severity,
		Reason:   reason,
		Question: question,
	}
	if err := m.store.CreateBlocker(b); err != nil {
		return nil, fmt.Errorf("failed to create blocker: %w", err)
	}
	if err := m.publishCreated(b); err != nil {
		return b, err
	}
	return b, nil
}

func (m *Manager) publishCreated(b *types.Blocker) error {
	if m.bus == nil {
		return nil
	}
	task, err := m.store.GetTask(b.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task for blocker notification: %w", err)
	}
	m.bus.Publish(events.New(events.BlockerCreated, task.ProjectID, fmt.Sprintf("%d", b.ID), map[string]interface{}{
		"blocker_id": b.ID,
		"task_id":    b.TaskID,
		"severity":   b.Severity,
		"reason":     b.Reason,
		"question":   b.Question,
	}))
	return nil
}

// Resolve records a human (or automated) resolution, re-evaluates task
// readiness at the store layer, and emits blocker_resolved so the
// LeadAgent can re-run its dispatch loop.
func (m *Manager) Resolve(blockerID int64, resolution string) error {
	if err := m.store.ResolveBlocker(blockerID, resolution); err != nil {
		return fmt.Errorf("failed to resolve blocker: %w", err)
	}
	if m.bus == nil {
		return nil
	}
	b, err := m.store.GetBlocker(blockerID)
	if err != nil {
		return fmt.Errorf("failed to reload resolved blocker: %w", err)
	}
	task, err := m.store.GetTask(b.TaskID)
	if err != nil {
		return fmt.Errorf("failed to load task for blocker-resolved notification: %w", err)
	}
	m.bus.Publish(events.New(events.BlockerResolved, task.ProjectID, fmt.Sprintf("%d", b.ID), map[string]interface{}{
		"blocker_id": b.ID,
		"task_id":    b.TaskID,
		"resolution": resolution,
	}))
	return nil
}

// Get loads a single blocker.
func (m *Manager) Get(id int64) (*types.Blocker, error) {
	return m.store.GetBlocker(id)
}

// ListOpen returns a project's unresolved blockers.
func (m *Manager) ListOpen(projectID int64) ([]*types.Blocker, error) {
	return m.store.ListOpenBlockers(projectID)
}

// ListByTask returns every blocker (open or resolved) a task has raised.
func (m *Manager) ListByTask(taskID int64) ([]*types.Blocker, error) {
	return m.store.ListBlockersByTask(taskID)
}
