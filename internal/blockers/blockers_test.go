package blockers

import (
	"testing"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
)

func newTestFixture(t *testing.T) (*Manager, *store.Store, int64) {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	proj := &types.Project{Name: "p", Description: "d", ProjectType: types.ProjectTypeOther}
	if err := s.CreateProject(proj); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	issue := &types.Issue{ProjectID: proj.ID, IssueNumber: "1", Title: "issue"}
	if err := s.CreateIssue(issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	task := &types.Task{ProjectID: proj.ID, IssueID: issue.ID, TaskNumber: "1.1", Title: "task"}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	bus := events.NewBus(nil)
	return New(s, bus), s, task.ID
}

func TestCreateRaisesSyncBlockerAndMarksTaskBlocked(t *testing.T) {
	m, s, taskID := newTestFixture(t)

	b, err := m.Create(taskID, types.BlockerSync, "lint_block_on_critical", "what should I do?")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("expected a non-zero blocker id")
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != types.TaskBlocked {
		t.Errorf("expected task to be blocked after a SYNC blocker, got %s", task.Status)
	}
}

func TestCreateIsIdempotentOnTaskAndReason(t *testing.T) {
	m, _, taskID := newTestFixture(t)

	first, err := m.Create(taskID, types.BlockerSync, "same_reason", "q1")
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := m.Create(taskID, types.BlockerSync, "same_reason", "q2")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected duplicate (task_id, reason) to return the same blocker id, got %d and %d", first.ID, second.ID)
	}
}

func TestResolveUnblocksTaskAndEmitsEvent(t *testing.T) {
	m, s, taskID := newTestFixture(t)

	b, err := m.Create(taskID, types.BlockerSync, "needs_human_input", "q")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ch := m.bus.Subscribe(0, []events.Type{events.BlockerResolved})
	defer m.bus.Unsubscribe(0, ch)

	if err := m.Resolve(b.ID, "go ahead"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != types.TaskPending {
		t.Errorf("expected task to return to pending after its only SYNC blocker resolved, got %s", task.Status)
	}

	select {
	case evt := <-ch:
		if evt.Type != events.BlockerResolved {
			t.Errorf("expected blocker_resolved, got %s", evt.Type)
		}
	default:
		t.Error("expected a blocker_resolved event to have been published")
	}
}

func TestListOpenReturnsOnlyUnresolvedBlockers(t *testing.T) {
	m, _, taskID := newTestFixture(t)

	b, err := m.Create(taskID, types.BlockerAsync, "r1", "q")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Create(taskID, types.BlockerAsync, "r2", "q"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Resolve(b.ID, "done"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	open, err := m.ListOpen(1)
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open blocker, got %d", len(open))
	}
	if open[0].Reason != "r2" {
		t.Errorf("expected remaining open blocker to be r2, got %s", open[0].Reason)
	}
}
