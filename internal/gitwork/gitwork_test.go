package gitwork

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
)

func newTempRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir, err := os.MkdirTemp("", "gitwork-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@codeframe.dev")
	run("config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("init\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")

	return dir
}

func testTask() *types.Task {
	return &types.Task{ID: 1, ProjectID: 1, TaskNumber: "1.1", Title: "Fix the login bug", Description: "patches the auth check"}
}

func TestCommitTaskBuildsSpecFormatMessage(t *testing.T) {
	dir := newTempRepo(t)
	wf := New(dir, nil, nil, 3)

	if err := os.WriteFile(filepath.Join(dir, "auth.go"), []byte("package auth\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sha, err := wf.CommitTask(testTask(), []string{"auth.go"})
	if err != nil {
		t.Fatalf("CommitTask failed: %v", err)
	}
	if sha == "" {
		t.Fatal("expected a non-empty commit SHA")
	}

	cmd := exec.Command("git", "log", "-1", "--pretty=%B")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git log failed: %v", err)
	}
	msg := string(out)
	if !strings.HasPrefix(msg, "fix(1.1): Fix the login bug") {
		t.Errorf("expected message to start with 'fix(1.1): Fix the login bug', got %q", msg)
	}
	if !strings.Contains(msg, "Modified files:\n- auth.go") {
		t.Errorf("expected a Modified files section listing auth.go, got %q", msg)
	}
}

func TestCommitTaskRefusesUnrelatedModifications(t *testing.T) {
	dir := newTempRepo(t)
	bus := events.NewBus(nil)
	ch := bus.Subscribe(1, []events.Type{events.CommitSkipped})
	wf := New(dir, bus, nil, 3)

	if err := os.WriteFile(filepath.Join(dir, "auth.go"), []byte("package auth\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.go"), []byte("package unrelated\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := wf.CommitTask(testTask(), []string{"auth.go"})
	if err != ErrUnrelatedModifications {
		t.Errorf("expected ErrUnrelatedModifications, got %v", err)
	}

	select {
	case event := <-ch:
		if event.Type != events.CommitSkipped {
			t.Errorf("expected CommitSkipped, got %s", event.Type)
		}
		if event.Payload["reason"] != "unrelated_modifications" {
			t.Errorf("expected reason unrelated_modifications, got %v", event.Payload["reason"])
		}
	default:
		t.Error("expected CommitTask to publish a commit_skipped warning event")
	}
}

func TestCommitTaskWarnsWhenNoChanges(t *testing.T) {
	dir := newTempRepo(t)
	bus := events.NewBus(nil)
	ch := bus.Subscribe(1, []events.Type{events.CommitSkipped})
	wf := New(dir, bus, nil, 3)

	if _, err := wf.CommitTask(testTask(), []string{"auth.go"}); err == nil {
		t.Fatal("expected an error when there is nothing to commit")
	}

	select {
	case event := <-ch:
		if event.Payload["reason"] != "no_changes" {
			t.Errorf("expected reason no_changes, got %v", event.Payload["reason"])
		}
	default:
		t.Error("expected CommitTask to publish a commit_skipped warning event")
	}
}

func TestRecordFailureEscalatesAfterThreshold(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer s.Close()

	proj := &types.Project{Name: "p", Description: "d", ProjectType: types.ProjectTypeOther}
	if err := s.CreateProject(proj); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	issue := &types.Issue{ProjectID: proj.ID, IssueNumber: "1", Title: "i"}
	if err := s.CreateIssue(issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	task := &types.Task{ProjectID: proj.ID, IssueID: issue.ID, TaskNumber: "1.1", Title: "Fix thing"}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	bus := events.NewBus(nil)
	bm := blockers.New(s, bus)
	wf := New("/nonexistent/path/that/is/not/a/repo", bus, bm, 2)

	if _, err := wf.CommitTask(task, []string{"x.go"}); err == nil {
		t.Fatal("expected first commit attempt against a missing repo to fail")
	}
	if _, err := wf.CommitTask(task, []string{"x.go"}); err == nil {
		t.Fatal("expected second commit attempt to fail")
	}

	open, err := bm.ListOpen(proj.ID)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 escalated blocker after 2 consecutive git failures, got %d", len(open))
	}
	if open[0].Severity != types.BlockerAsync {
		t.Errorf("expected escalated git-failure blocker to be ASYNC, got %s", open[0].Severity)
	}
}
