package worker

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	ctxmgr "github.com/codeframe-dev/codeframe/internal/context"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/llm"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/scoring"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/tokencounter"
	"github.com/codeframe-dev/codeframe/internal/toolrunner"
	"github.com/codeframe-dev/codeframe/internal/types"
)

type fakeRunner struct{}

func (fakeRunner) RunLint(ctx context.Context, linter types.Linter, workspacePath string, files []string) (*types.LintResult, error) {
	return &types.LintResult{}, nil
}

func (fakeRunner) RunTests(ctx context.Context, workspacePath string, command []string) (*toolrunner.TestResult, error) {
	return &toolrunner.TestResult{Passed: true, Output: "ok"}, nil
}

func newTestWorker(t *testing.T, responses ...string) (*Worker, *store.Store, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	counter, err := tokencounter.New("gpt-4")
	if err != nil {
		t.Fatalf("tokencounter.New: %v", err)
	}
	bus := events.NewBus(nil)
	cm := ctxmgr.New(s, counter, bus, scoring.DefaultThresholds(), 180000, 0.80)
	bm := blockers.New(s, bus)
	pipeline := quality.New(fakeRunner{}, s, bus, bm, quality.Config{
		BlockOnCritical:     true,
		MaxReviewIterations: 2,
		Review: review.Config{
			ComplexityThreshold: 10,
			FunctionLengthLimit: 50,
			ApproveScore:        70,
			RejectScore:         50,
		},
	})
	client := llm.NewFakeClient(responses...)

	repo := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@codeframe.dev")
	run("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("init\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial")

	w := New(s, cm, pipeline, client, bus, bm,
		func(int64) string { return repo },
		func(int64) []string { return []string{"true"} },
		"gpt-4", 3)

	return w, s, repo
}

func fixtureTask(t *testing.T, s *store.Store) (*types.Task, *types.Agent) {
	t.Helper()
	proj := &types.Project{Name: "p", Description: "d", ProjectType: types.ProjectTypeOther}
	if err := s.CreateProject(proj); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	issue := &types.Issue{ProjectID: proj.ID, IssueNumber: "1", Title: "issue"}
	if err := s.CreateIssue(issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	task := &types.Task{ProjectID: proj.ID, IssueID: issue.ID, TaskNumber: "1.1", Title: "Add a feature", Description: "implement it", Status: types.TaskReady}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	agent := &types.Agent{ID: "agent-1", Type: types.AgentTypeBackend, Capabilities: []string{"backend"}}
	if err := s.RegisterAgent(agent); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if err := s.AssignAgentToTask(agent.ID, task.ID); err != nil {
		t.Fatalf("AssignAgentToTask: %v", err)
	}
	return task, agent
}

func encodePatch(t *testing.T, edits map[string]string) string {
	t.Helper()
	type edit struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	payload := struct {
		Summary string `json:"summary"`
		Edits   []edit `json:"edits"`
	}{Summary: "did the thing"}
	for path, content := range edits {
		payload.Edits = append(payload.Edits, edit{Path: path, Content: content})
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestExecuteCleanPatchCompletesAndCommits(t *testing.T) {
	patch := encodePatch(t, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})
	w, s, _ := newTestWorker(t, patch)
	task, agent := fixtureTask(t, s)

	outcome, err := w.Execute(context.Background(), agent.ID, task.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != types.TaskCompleted {
		t.Fatalf("expected completed, got %s (reason=%s)", outcome.Status, outcome.FailReason)
	}
	if outcome.CommitSHA == "" {
		t.Error("expected a non-empty commit SHA")
	}

	reloadedTask, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reloadedTask.CommitSHA == "" {
		t.Error("expected task.CommitSHA to be persisted")
	}

	reloadedAgent, err := s.GetAgent(agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloadedAgent.Status != types.AgentIdle {
		t.Errorf("expected agent to return to idle, got %s", reloadedAgent.Status)
	}
	if reloadedAgent.SuccessCount != 1 {
		t.Errorf("expected success count 1, got %d", reloadedAgent.SuccessCount)
	}
}

func TestExecuteBlocksOnCriticalSecurityFinding(t *testing.T) {
	patch := encodePatch(t, map[string]string{
		"db.go": `query := "SELECT * FROM users WHERE id = " + userInput + ""`,
	})
	w, s, _ := newTestWorker(t, patch)
	task, agent := fixtureTask(t, s)

	outcome, err := w.Execute(context.Background(), agent.ID, task.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Status != types.TaskFailed {
		t.Fatalf("expected failed for a rejected review, got %s", outcome.Status)
	}

	reloadedAgent, err := s.GetAgent(agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloadedAgent.Status != types.AgentIdle {
		t.Errorf("expected agent released to idle even on task failure, got %s", reloadedAgent.Status)
	}
	if reloadedAgent.FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", reloadedAgent.FailureCount)
	}
}
