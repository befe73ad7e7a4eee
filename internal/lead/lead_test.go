package lead

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	ctxmgr "github.com/codeframe-dev/codeframe/internal/context"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/llm"
	"github.com/codeframe-dev/codeframe/internal/pool"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/scoring"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/toolrunner"
	"github.com/codeframe-dev/codeframe/internal/tokencounter"
	"github.com/codeframe-dev/codeframe/internal/types"
	"github.com/codeframe-dev/codeframe/internal/worker"
)

type fakeRunner struct{}

func (fakeRunner) RunLint(ctx context.Context, linter types.Linter, workspacePath string, files []string) (*types.LintResult, error) {
	return &types.LintResult{}, nil
}

func (fakeRunner) RunTests(ctx context.Context, workspacePath string, command []string) (*toolrunner.TestResult, error) {
	return &toolrunner.TestResult{Passed: true, Output: "ok"}, nil
}

func newTestLead(t *testing.T, planResponse string, maxConcurrent int) (*Lead, *store.Store, *types.Project) {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	proj := &types.Project{Name: "p", Description: "a test project", ProjectType: types.ProjectTypeOther}
	if err := s.CreateProject(proj); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	bus := events.NewBus(nil)
	counter, err := tokencounter.New("gpt-4")
	if err != nil {
		t.Fatalf("tokencounter.New: %v", err)
	}
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

	defs := map[string]*types.AgentDefinition{
		"backend": {Type: types.AgentTypeBackend, Provider: "default", Capabilities: []string{"backend"}, Maturity: types.MaturitySupporting},
	}
	agentPool := pool.New(s, bus, defs, time.Hour)

	workspace := t.TempDir()
	w := worker.New(s, cm, pipeline, llm.NewFakeClient(`{"summary":"noop","edits":[]}`), bus, bm,
		func(int64) string { return workspace },
		func(int64) []string { return []string{"true"} },
		"gpt-4", 3)

	client := llm.NewFakeClient(planResponse)
	l := New(s, bus, agentPool, w, client, "gpt-4", types.DefaultDiscoveryScript(), maxConcurrent)
	return l, s, proj
}

func TestAnswerDiscoveryAdvancesAndCompletesPhase(t *testing.T) {
	l, s, proj := newTestLead(t, "", 4)
	script := types.DefaultDiscoveryScript()

	var state *DiscoveryState
	for _, q := range script {
		var err error
		state, err = l.AnswerDiscovery(proj.ID, q.ID, "a sufficiently detailed answer")
		if err != nil {
			t.Fatalf("AnswerDiscovery(%s) failed: %v", q.ID, err)
		}
	}
	if !state.IsComplete {
		t.Fatal("expected discovery to be complete after answering every question")
	}

	reloaded, err := s.GetProject(proj.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if reloaded.Phase != types.PhasePlanning {
		t.Errorf("expected planning phase, got %s", reloaded.Phase)
	}
}

func TestAnswerDiscoveryRejectsWhitespaceOnlyAnswer(t *testing.T) {
	l, _, proj := newTestLead(t, "", 4)
	if _, err := l.AnswerDiscovery(proj.ID, "goal", "   "); err == nil {
		t.Fatal("expected a validation error for a whitespace-only answer")
	}
}

func answerAllQuestions(t *testing.T, l *Lead, projectID int64) {
	t.Helper()
	for _, q := range types.DefaultDiscoveryScript() {
		if _, err := l.AnswerDiscovery(projectID, q.ID, "a sufficiently detailed answer"); err != nil {
			t.Fatalf("AnswerDiscovery(%s): %v", q.ID, err)
		}
	}
}

func encodePlan(t *testing.T) string {
	t.Helper()
	payload := map[string]interface{}{
		"issues": []map[string]interface{}{
			{
				"issue_number": "1",
				"title":        "Core feature",
				"description":  "Build the core feature",
				"priority":     5,
				"tasks": []map[string]interface{}{
					{
						"task_number":             "1.1",
						"title":                   "Scaffold the module",
						"description":             "Scaffold it",
						"required_capabilities":   []string{"backend"},
						"depends_on_task_numbers": []string{},
					},
					{
						"task_number":             "1.2",
						"title":                   "Wire the endpoint",
						"description":             "Wire it",
						"required_capabilities":   []string{"backend"},
						"depends_on_task_numbers": []string{"1.1"},
					},
				},
			},
		},
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestPlanPersistsIssueTreeAndAdvancesToAwaitingApproval(t *testing.T) {
	l, s, proj := newTestLead(t, encodePlan(t), 4)
	answerAllQuestions(t, l, proj.ID)

	issues, err := l.Plan(context.Background(), proj.ID)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}

	tasks, err := s.ListTasksByProject(proj.ID)
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	reloaded, err := s.GetProject(proj.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if reloaded.Phase != types.PhaseAwaitingApproval {
		t.Errorf("expected awaiting_approval phase, got %s", reloaded.Phase)
	}
}

func TestApproveExcludesUnselectedTasksAndEntersDevelopment(t *testing.T) {
	l, s, proj := newTestLead(t, encodePlan(t), 4)
	answerAllQuestions(t, l, proj.ID)
	if _, err := l.Plan(context.Background(), proj.ID); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	tasks, err := s.ListTasksByProject(proj.ID)
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	var firstTaskID int64
	for _, tk := range tasks {
		if tk.TaskNumber == "1.1" {
			firstTaskID = tk.ID
		}
	}

	if err := l.Approve(proj.ID, []int64{firstTaskID}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	tasks, err = s.ListTasksByProject(proj.ID)
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	for _, tk := range tasks {
		if tk.TaskNumber == "1.2" && tk.Status != types.TaskBlocked {
			t.Errorf("expected excluded task 1.2 to be blocked, got %s", tk.Status)
		}
		if tk.TaskNumber == "1.1" && tk.Status != types.TaskPending {
			t.Errorf("expected selected task 1.1 to remain pending until dispatch, got %s", tk.Status)
		}
	}

	reloaded, err := s.GetProject(proj.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if reloaded.Phase != types.PhaseDevelopment {
		t.Errorf("expected development phase, got %s", reloaded.Phase)
	}
}

func TestTickDispatchesReadyTaskToIdleAgent(t *testing.T) {
	l, s, proj := newTestLead(t, encodePlan(t), 4)
	answerAllQuestions(t, l, proj.ID)
	if _, err := l.Plan(context.Background(), proj.ID); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	tasks, err := s.ListTasksByProject(proj.ID)
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	var allIDs []int64
	for _, tk := range tasks {
		allIDs = append(allIDs, tk.ID)
	}
	if err := l.Approve(proj.ID, allIDs); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if _, err := l.pool.Spawn("agent-1", "backend"); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := l.Tick(context.Background(), proj.ID); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		agent, err := s.GetAgent("agent-1")
		if err != nil {
			t.Fatalf("GetAgent: %v", err)
		}
		if agent.Status == types.AgentIdle && agent.SuccessCount+agent.FailureCount > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent never returned to idle after dispatch (status=%s)", agent.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
