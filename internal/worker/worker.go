// Package worker implements WorkerAgent (spec §4.8): a project-agnostic
// task executor. Construction takes no project — every method derives
// the project strictly from the task it is given.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	ctxmgr "github.com/codeframe-dev/codeframe/internal/context"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/gitwork"
	"github.com/codeframe-dev/codeframe/internal/llm"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Outcome is WorkerAgent.execute's return value (spec §4.8).
type Outcome struct {
	Status     types.TaskStatus
	CommitSHA  string
	BlockerID  int64
	FailReason string
}

// WorkspaceRoot resolves a project's working directory on disk.
type WorkspaceRoot func(projectID int64) string

// TestCommand resolves a project's configured test runner invocation.
type TestCommand func(projectID int64) []string

// Worker executes one task at a time end to end: LLM call, file edits,
// QualityPipeline, commit. It never caches project state across calls —
// every field below is either stateless or keyed by project id.
type Worker struct {
	store       *store.Store
	ctxMgr      *ctxmgr.Manager
	pipeline    *quality.Pipeline
	llmClient   llm.Client
	bus         *events.Bus
	blockersMgr *blockers.Manager

	workspaceRoot WorkspaceRoot
	testCommand   TestCommand
	model         string

	gitFailureThreshold int
	gitMu               sync.Mutex
	gitWorkflows        map[int64]*gitwork.Workflow
}

// New builds a Worker.
func New(
	s *store.Store,
	cm *ctxmgr.Manager,
	pipeline *quality.Pipeline,
	llmClient llm.Client,
	bus *events.Bus,
	bm *blockers.Manager,
	workspaceRoot WorkspaceRoot,
	testCommand TestCommand,
	model string,
	gitFailureThreshold int,
) *Worker {
	return &Worker{
		store:               s,
		ctxMgr:              cm,
		pipeline:            pipeline,
		llmClient:           llmClient,
		bus:                 bus,
		blockersMgr:         bm,
		workspaceRoot:       workspaceRoot,
		testCommand:         testCommand,
		model:               model,
		gitFailureThreshold: gitFailureThreshold,
		gitWorkflows:        make(map[int64]*gitwork.Workflow),
	}
}

type patchEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type patchResponse struct {
	Summary string      `json:"summary"`
	Edits   []patchEdit `json:"edits"`
}

// Execute runs a task end to end (spec §4.8 steps 1-9).
func (w *Worker) Execute(ctx context.Context, agentID string, taskID int64) (*Outcome, error) {
	task, err := w.store.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if err := w.store.TransitionTask(taskID, types.TaskInProgress); err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}
	w.publish(events.TaskStarted, task, nil)

	outcome, err := w.runWithRevisions(ctx, agentID, task)
	if err != nil {
		if failErr := w.store.FailTask(taskID, err.Error()); failErr != nil {
			return nil, fmt.Errorf("task failed (%w) and could not be recorded: %v", err, failErr)
		}
		w.publish(events.TaskFailed, task, map[string]interface{}{"reason": err.Error()})
		if relErr := w.store.ReleaseAgent(agentID, false); relErr != nil {
			return nil, relErr
		}
		return &Outcome{Status: types.TaskFailed, FailReason: err.Error()}, nil
	}

	succeeded := outcome.Status == types.TaskCompleted
	if relErr := w.store.ReleaseAgent(agentID, succeeded); relErr != nil {
		return nil, fmt.Errorf("failed to release agent: %w", relErr)
	}
	return outcome, nil
}

// runWithRevisions drives steps 2-8, looping back to step 4 whenever the
// pipeline returns changes_requested within its iteration budget (spec
// §4.8 "Revision loop").
func (w *Worker) runWithRevisions(ctx context.Context, agentID string, task *types.Task) (*Outcome, error) {
	var findings []types.ReviewFinding

	for {
		edits, err := w.planAndEdit(ctx, agentID, task, findings)
		if err != nil {
			return nil, err
		}

		qOutcome, err := w.runPipeline(ctx, task, edits)
		if err != nil {
			return nil, err
		}

		switch qOutcome.Status {
		case quality.StatusPass:
			return w.commitAndComplete(task, edits, qOutcome)

		case quality.StatusBlocked:
			if err := w.store.TransitionTask(task.ID, types.TaskBlocked); err != nil {
				return nil, fmt.Errorf("failed to mark task blocked: %w", err)
			}
			return &Outcome{Status: types.TaskBlocked, BlockerID: qOutcome.BlockerID, FailReason: qOutcome.FailReason}, nil

		case quality.StatusFailed:
			return nil, fmt.Errorf("quality pipeline rejected the change: %s", qOutcome.FailReason)

		case quality.StatusChangesRequested:
			if qOutcome.ReviewReport != nil {
				findings = qOutcome.ReviewReport.Findings
				for _, f := range findings {
					note := fmt.Sprintf("%s:%d %s: %s", f.File, f.Line, f.Severity, f.Message)
					if _, err := w.ctxMgr.Save(agentID, task.ProjectID, types.ItemError, note); err != nil {
						return nil, fmt.Errorf("failed to save review finding as context: %w", err)
					}
				}
			}
			continue

		default:
			return nil, fmt.Errorf("unrecognized quality pipeline status: %s", qOutcome.Status)
		}
	}
}

// planAndEdit is steps 2-6: load HOT context (flash-saving first if
// needed), save the task description, call the LLM, apply its edits,
// and save the produced code as CODE context items.
func (w *Worker) planAndEdit(ctx context.Context, agentID string, task *types.Task, findings []types.ReviewFinding) ([]patchEdit, error) {
	shouldFlash, err := w.ctxMgr.ShouldFlashSave(agentID, task.ProjectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate flash-save: %w", err)
	}
	if shouldFlash {
		if _, err := w.ctxMgr.FlashSave(agentID, task.ProjectID); err != nil {
			return nil, fmt.Errorf("flash-save failed: %w", err)
		}
	}

	hotItems, err := w.ctxMgr.Load(agentID, task.ProjectID, types.TierHot)
	if err != nil {
		return nil, fmt.Errorf("failed to load HOT context: %w", err)
	}

	if _, err := w.ctxMgr.Save(agentID, task.ProjectID, types.ItemTask, task.Description); err != nil {
		return nil, fmt.Errorf("failed to save task context: %w", err)
	}

	messages := buildPrompt(task, hotItems, findings)
	raw, err := w.llmClient.Complete(ctx, messages, w.model)
	if err != nil {
		return nil, types.WrapExternalToolFailure("LLM call failed", err)
	}

	var patch patchResponse
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return nil, types.WrapExternalToolFailure("failed to parse LLM patch response", err)
	}

	root := w.workspaceRoot(task.ProjectID)
	for _, edit := range patch.Edits {
		fullPath := filepath.Join(root, edit.Path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return nil, types.WrapTransientInfraError("failed to create directory for edit", err)
		}
		if err := os.WriteFile(fullPath, []byte(edit.Content), 0644); err != nil {
			return nil, types.WrapTransientInfraError("failed to write edit to workspace", err)
		}
		if _, err := w.ctxMgr.Save(agentID, task.ProjectID, types.ItemCode, edit.Content); err != nil {
			return nil, fmt.Errorf("failed to save code context: %w", err)
		}
	}

	return patch.Edits, nil
}

func (w *Worker) runPipeline(ctx context.Context, task *types.Task, edits []patchEdit) (*quality.Outcome, error) {
	files := make(review.FileSet, len(edits))
	paths := make([]string, len(edits))
	for i, e := range edits {
		files[e.Path] = e.Content
		paths[i] = e.Path
	}

	return w.pipeline.Run(ctx, quality.Request{
		Task:          task,
		WorkspacePath: w.workspaceRoot(task.ProjectID),
		ChangedFiles:  paths,
		FileContents:  files,
		TestCommand:   w.testCommand(task.ProjectID),
		CoverageScore: 100,
	})
}

func (w *Worker) commitAndComplete(task *types.Task, edits []patchEdit, qOutcome *quality.Outcome) (*Outcome, error) {
	paths := make([]string, len(edits))
	for i, e := range edits {
		paths[i] = e.Path
	}

	sha, err := w.gitWorkflowFor(task.ProjectID).CommitTask(task, paths)
	if err != nil {
		// GitWorkflow has already emitted a warning event (and, for a
		// genuine git failure, escalated a blocker after enough
		// consecutive failures); completion proceeds regardless of which
		// kind of skip this was (spec §4.6 "does not block completion").
		sha = ""
	}

	if err := w.store.CompleteTaskWithCommit(task.ID, sha); err != nil {
		return nil, fmt.Errorf("failed to mark task completed: %w", err)
	}
	w.publish(events.TaskCompleted, task, map[string]interface{}{"commit_sha": sha})

	return &Outcome{Status: types.TaskCompleted, CommitSHA: sha}, nil
}

func (w *Worker) gitWorkflowFor(projectID int64) *gitwork.Workflow {
	w.gitMu.Lock()
	defer w.gitMu.Unlock()
	if wf, ok := w.gitWorkflows[projectID]; ok {
		return wf
	}
	wf := gitwork.New(w.workspaceRoot(projectID), w.bus, w.blockersMgr, w.gitFailureThreshold)
	w.gitWorkflows[projectID] = wf
	return wf
}

func (w *Worker) publish(eventType events.Type, task *types.Task, extra map[string]interface{}) {
	if w.bus == nil {
		return
	}
	payload := map[string]interface{}{"task_id": task.ID, "status": task.Status}
	for k, v := range extra {
		payload[k] = v
	}
	w.bus.Publish(events.New(eventType, task.ProjectID, strconv.FormatInt(task.ID, 10), payload))
}

// buildPrompt composes a chat prompt from HOT context items, the task
// description, and any outstanding review findings from a prior
// iteration (spec §4.8 step 4 and the revision loop).
func buildPrompt(task *types.Task, hotItems []*types.ContextItem, findings []types.ReviewFinding) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a CodeFRAME worker agent. Respond with a JSON object of the form " +
			`{"summary": "...", "edits": [{"path": "...", "content": "..."}]}` + " describing the files to create or replace."},
	}
	for _, item := range hotItems {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("[%s] %s", item.ItemType, item.Content)})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Task %s: %s\n\n%s", task.TaskNumber, task.Title, task.Description)})
	for _, f := range findings {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Review finding to address — %s:%d %s: %s", f.File, f.Line, f.Severity, f.Message)})
	}
	return messages
}
