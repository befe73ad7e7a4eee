// Package lead implements LeadAgent (spec §4.11): the per-project
// orchestrator that runs the discovery dialog, turns discovery answers
// into an issue/task tree via the LLM, and drives the bounded-concurrency
// dispatch loop once a project is approved into development.
package lead

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/llm"
	"github.com/codeframe-dev/codeframe/internal/pool"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
	"github.com/codeframe-dev/codeframe/internal/worker"
)

// DiscoveryState is returned after each answer submission (spec §6
// POST /api/projects/{id}/discovery/answer response shape).
type DiscoveryState struct {
	NextQuestion       *types.DiscoveryQuestion
	IsComplete         bool
	CurrentIndex       int
	TotalQuestions     int
	ProgressPercentage float64
}

// Lead is one project's orchestrator. A process holds one Lead per
// active project; each is independent and shares only the Store, Bus,
// and AgentPool underneath it (spec §5 "single-threaded cooperative
// within each project's LeadAgent").
type Lead struct {
	store  *store.Store
	bus    *events.Bus
	pool   *pool.Pool
	worker *worker.Worker
	llm    llm.Client
	model  string
	script []types.DiscoveryQuestion

	maxConcurrent int64
	sem           *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New builds a Lead bound to a single project's dependencies.
func New(s *store.Store, bus *events.Bus, p *pool.Pool, w *worker.Worker, client llm.Client, model string, script []types.DiscoveryQuestion, maxConcurrentTasks int) *Lead {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = 4
	}
	return &Lead{
		store:         s,
		bus:           bus,
		pool:          p,
		worker:        w,
		llm:           client,
		model:         model,
		script:        script,
		maxConcurrent: int64(maxConcurrentTasks),
		sem:           semaphore.NewWeighted(int64(maxConcurrentTasks)),
		inFlight:      make(map[int64]bool),
	}
}

// AnswerDiscovery persists one answer, advances to the next question,
// and flips the project to planning once every required question has
// been answered (spec §4.11 "discovery -> planning").
func (l *Lead) AnswerDiscovery(projectID int64, questionID, answer string) (*DiscoveryState, error) {
	category := ""
	for _, q := range l.script {
		if q.ID == questionID {
			category = q.Category
			break
		}
	}

	if err := l.store.SaveDiscoveryAnswer(&types.DiscoveryAnswer{
		ProjectID:  projectID,
		QuestionID: questionID,
		Category:   category,
		AnswerText: answer,
	}); err != nil {
		return nil, err
	}

	state, err := l.discoveryState(projectID)
	if err != nil {
		return nil, err
	}

	l.publish(projectID, events.DiscoveryProgress, "", map[string]interface{}{
		"current_index":       state.CurrentIndex,
		"progress_percentage": state.ProgressPercentage,
		"is_complete":         state.IsComplete,
	})

	if state.IsComplete {
		if err := l.store.UpdatePhase(projectID, types.PhasePlanning); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// DiscoveryState reports the current position in the discovery script
// without recording an answer (spec §6 GET discovery/progress).
func (l *Lead) DiscoveryState(projectID int64) (*DiscoveryState, error) {
	return l.discoveryState(projectID)
}

func (l *Lead) discoveryState(projectID int64) (*DiscoveryState, error) {
	answers, err := l.store.ListDiscoveryAnswers(projectID)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}

	complete, err := l.store.DiscoveryComplete(projectID, l.script)
	if err != nil {
		return nil, err
	}

	state := &DiscoveryState{
		TotalQuestions: len(l.script),
		CurrentIndex:   len(answered),
		IsComplete:     complete,
	}
	if len(l.script) > 0 {
		state.ProgressPercentage = float64(len(answered)) / float64(len(l.script)) * 100
	}
	if !complete {
		for _, q := range l.script {
			if !answered[q.ID] {
				qCopy := q
				state.NextQuestion = &qCopy
				break
			}
		}
	}
	return state, nil
}

// planTask and planIssue decode the LLM's proposed issue/task tree.
type planTask struct {
	TaskNumber           string   `json:"task_number"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"required_capabilities"`
	DependsOnTaskNumbers []string `json:"depends_on_task_numbers"`
}

type planIssue struct {
	IssueNumber string     `json:"issue_number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Tasks       []planTask `json:"tasks"`
}

type planResponse struct {
	Issues []planIssue `json:"issues"`
}

// Plan asks the LLM to turn the project's discovery answers into an
// issue/task tree, persists it, and advances to awaiting_approval (spec
// §4.11 "planning -> awaiting_approval after LLM produces a complete
// issue+task tree that is a valid DAG"). CreateIssue/CreateTask enforce
// the DAG invariant; a malformed dependency reference surfaces as
// whatever ConsistencyError they return.
func (l *Lead) Plan(ctx context.Context, projectID int64) ([]*types.Issue, error) {
	proj, err := l.store.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project for planning: %w", err)
	}
	answers, err := l.store.ListDiscoveryAnswers(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discovery answers: %w", err)
	}

	raw, err := l.llm.Complete(ctx, buildPlanPrompt(proj, answers), l.model)
	if err != nil {
		return nil, types.WrapExternalToolFailure("planning LLM call failed", err)
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, types.WrapExternalToolFailure("failed to parse planning response", err)
	}

	issues, err := l.persistPlan(projectID, resp)
	if err != nil {
		return nil, err
	}

	if err := l.store.UpdatePhase(projectID, types.PhaseAwaitingApproval); err != nil {
		return nil, err
	}
	l.publish(projectID, events.PlanningCompleted, "", map[string]interface{}{"issue_count": len(issues)})
	return issues, nil
}

func (l *Lead) persistPlan(projectID int64, resp planResponse) ([]*types.Issue, error) {
	var issues []*types.Issue
	taskIDByNumber := make(map[string]int64)

	for _, pi := range resp.Issues {
		issue := &types.Issue{
			ProjectID:   projectID,
			IssueNumber: pi.IssueNumber,
			Title:       pi.Title,
			Description: pi.Description,
			Priority:    pi.Priority,
			ProposedBy:  types.ProposedByAgent,
		}
		if err := l.store.CreateIssue(issue); err != nil {
			return nil, fmt.Errorf("failed to create issue %s: %w", pi.IssueNumber, err)
		}
		issues = append(issues, issue)

		for _, pt := range pi.Tasks {
			var deps []int64
			for _, depNum := range pt.DependsOnTaskNumbers {
				depID, ok := taskIDByNumber[depNum]
				if !ok {
					return nil, types.NewConsistencyError(fmt.Sprintf("task %s depends on unknown task %s", pt.TaskNumber, depNum))
				}
				deps = append(deps, depID)
			}
			task := &types.Task{
				ProjectID:            projectID,
				IssueID:              issue.ID,
				TaskNumber:           pt.TaskNumber,
				Title:                pt.Title,
				Description:          pt.Description,
				RequiredCapabilities: pt.RequiredCapabilities,
				DependsOn:            deps,
			}
			if err := l.store.CreateTask(task); err != nil {
				return nil, fmt.Errorf("failed to create task %s: %w", pt.TaskNumber, err)
			}
			taskIDByNumber[pt.TaskNumber] = task.ID
		}
	}
	return issues, nil
}

func buildPlanPrompt(proj *types.Project, answers []*types.DiscoveryAnswer) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a CodeFRAME lead agent. Respond with a JSON object of the form " +
			`{"issues": [{"issue_number": "1", "title": "...", "description": "...", "priority": 1, "tasks": [{"task_number": "1.1", "title": "...", "description": "...", "required_capabilities": ["backend"], "depends_on_task_numbers": []}]}]}` +
			" describing a dependency-valid breakdown of the project into issues and tasks."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Project %s (%s): %s", proj.Name, proj.ProjectType, proj.Description)},
	}
	for _, a := range answers {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("[%s/%s] %s", a.Category, a.QuestionID, a.AnswerText)})
	}
	return messages
}

// Approve moves a project into development, blocking every task not in
// selectedTaskIDs so it is never picked up by the dispatch loop (spec
// §4.11 "approval may exclude a subset of tasks; excluded tasks are not
// enqueued").
// Approve is idempotent on a project already in (or past) development:
// a repeat call with the same selection re-derives the same
// excluded_count from current task state instead of re-applying
// transitions, satisfying spec §8's "approving the same set of tasks
// twice is a no-op."
func (l *Lead) Approve(projectID int64, selectedTaskIDs []int64) error {
	selected := make(map[int64]bool, len(selectedTaskIDs))
	for _, id := range selectedTaskIDs {
		selected[id] = true
	}

	all, err := l.store.ListTasksByProject(projectID)
	if err != nil {
		return fmt.Errorf("failed to list tasks for approval: %w", err)
	}

	proj, err := l.store.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	alreadyApproved := proj.Phase != types.PhaseAwaitingApproval

	var excluded int
	for _, t := range all {
		if selected[t.ID] {
			continue
		}
		if t.Status == types.TaskBlocked {
			excluded++
			continue
		}
		if alreadyApproved {
			// Already past approval and not in a transitionable state
			// (e.g. completed, failed) for this repeat call: count it
			// as excluded without attempting an illegal transition.
			excluded++
			continue
		}
		if err := l.store.TransitionTask(t.ID, types.TaskBlocked); err != nil {
			return fmt.Errorf("failed to exclude task %s: %w", t.TaskNumber, err)
		}
		excluded++
	}

	if !alreadyApproved {
		if err := l.store.UpdatePhase(projectID, types.PhaseDevelopment); err != nil {
			return fmt.Errorf("failed to enter development: %w", err)
		}
	}
	l.publish(projectID, events.TasksApproved, "", map[string]interface{}{
		"selected_count": len(selectedTaskIDs),
		"excluded_count": excluded,
	})
	return nil
}

// Tick runs one pass of the dispatch loop (spec §4.11): recompute the
// ready set, then for each ready task in priority order try to pull an
// idle capable agent off the pool and hand the task to a worker, up to
// maxConcurrentTasks in flight at once. It is safe to call repeatedly —
// on task_completed, blocker_resolved, or a periodic tick — since a
// task already dispatched never reappears in the ready set.
func (l *Lead) Tick(ctx context.Context, projectID int64) error {
	if err := l.recomputeReady(projectID); err != nil {
		return fmt.Errorf("failed to recompute ready set: %w", err)
	}

	ready, err := l.store.ReadyTasks(projectID)
	if err != nil {
		return fmt.Errorf("failed to load ready tasks: %w", err)
	}
	ready = l.excludeInFlight(ready)

	priorities, err := l.issuePriorities(projectID)
	if err != nil {
		return fmt.Errorf("failed to load issue priorities: %w", err)
	}
	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := priorities[ready[i].IssueID], priorities[ready[j].IssueID]
		if pi != pj {
			return pi > pj
		}
		return ready[i].TaskNumber < ready[j].TaskNumber
	})

	for _, task := range ready {
		if !l.sem.TryAcquire(1) {
			break
		}
		agent, err := l.pool.Assign(projectID, task.ID, task.RequiredCapabilities)
		if err != nil {
			l.sem.Release(1)
			return fmt.Errorf("failed to assign agent for task %s: %w", task.TaskNumber, err)
		}
		if agent == nil {
			l.sem.Release(1)
			continue // backpressure: no capable idle agent right now
		}

		l.markInFlight(task.ID, true)
		go l.runTask(ctx, agent.ID, task.ID)
	}
	return l.maybeEnterReview(projectID)
}

func (l *Lead) runTask(ctx context.Context, agentID string, taskID int64) {
	defer l.sem.Release(1)
	defer l.markInFlight(taskID, false)
	// Execute already releases the agent and records the outcome; a
	// returned error here means the outcome could not even be recorded,
	// which the caller has no synchronous channel to observe — it is
	// left for the next Tick's ready-set recompute and for NotificationSink
	// visibility through whatever event the pipeline already emitted.
	_, _ = l.worker.Execute(ctx, agentID, taskID)
}

func (l *Lead) markInFlight(taskID int64, inFlight bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inFlight {
		l.inFlight[taskID] = true
	} else {
		delete(l.inFlight, taskID)
	}
}

func (l *Lead) excludeInFlight(tasks []*types.Task) []*types.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := tasks[:0:0]
	for _, t := range tasks {
		if !l.inFlight[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func (l *Lead) recomputeReady(projectID int64) error {
	ready, err := l.store.ReadyTasks(projectID)
	if err != nil {
		return err
	}
	for _, t := range ready {
		if t.Status != types.TaskPending {
			continue
		}
		if err := l.store.TransitionTask(t.ID, types.TaskReady); err != nil {
			return err
		}
		l.publish(projectID, events.TaskReady, fmt.Sprintf("%d", t.ID), nil)
	}
	return nil
}

func (l *Lead) issuePriorities(projectID int64) (map[int64]int, error) {
	issues, err := l.store.GetIssuesByProject(projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(issues))
	for _, issue := range issues {
		out[issue.ID] = issue.Priority
	}
	return out, nil
}

// maybeEnterReview advances development -> review once every non-excluded
// task has reached a terminal completed/failed/blocked state with
// nothing left in flight (spec §4.11).
func (l *Lead) maybeEnterReview(projectID int64) error {
	proj, err := l.store.GetProject(projectID)
	if err != nil {
		return err
	}
	if proj.Phase != types.PhaseDevelopment {
		return nil
	}

	tasks, err := l.store.ListTasksByProject(projectID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status == types.TaskPending || t.Status == types.TaskReady ||
			t.Status == types.TaskInProgress || t.Status == types.TaskAwaitingReview {
			return nil
		}
	}

	return l.store.UpdatePhase(projectID, types.PhaseReview)
}

func (l *Lead) publish(projectID int64, eventType events.Type, entityID string, payload map[string]interface{}) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.New(eventType, projectID, entityID, payload))
}
