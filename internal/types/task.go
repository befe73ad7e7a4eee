package types

import "time"

// TaskStatus is the task lifecycle per spec §3 and §5:
// pending -> ready -> in_progress -> (blocked | awaiting_review)* -> completed | failed.
type TaskStatus string

const (
	TaskPending         TaskStatus = "pending"
	TaskReady           TaskStatus = "ready"
	TaskInProgress      TaskStatus = "in_progress"
	TaskBlocked         TaskStatus = "blocked"
	TaskAwaitingReview  TaskStatus = "awaiting_review"
	TaskCompleted       TaskStatus = "completed"
	TaskFailed          TaskStatus = "failed"
)

// validTaskTransitions enumerates the legal single-step moves. Ready is
// reached only through the dependency-satisfied recompute in the Store,
// never as a direct caller-requested transition, so it is its own branch.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:        {TaskReady, TaskBlocked, TaskFailed},
	TaskReady:          {TaskInProgress, TaskBlocked, TaskPending},
	TaskInProgress:     {TaskBlocked, TaskAwaitingReview, TaskCompleted, TaskFailed},
	TaskAwaitingReview: {TaskInProgress, TaskBlocked, TaskCompleted, TaskFailed},
	TaskBlocked:        {TaskPending, TaskReady, TaskInProgress, TaskFailed},
}

// Task is a unit of dispatchable work belonging to an Issue.
type Task struct {
	ID                   int64      `json:"id"`
	ProjectID            int64      `json:"project_id"`
	IssueID              int64      `json:"issue_id"`
	TaskNumber           string     `json:"task_number"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Status               TaskStatus `json:"status"`
	DependsOn            []int64    `json:"depends_on"`
	AssignedAgentID      string     `json:"assigned_agent_id,omitempty"`
	RequiredCapabilities []string   `json:"required_capabilities"`
	CommitSHA            string     `json:"commit_sha,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	LastErrorReason      string     `json:"last_error_reason,omitempty"`
}

// CanTransition reports whether moving from the task's current status to
// newStatus is a legal single-step move.
func (t *Task) CanTransition(newStatus TaskStatus) bool {
	allowed, ok := validTaskTransitions[t.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo validates and applies a status change, returning a
// ConsistencyError if the move is illegal.
func (t *Task) TransitionTo(newStatus TaskStatus) error {
	if !t.CanTransition(newStatus) {
		return NewConsistencyError(
			"invalid task transition from " + string(t.Status) + " to " + string(newStatus))
	}
	t.Status = newStatus
	return nil
}
