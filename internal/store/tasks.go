package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateTask inserts a task and its dependency edges, enforcing
// acyclicity and same-project dependencies (spec §3 task invariants).
func (s *Store) CreateTask(task *types.Task) error {
	return s.withTx(func(tx *sql.Tx) error {
		if task.Status == "" {
			task.Status = types.TaskPending
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = time.Now().UTC()
		}
		caps, err := json.Marshal(task.RequiredCapabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal required capabilities: %w", err)
		}

		res, err := tx.Exec(`
			INSERT INTO tasks (project_id, issue_id, task_number, title, description, status, required_capabilities, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ProjectID, task.IssueID, task.TaskNumber, task.Title, task.Description,
			string(task.Status), string(caps), task.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read task id: %w", err)
		}
		task.ID = id

		for _, depID := range task.DependsOn {
			var depProject int64
			if err := tx.QueryRow(`SELECT project_id FROM tasks WHERE id = ?`, depID).Scan(&depProject); err != nil {
				return fmt.Errorf("dependency task %d not found: %w", depID, err)
			}
			if depProject != task.ProjectID {
				return types.NewConsistencyError("task dependency must share project_id")
			}
			if _, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)`, task.ID, depID); err != nil {
				return fmt.Errorf("failed to insert task dependency: %w", err)
			}
		}

		if wouldCreateTaskCycle(tx, task.ProjectID) {
			return types.NewConsistencyError("task dependency graph must remain acyclic")
		}
		return nil
	})
}

func wouldCreateTaskCycle(tx *sql.Tx, projectID int64) bool {
	edges := map[int64][]int64{}
	rows, err := tx.Query(`
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.project_id = ?`, projectID)
	if err != nil {
		return true
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return true
		}
		edges[from] = append(edges[from], to)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int64]int{}
	var visit func(n int64) bool
	visit = func(n int64) bool {
		color[n] = gray
		for _, next := range edges[n] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for n := range edges {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}

// GetTask loads a single task with its dependency list.
func (s *Store) GetTask(id int64) (*types.Task, error) {
	t, err := s.scanTaskRow(s.db.QueryRow(`
		SELECT id, project_id, issue_id, task_number, title, description, status,
		       assigned_agent_id, required_capabilities, commit_sha, last_error_reason, created_at, completed_at
		FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	deps, err := s.getTaskDependencies(id)
	if err != nil {
		return nil, err
	}
	t.DependsOn = deps
	return t, nil
}

// GetTaskByCommitSHA resolves a task by full or 7+-char commit SHA prefix
// (spec §6 GET /api/tasks/by-commit).
func (s *Store) GetTaskByCommitSHA(sha string) (*types.Task, error) {
	if len(sha) < 7 {
		return nil, types.NewValidationError("commit sha prefix must be at least 7 characters")
	}
	row := s.db.QueryRow(`
		SELECT id, project_id, issue_id, task_number, title, description, status,
		       assigned_agent_id, required_capabilities, commit_sha, last_error_reason, created_at, completed_at
		FROM tasks WHERE commit_sha LIKE ? || '%' LIMIT 1`, sha)
	return s.scanTaskRow(row)
}

func (s *Store) scanTaskRow(row *sql.Row) (*types.Task, error) {
	var t types.Task
	var status string
	var assignedAgent, commitSHA, lastError, caps sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&t.ID, &t.ProjectID, &t.IssueID, &t.TaskNumber, &t.Title, &t.Description, &status,
		&assignedAgent, &caps, &commitSHA, &lastError, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = types.TaskStatus(status)
	t.AssignedAgentID = nullStringValue(assignedAgent)
	t.CommitSHA = nullStringValue(commitSHA)
	t.LastErrorReason = nullStringValue(lastError)
	if caps.Valid {
		_ = json.Unmarshal([]byte(caps.String), &t.RequiredCapabilities)
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func (s *Store) getTaskDependencies(taskID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task dependencies: %w", err)
	}
	defer rows.Close()
	var deps []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ListTasksByProject returns every task for a project.
func (s *Store) ListTasksByProject(projectID int64) ([]*types.Task, error) {
	rows, err := s.db.Query(`SELECT id FROM tasks WHERE project_id = ? ORDER BY task_number ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []*types.Task
	for _, id := range ids {
		t, err := s.GetTask(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadyTasks computes the ready set for a project: dependencies all
// completed, and no open SYNC blocker (spec §4.11 dispatch loop step 1).
func (s *Store) ReadyTasks(projectID int64) ([]*types.Task, error) {
	rows, err := s.db.Query(`
		SELECT t.id
		FROM tasks t
		WHERE t.project_id = ?
		  AND t.status IN ('pending', 'ready')
		  AND NOT EXISTS (
		      SELECT 1 FROM task_dependencies td
		      JOIN tasks dep ON dep.id = td.depends_on_id
		      WHERE td.task_id = t.id AND dep.status != 'completed'
		  )
		  AND NOT EXISTS (
		      SELECT 1 FROM blockers b
		      WHERE b.task_id = t.id AND b.severity = 'sync' AND b.resolved_at IS NULL
		  )
		ORDER BY t.task_number ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ready tasks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []*types.Task
	for _, id := range ids {
		t, err := s.GetTask(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// TransitionTask validates and applies a status change within a
// transaction, additionally enforcing the at-most-one-in-progress
// invariant when moving to in_progress.
func (s *Store) TransitionTask(taskID int64, newStatus types.TaskStatus) error {
	return s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status); err != nil {
			return fmt.Errorf("failed to load task status: %w", err)
		}
		t := &types.Task{Status: types.TaskStatus(status)}
		if err := t.TransitionTo(newStatus); err != nil {
			return err
		}

		var completedAt interface{}
		if newStatus == types.TaskCompleted {
			completedAt = time.Now().UTC()
		}
		_, err := tx.Exec(`UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
			string(newStatus), completedAt, taskID)
		if err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}
		return nil
	})
}

// AssignTask marks a task in_progress and bound to agentID, rejecting the
// assignment if another agent already holds it in_progress.
func (s *Store) AssignTask(taskID int64, agentID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var status string
		var currentAssignee sql.NullString
		if err := tx.QueryRow(`SELECT status, assigned_agent_id FROM tasks WHERE id = ?`, taskID).Scan(&status, &currentAssignee); err != nil {
			return fmt.Errorf("failed to load task: %w", err)
		}
		if status == string(types.TaskInProgress) && currentAssignee.Valid && currentAssignee.String != agentID {
			return types.NewConflictError("task is already in progress under another agent")
		}
		t := &types.Task{Status: types.TaskStatus(status)}
		if err := t.TransitionTo(types.TaskInProgress); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tasks SET status = ?, assigned_agent_id = ? WHERE id = ?`,
			string(types.TaskInProgress), agentID, taskID); err != nil {
			return fmt.Errorf("failed to assign task: %w", err)
		}
		return nil
	})
}

// CompleteTaskWithCommit marks a task completed and records its commit
// SHA in the same transaction (spec §8 "Task.commit_sha is set iff the
// task is completed"). sha may be empty if GitWorkflow skipped the
// commit; the caller is responsible for emitting the accompanying
// warning event.
func (s *Store) CompleteTaskWithCommit(taskID int64, sha string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status); err != nil {
			return fmt.Errorf("failed to load task: %w", err)
		}
		t := &types.Task{Status: types.TaskStatus(status)}
		if err := t.TransitionTo(types.TaskCompleted); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE tasks SET status = ?, commit_sha = ?, completed_at = ? WHERE id = ?`,
			string(types.TaskCompleted), nullString(sha), time.Now().UTC(), taskID)
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		return nil
	})
}

// FailTask marks a task failed with a structured reason (spec §7
// BudgetExhaustion / TransientInfraError terminal path).
func (s *Store) FailTask(taskID int64, reason string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE tasks SET status = ?, last_error_reason = ? WHERE id = ?`,
			string(types.TaskFailed), reason, taskID); err != nil {
			return fmt.Errorf("failed to fail task: %w", err)
		}
		return nil
	})
}

// UnassignTask releases a task back to ready/pending (used when a
// worker crashes or a blocker reopens its dependents).
func (s *Store) UnassignTask(taskID int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE tasks SET status = ?, assigned_agent_id = NULL WHERE id = ?`,
			string(types.TaskPending), taskID)
		if err != nil {
			return fmt.Errorf("failed to unassign task: %w", err)
		}
		return nil
	})
}
