package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// RegisterAgent inserts or replaces an agent's registration row (spec §4.9
// "the pool persists agent identity across restarts").
func (s *Store) RegisterAgent(a *types.Agent) error {
	return s.withTx(func(tx *sql.Tx) error {
		if a.Status == "" {
			a.Status = types.AgentIdle
		}
		if a.LastHeartbeat.IsZero() {
			a.LastHeartbeat = time.Now().UTC()
		}
		caps, err := json.Marshal(a.Capabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal agent capabilities: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO agents (id, type, provider, maturity, status, current_task_id, capabilities,
			                    success_count, failure_count, tasks_completed, tasks_failed, tokens_used, last_heartbeat)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type = excluded.type,
				provider = excluded.provider,
				maturity = excluded.maturity,
				capabilities = excluded.capabilities,
				last_heartbeat = excluded.last_heartbeat`,
			a.ID, string(a.Type), a.Provider, string(a.Maturity), string(a.Status),
			nullTaskID(a.CurrentTaskID), string(caps),
			a.SuccessCount, a.FailureCount, a.Metrics.TasksCompleted, a.Metrics.TasksFailed,
			a.Metrics.TokensUsed, a.LastHeartbeat,
		)
		if err != nil {
			return fmt.Errorf("failed to register agent: %w", err)
		}
		return nil
	})
}

func nullTaskID(taskID string) interface{} {
	if taskID == "" {
		return nil
	}
	id, err := strconv.ParseInt(taskID, 10, 64)
	if err != nil {
		return nil
	}
	return id
}

// GetAgent loads a single agent by id.
func (s *Store) GetAgent(id string) (*types.Agent, error) {
	row := s.db.QueryRow(`
		SELECT id, type, provider, maturity, status, current_task_id, capabilities,
		       success_count, failure_count, tasks_completed, tasks_failed, tokens_used, last_heartbeat
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*types.Agent, error) {
	var a types.Agent
	var agentType, provider, maturity, status, caps string
	var currentTaskID sql.NullInt64

	if err := row.Scan(&a.ID, &agentType, &provider, &maturity, &status, &currentTaskID, &caps,
		&a.SuccessCount, &a.FailureCount, &a.Metrics.TasksCompleted, &a.Metrics.TasksFailed,
		&a.Metrics.TokensUsed, &a.LastHeartbeat); err != nil {
		return nil, err
	}
	a.Type = types.AgentType(agentType)
	a.Provider = provider
	a.Maturity = types.Maturity(maturity)
	a.Status = types.AgentStatus(status)
	if currentTaskID.Valid {
		a.CurrentTaskID = strconv.FormatInt(currentTaskID.Int64, 10)
	}
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent capabilities: %w", err)
	}
	return &a, nil
}

// ListIdleAgents returns every agent currently idle, for AgentPool's
// assignment scan (spec §4.9).
func (s *Store) ListIdleAgents() ([]*types.Agent, error) {
	return s.listAgentsWhere(`status = ?`, string(types.AgentIdle))
}

// ListAgents returns every registered agent.
func (s *Store) ListAgents() ([]*types.Agent, error) {
	return s.listAgentsWhere(`1 = 1`)
}

func (s *Store) listAgentsWhere(where string, args ...interface{}) ([]*types.Agent, error) {
	rows, err := s.db.Query(`
		SELECT id, type, provider, maturity, status, current_task_id, capabilities,
		       success_count, failure_count, tasks_completed, tasks_failed, tokens_used, last_heartbeat
		FROM agents WHERE `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var out []*types.Agent
	for rows.Next() {
		var a types.Agent
		var agentType, provider, maturity, status, caps string
		var currentTaskID sql.NullInt64
		if err := rows.Scan(&a.ID, &agentType, &provider, &maturity, &status, &currentTaskID, &caps,
			&a.SuccessCount, &a.FailureCount, &a.Metrics.TasksCompleted, &a.Metrics.TasksFailed,
			&a.Metrics.TokensUsed, &a.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.Type = types.AgentType(agentType)
		a.Maturity = types.Maturity(maturity)
		a.Status = types.AgentStatus(status)
		if currentTaskID.Valid {
			a.CurrentTaskID = strconv.FormatInt(currentTaskID.Int64, 10)
		}
		if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent capabilities: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AssignAgentToTask atomically binds an agent to a task and flips it to
// working, rejecting the assignment if the agent is not idle (spec §4.9
// "assignment and status flip happen atomically").
func (s *Store) AssignAgentToTask(agentID string, taskID int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(`SELECT status FROM agents WHERE id = ?`, agentID).Scan(&status); err != nil {
			return fmt.Errorf("failed to load agent: %w", err)
		}
		if types.AgentStatus(status) != types.AgentIdle {
			return types.NewConflictError(fmt.Sprintf("agent %s is not idle", agentID))
		}
		_, err := tx.Exec(`UPDATE agents SET status = ?, current_task_id = ? WHERE id = ?`,
			string(types.AgentWorking), taskID, agentID)
		if err != nil {
			return fmt.Errorf("failed to assign agent: %w", err)
		}
		return nil
	})
}

// SetAgentStatus forces an agent directly to status, clearing
// current_task_id unless the new status is working. Used by AgentPool's
// destroy and stale-heartbeat reap paths, which must flip status without
// disturbing the identity fields RegisterAgent's upsert preserves.
func (s *Store) SetAgentStatus(agentID string, status types.AgentStatus) error {
	return s.withTx(func(tx *sql.Tx) error {
		var err error
		if status == types.AgentWorking {
			_, err = tx.Exec(`UPDATE agents SET status = ? WHERE id = ?`, string(status), agentID)
		} else {
			_, err = tx.Exec(`UPDATE agents SET status = ?, current_task_id = NULL WHERE id = ?`, string(status), agentID)
		}
		if err != nil {
			return fmt.Errorf("failed to set agent status: %w", err)
		}
		return nil
	})
}

// ReleaseAgent returns an agent to idle and clears its current task,
// recording the outcome in its running success/failure counters.
func (s *Store) ReleaseAgent(agentID string, succeeded bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		col := "failure_count"
		metricsCol := "tasks_failed"
		if succeeded {
			col = "success_count"
			metricsCol = "tasks_completed"
		}
		_, err := tx.Exec(fmt.Sprintf(`
			UPDATE agents
			SET status = ?, current_task_id = NULL, %s = %s + 1, %s = %s + 1
			WHERE id = ?`, col, col, metricsCol, metricsCol),
			string(types.AgentIdle), agentID)
		if err != nil {
			return fmt.Errorf("failed to release agent: %w", err)
		}
		return nil
	})
}

// RecordAgentHeartbeat updates the liveness timestamp used by the pool's
// stale-agent reaper.
func (s *Store) RecordAgentHeartbeat(agentID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE agents SET last_heartbeat = ? WHERE id = ?`, time.Now().UTC(), agentID)
		if err != nil {
			return fmt.Errorf("failed to record heartbeat: %w", err)
		}
		return nil
	})
}

// AddAgentTokens accumulates token usage onto an agent's running total
// (spec §4.3 TokenCounter integration).
func (s *Store) AddAgentTokens(agentID string, tokens int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE agents SET tokens_used = tokens_used + ? WHERE id = ?`, tokens, agentID)
		if err != nil {
			return fmt.Errorf("failed to add agent tokens: %w", err)
		}
		return nil
	})
}

// BindAgentToProject records a project_agents junction row (spec §3); it
// is bookkeeping only and must never be used to derive an agent's active
// project (that comes from its current task).
func (s *Store) BindAgentToProject(projectID int64, agentID, role string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO project_agents (project_id, agent_id, role, assigned_at, is_active)
			VALUES (?, ?, ?, ?, 1)`, projectID, agentID, role, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to bind agent to project: %w", err)
		}
		return nil
	})
}

// UnbindAgentFromProject marks the most recent active binding inactive.
func (s *Store) UnbindAgentFromProject(projectID int64, agentID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE project_agents SET is_active = 0, unassigned_at = ?
			WHERE project_id = ? AND agent_id = ? AND is_active = 1`,
			time.Now().UTC(), projectID, agentID)
		if err != nil {
			return fmt.Errorf("failed to unbind agent from project: %w", err)
		}
		return nil
	})
}

// ListAgentsForProject returns the agents currently actively bound to a
// project via the project_agents junction table.
func (s *Store) ListAgentsForProject(projectID int64) ([]*types.Agent, error) {
	rows, err := s.db.Query(`
		SELECT a.id
		FROM agents a
		JOIN project_agents pa ON pa.agent_id = a.id
		WHERE pa.project_id = ? AND pa.is_active = 1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project agents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []*types.Agent
	for _, id := range ids {
		a, err := s.GetAgent(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
