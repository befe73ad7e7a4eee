package types

import "time"

// AgentType is the kind of work a worker agent specializes in.
type AgentType string

const (
	AgentTypeBackend  AgentType = "backend"
	AgentTypeFrontend AgentType = "frontend"
	AgentTypeTest     AgentType = "test"
	AgentTypeReview   AgentType = "review"
	AgentTypeLead     AgentType = "lead"
	AgentTypeCustom   AgentType = "custom"
)

// Maturity is a worker-instruction-granularity descriptor (D1..D4 in the
// situational-leadership sense), persisted per agent per spec glossary.
type Maturity string

const (
	MaturityDirective  Maturity = "directive"
	MaturityCoaching   Maturity = "coaching"
	MaturitySupporting Maturity = "supporting"
	MaturityDelegating Maturity = "delegating"
)

// AgentStatus is the current lifecycle state of a worker agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentBlocked AgentStatus = "blocked"
	AgentOffline AgentStatus = "offline"
)

// Agent is a project-agnostic worker; its project binding is derived
// strictly from CurrentTaskID, never cached (spec §9 "project derivation
// from task, not agent construction").
type Agent struct {
	ID              string      `json:"id"`
	Type            AgentType   `json:"type"`
	Provider        string      `json:"provider"`
	Maturity        Maturity    `json:"maturity"`
	Status          AgentStatus `json:"status"`
	CurrentTaskID   string      `json:"current_task_id,omitempty"`
	Capabilities    []string    `json:"capabilities"`
	LastHeartbeat   time.Time   `json:"last_heartbeat"`
	SuccessCount    int         `json:"success_count"`
	FailureCount    int         `json:"failure_count"`
	Metrics         AgentRunMetrics `json:"metrics"`
}

// AgentRunMetrics is the `metrics (json)` column from spec §3.
type AgentRunMetrics struct {
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	TokensUsed     int64 `json:"tokens_used"`
}

// SuccessRate is used by AgentPool's assignment tie-break (spec §4.9).
func (a *Agent) SuccessRate() float64 {
	total := a.SuccessCount + a.FailureCount
	if total == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(total)
}

// HasCapabilities reports whether the agent declares every capability in
// required (a superset check, per spec §4.9 "select an idle capable agent
// whose declared capabilities are a superset").
func (a *Agent) HasCapabilities(required []string) bool {
	have := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// ProjectAgent is the junction row binding an agent to a project for
// pool-management bookkeeping (spec §3); it is never used to derive the
// agent's active project, only for capability-filtering reports.
type ProjectAgent struct {
	ProjectID    int64      `json:"project_id"`
	AgentID      string     `json:"agent_id"`
	Role         string     `json:"role"`
	AssignedAt   time.Time  `json:"assigned_at"`
	UnassignedAt *time.Time `json:"unassigned_at,omitempty"`
	IsActive     bool       `json:"is_active"`
}
