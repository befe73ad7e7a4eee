// Package pool implements AgentPool (spec §4.9): a registry of live worker
// agents with pluggable capability descriptors, capability-based
// assignment, project binding, and heartbeat-driven liveness tracking.
package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// maturityRank orders the D1..D4 maturity levels for assignment
// tie-breaking (spec §4.9 "tie-break by maturity level, higher first").
var maturityRank = map[types.Maturity]int{
	types.MaturityDirective:  1,
	types.MaturityCoaching:   2,
	types.MaturitySupporting: 3,
	types.MaturityDelegating: 4,
}

// Pool tracks agent liveness in memory and reconciles with the Store on
// heartbeat (spec §5 "The AgentPool holds agent status in memory;
// reconciliation with Store agents table occurs on heartbeat").
type Pool struct {
	store *store.Store
	bus   *events.Bus

	mu          sync.Mutex
	definitions map[string]*types.AgentDefinition
	staleAfter  time.Duration
}

// New builds a Pool seeded with the given agent definitions.
func New(s *store.Store, bus *events.Bus, definitions map[string]*types.AgentDefinition, staleAfter time.Duration) *Pool {
	return &Pool{
		store:       s,
		bus:         bus,
		definitions: definitions,
		staleAfter:  staleAfter,
	}
}

// SetDefinitions replaces the pool's definitions wholesale, used when a
// definitions directory is reloaded at runtime (spec §9 "no core code
// change required").
func (p *Pool) SetDefinitions(defs map[string]*types.AgentDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.definitions = defs
}

// Spawn registers a new agent from a named definition and persists it as
// idle (spec §4.9 "create... agents").
func (p *Pool) Spawn(agentID, definitionName string) (*types.Agent, error) {
	p.mu.Lock()
	def, ok := p.definitions[definitionName]
	p.mu.Unlock()
	if !ok {
		return nil, types.NewPreconditionError(fmt.Sprintf("no agent definition named %q", definitionName))
	}

	agent := &types.Agent{
		ID:           agentID,
		Type:         def.Type,
		Provider:     def.Provider,
		Maturity:     def.Maturity,
		Status:       types.AgentIdle,
		Capabilities: append([]string{}, def.Capabilities...),
	}
	if err := p.store.RegisterAgent(agent); err != nil {
		return nil, fmt.Errorf("failed to spawn agent: %w", err)
	}
	return agent, nil
}

// Destroy marks an agent offline. It does not delete its row: history
// (success/failure counters, tokens used) is retained for the record.
func (p *Pool) Destroy(agentID string) error {
	if err := p.store.SetAgentStatus(agentID, types.AgentOffline); err != nil {
		return fmt.Errorf("failed to destroy agent: %w", err)
	}
	return nil
}

// Heartbeat records liveness and reconciles the in-memory stale check
// against the Store (spec §4.9 "heartbeat-track agents").
func (p *Pool) Heartbeat(agentID string) error {
	return p.store.RecordAgentHeartbeat(agentID)
}

// Reap transitions every agent whose last heartbeat is older than
// staleAfter to offline, so a crashed worker's capability no longer
// counts toward assignment.
func (p *Pool) Reap() ([]string, error) {
	if p.staleAfter <= 0 {
		return nil, nil
	}
	agents, err := p.store.ListAgents()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents for reap: %w", err)
	}

	cutoff := time.Now().UTC().Add(-p.staleAfter)
	var reaped []string
	for _, a := range agents {
		if a.Status == types.AgentOffline {
			continue
		}
		if a.LastHeartbeat.After(cutoff) {
			continue
		}
		if err := p.store.SetAgentStatus(a.ID, types.AgentOffline); err != nil {
			return reaped, fmt.Errorf("failed to reap agent %s: %w", a.ID, err)
		}
		reaped = append(reaped, a.ID)
	}
	return reaped, nil
}

// Assign selects an idle agent whose declared capabilities are a
// superset of required, tie-breaking by maturity (higher first) then
// recent success rate, and atomically binds it to the task (spec §4.9
// "Assignment"). A nil agent with a nil error means backpressure: no
// capable idle agent exists right now, and the task should remain
// ready for the next dispatch tick.
func (p *Pool) Assign(projectID, taskID int64, required []string) (*types.Agent, error) {
	idle, err := p.store.ListIdleAgents()
	if err != nil {
		return nil, fmt.Errorf("failed to list idle agents: %w", err)
	}

	candidates := make([]*types.Agent, 0, len(idle))
	for _, a := range idle {
		if hasAllCapabilities(a.Capabilities, required) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := maturityRank[candidates[i].Maturity], maturityRank[candidates[j].Maturity]
		if ri != rj {
			return ri > rj
		}
		return candidates[i].SuccessRate() > candidates[j].SuccessRate()
	})
	chosen := candidates[0]

	if err := p.store.AssignAgentToTask(chosen.ID, taskID); err != nil {
		return nil, fmt.Errorf("failed to assign agent %s: %w", chosen.ID, err)
	}

	if err := p.bindToProjectIfNew(projectID, chosen.ID); err != nil {
		return nil, err
	}

	chosen.Status = types.AgentWorking
	chosen.CurrentTaskID = fmt.Sprintf("%d", taskID)
	return chosen, nil
}

// bindToProjectIfNew records a ProjectAgent row the first time an agent
// is chosen for a project; this is bookkeeping only and never
// constrains future assignments (spec §4.9 "Project binding").
func (p *Pool) bindToProjectIfNew(projectID int64, agentID string) error {
	bound, err := p.store.ListAgentsForProject(projectID)
	if err != nil {
		return fmt.Errorf("failed to check project binding: %w", err)
	}
	for _, a := range bound {
		if a.ID == agentID {
			return nil
		}
	}
	if err := p.store.BindAgentToProject(projectID, agentID, "worker"); err != nil {
		return fmt.Errorf("failed to bind agent to project: %w", err)
	}
	return nil
}

// Release returns an agent to idle, recording the task outcome.
func (p *Pool) Release(agentID string, succeeded bool) error {
	return p.store.ReleaseAgent(agentID, succeeded)
}

func hasAllCapabilities(have, required []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}
