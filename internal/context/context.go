// Package context implements spec §4.4's ContextManager: per-agent
// tiered memory backed by internal/store, scored by internal/scoring,
// and budget-tracked by internal/tokencounter.
package context

import (
	"time"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/scoring"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/tokencounter"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Manager is the ContextManager described in spec §4.4. It holds no
// per-agent state of its own — every operation is parameterized by
// (project_id, agent_id) and reads/writes through Store.
type Manager struct {
	store      *store.Store
	counter    *tokencounter.Counter
	bus        *events.Bus
	thresholds scoring.Thresholds

	contextLimitTokens int
	flashSaveThreshold float64
}

// New builds a Manager. contextLimitTokens and flashSaveThreshold come
// from config.Snapshot; thresholds from scoring.DefaultThresholds (or a
// config-overridden Thresholds, since spec §4.2 calls HOT/WARM boundaries
// configuration-exposed).
func New(s *store.Store, counter *tokencounter.Counter, bus *events.Bus, th scoring.Thresholds, contextLimitTokens int, flashSaveThreshold float64) *Manager {
	return &Manager{
		store:              s,
		counter:            counter,
		bus:                bus,
		thresholds:         th,
		contextLimitTokens: contextLimitTokens,
		flashSaveThreshold: flashSaveThreshold,
	}
}

// Save scores and persists a new context item, returning its id.
func (m *Manager) Save(agentID string, projectID int64, itemType types.ContextItemType, content string) (int64, error) {
	now := time.Now().UTC()
	score, tier := scoring.ScoreAndTier(itemType, now, now, 0, m.thresholds)

	item := &types.ContextItem{
		AgentID:         agentID,
		ProjectID:       projectID,
		ItemType:        itemType,
		Content:         content,
		ImportanceScore: score,
		TierValue:       tier,
		CreatedAt:       now,
		LastAccessed:    now,
	}
	if err := m.store.CreateContextItem(item); err != nil {
		return 0, types.WrapExternalToolFailure("failed to save context item", err)
	}
	return item.ID, nil
}

// Load returns items for (project_id, agent_id), optionally restricted
// to one tier ("" means every tier). The store bumps access bookkeeping
// for each returned item as a side effect (spec §4.4).
func (m *Manager) Load(agentID string, projectID int64, tier types.Tier) ([]*types.ContextItem, error) {
	var items []*types.ContextItem
	var err error
	if tier == "" {
		items, err = m.store.ListContextItems(projectID, agentID)
	} else {
		items, err = m.store.ListContextItemsByTier(projectID, agentID, tier)
	}
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		touched, err := m.store.GetContextItem(it.ID)
		if err != nil {
			return nil, err
		}
		*it = *touched
	}
	return items, nil
}

// Get loads a single item by id, bumping its access bookkeeping.
func (m *Manager) Get(itemID int64) (*types.ContextItem, error) {
	return m.store.GetContextItem(itemID)
}

// Delete removes a single item.
func (m *Manager) Delete(itemID int64) error {
	return m.store.DeleteContextItem(itemID)
}

// RecomputeTiers rescans every item for (project_id, agent_id), recomputes
// score and tier from current age/access_count, and persists any change.
// Intended for periodic (5-minute) invocation or after bulk saves.
func (m *Manager) RecomputeTiers(agentID string, projectID int64) (types.TierRecomputeResult, error) {
	items, err := m.store.ListContextItems(projectID, agentID)
	if err != nil {
		return types.TierRecomputeResult{}, err
	}

	now := time.Now().UTC()
	var result types.TierRecomputeResult
	for _, it := range items {
		score, tier := scoring.ScoreAndTier(it.ItemType, it.CreatedAt, now, it.AccessCount, m.thresholds)
		if tier != it.TierValue {
			result.Changes++
		}
		if err := m.store.UpdateContextItemTier(it.ID, tier, score); err != nil {
			return types.TierRecomputeResult{}, err
		}
		switch tier {
		case types.TierHot:
			result.Hot++
		case types.TierWarm:
			result.Warm++
		case types.TierCold:
			result.Cold++
		}
	}

	if m.bus != nil {
		m.bus.Publish(events.New(events.ContextTierUpdated, projectID, agentID, map[string]interface{}{
			"hot": result.Hot, "warm": result.Warm, "cold": result.Cold, "changes": result.Changes,
		}))
	}
	return result, nil
}

// ShouldFlashSave reports whether (project_id, agent_id)'s current token
// total has crossed flashSaveThreshold of contextLimitTokens, or force is set.
func (m *Manager) ShouldFlashSave(agentID string, projectID int64, force bool) (bool, error) {
	if force {
		return true, nil
	}
	total, err := m.totalTokens(agentID, projectID)
	if err != nil {
		return false, err
	}
	return float64(total) >= m.flashSaveThreshold*float64(m.contextLimitTokens), nil
}

// FlashSave archives COLD items for (project_id, agent_id) into a new
// ContextCheckpoint, reducing the agent's live token footprint. Per spec
// §4.4 this must reduce tokens 30-50% under default thresholds, though
// the reduction is reported rather than enforced — a project whose HOT
// set alone already exceeds the limit is a configuration problem, not a
// FlashSave bug. The checkpoint write and the COLD delete run inside one
// Store transaction (spec §4.4/§5 flash-save atomicity), so a failure
// partway through leaves neither side effect behind.
func (m *Manager) FlashSave(agentID string, projectID int64) (*types.FlashSaveResult, error) {
	checkpoint, err := m.store.FlashSave(projectID, agentID, func(items []*types.ContextItem) int {
		contents := make([]string, len(items))
		for i, it := range items {
			contents[i] = it.Content
		}
		return m.counter.Sum(contents)
	})
	if err != nil {
		return nil, err
	}

	result := &types.FlashSaveResult{
		Checkpoint:          checkpoint,
		ReductionPercentage: checkpoint.ReductionPercentage(),
	}

	if m.bus != nil {
		m.bus.Publish(events.New(events.FlashSaveCompleted, projectID, agentID, map[string]interface{}{
			"items_archived":      checkpoint.ItemsArchived,
			"reduction_percentage": result.ReductionPercentage,
		}))
	}
	return result, nil
}

// Stats reports tier/token aggregates for GET /api/agents/{id}/context/stats.
func (m *Manager) Stats(agentID string, projectID int64) (types.ContextStats, error) {
	return m.store.ContextStats(projectID, agentID, m.contextLimitTokens, m.counter.Count)
}

// Checkpoints returns an agent's flash-save history, newest first.
func (m *Manager) Checkpoints(agentID string, projectID int64) ([]*types.ContextCheckpoint, error) {
	return m.store.ListContextCheckpoints(projectID, agentID)
}

func (m *Manager) totalTokens(agentID string, projectID int64) (int, error) {
	items, err := m.store.ListContextItems(projectID, agentID)
	if err != nil {
		return 0, err
	}
	contents := make([]string, len(items))
	for i, it := range items {
		contents[i] = it.Content
	}
	return m.counter.Sum(contents), nil
}
