package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateContextItem inserts a new tiered-memory item.
func (s *Store) CreateContextItem(item *types.ContextItem) error {
	return s.withTx(func(tx *sql.Tx) error {
		if item.TierValue == "" {
			item.TierValue = types.TierCold
		}
		now := time.Now().UTC()
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		if item.LastAccessed.IsZero() {
			item.LastAccessed = now
		}
		res, err := tx.Exec(`
			INSERT INTO context_items (agent_id, project_id, item_type, content, importance_score, tier, access_count, created_at, last_accessed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.AgentID, item.ProjectID, string(item.ItemType), item.Content, item.ImportanceScore,
			string(item.TierValue), item.AccessCount, item.CreatedAt, item.LastAccessed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert context item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read context item id: %w", err)
		}
		item.ID = id
		return nil
	})
}

// GetContextItem loads one item by id and bumps its access bookkeeping,
// matching the teacher's read-touches-row convention for recency tiers.
func (s *Store) GetContextItem(id int64) (*types.ContextItem, error) {
	var item *types.ContextItem
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, agent_id, project_id, item_type, content, importance_score, tier, access_count, created_at, last_accessed
			FROM context_items WHERE id = ?`, id)
		it, err := scanContextItem(row)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(`UPDATE context_items SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("failed to bump context item access: %w", err)
		}
		it.AccessCount++
		it.LastAccessed = now
		item = it
		return nil
	})
	return item, err
}

func scanContextItem(row *sql.Row) (*types.ContextItem, error) {
	var it types.ContextItem
	var itemType, tier string
	if err := row.Scan(&it.ID, &it.AgentID, &it.ProjectID, &itemType, &it.Content, &it.ImportanceScore,
		&tier, &it.AccessCount, &it.CreatedAt, &it.LastAccessed); err != nil {
		return nil, err
	}
	it.ItemType = types.ContextItemType(itemType)
	it.TierValue = types.Tier(tier)
	return &it, nil
}

// ListContextItems returns every item for an agent within a project,
// the composite-index-backed retrieval path (spec §4.1).
func (s *Store) ListContextItems(projectID int64, agentID string) ([]*types.ContextItem, error) {
	return s.listContextItemsWhere(`project_id = ? AND agent_id = ?`, projectID, agentID)
}

// ListContextItemsByTier restricts the retrieval to a single tier.
func (s *Store) ListContextItemsByTier(projectID int64, agentID string, tier types.Tier) ([]*types.ContextItem, error) {
	return s.listContextItemsWhere(`project_id = ? AND agent_id = ? AND tier = ?`, projectID, agentID, string(tier))
}

func (s *Store) listContextItemsWhere(where string, args ...interface{}) ([]*types.ContextItem, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, project_id, item_type, content, importance_score, tier, access_count, created_at, last_accessed
		FROM context_items WHERE `+where+` ORDER BY importance_score DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list context items: %w", err)
	}
	defer rows.Close()

	var out []*types.ContextItem
	for rows.Next() {
		var it types.ContextItem
		var itemType, tier string
		if err := rows.Scan(&it.ID, &it.AgentID, &it.ProjectID, &itemType, &it.Content, &it.ImportanceScore,
			&tier, &it.AccessCount, &it.CreatedAt, &it.LastAccessed); err != nil {
			return nil, fmt.Errorf("failed to scan context item: %w", err)
		}
		it.ItemType = types.ContextItemType(itemType)
		it.TierValue = types.Tier(tier)
		out = append(out, &it)
	}
	return out, rows.Err()
}

// UpdateContextItemTier applies a recomputed tier (ContextManager.RecomputeTiers).
func (s *Store) UpdateContextItemTier(id int64, tier types.Tier, importance float64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE context_items SET tier = ?, importance_score = ? WHERE id = ?`,
			string(tier), importance, id)
		if err != nil {
			return fmt.Errorf("failed to update context item tier: %w", err)
		}
		return nil
	})
}

// DeleteContextItem removes a single item.
func (s *Store) DeleteContextItem(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM context_items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete context item: %w", err)
		}
		return nil
	})
}

// FlashSave runs a flash-save inside one transaction: it snapshots every
// item for (project_id, agent_id), writes the ContextCheckpoint row, and
// only then deletes the COLD rows it archived. Writing the checkpoint
// before the delete (and both inside one tx) means a failure partway
// through loses neither side: a failed insert rolls back before any
// delete runs, and a failed delete rolls back the insert with it (spec
// §4.4/§5 flash-save atomicity — "the ContextCheckpoint is written
// before COLD deletion; on failure, neither side effect persists").
// countTokens lets the caller supply real BPE counts (internal/
// tokencounter) without this package importing it back.
func (s *Store) FlashSave(projectID int64, agentID string, countTokens func([]*types.ContextItem) int) (*types.ContextCheckpoint, error) {
	var checkpoint *types.ContextCheckpoint
	err := s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, agent_id, project_id, item_type, content, importance_score, tier, access_count, created_at, last_accessed
			FROM context_items WHERE project_id = ? AND agent_id = ? ORDER BY importance_score DESC`, projectID, agentID)
		if err != nil {
			return fmt.Errorf("failed to list context items for flash save: %w", err)
		}
		var items []*types.ContextItem
		for rows.Next() {
			var it types.ContextItem
			var itemType, tier string
			if err := rows.Scan(&it.ID, &it.AgentID, &it.ProjectID, &itemType, &it.Content, &it.ImportanceScore,
				&tier, &it.AccessCount, &it.CreatedAt, &it.LastAccessed); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan context item for flash save: %w", err)
			}
			it.ItemType = types.ContextItemType(itemType)
			it.TierValue = types.Tier(tier)
			items = append(items, &it)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to list context items for flash save: %w", err)
		}
		rows.Close()

		tokensBefore := countTokens(items)

		var coldIDs []int64
		var retained []*types.ContextItem
		hotRetained := 0
		for _, it := range items {
			if it.TierValue == types.TierCold {
				coldIDs = append(coldIDs, it.ID)
				continue
			}
			retained = append(retained, it)
			if it.TierValue == types.TierHot {
				hotRetained++
			}
		}
		tokensAfter := countTokens(retained)

		checkpointData, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to serialize flash-save checkpoint: %w", err)
		}

		c := &types.ContextCheckpoint{
			AgentID:          agentID,
			ProjectID:        projectID,
			CheckpointData:   checkpointData,
			ItemsCount:       len(items),
			ItemsArchived:    len(coldIDs),
			HotItemsRetained: hotRetained,
			TokenCountBefore: tokensBefore,
			TokenCountAfter:  tokensAfter,
			CreatedAt:        time.Now().UTC(),
		}
		res, err := tx.Exec(`
			INSERT INTO context_checkpoints
				(agent_id, project_id, checkpoint_data, items_count, items_archived, hot_items_retained, token_count_before, token_count_after, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.AgentID, c.ProjectID, c.CheckpointData, c.ItemsCount, c.ItemsArchived, c.HotItemsRetained,
			c.TokenCountBefore, c.TokenCountAfter, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert context checkpoint: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read context checkpoint id: %w", err)
		}
		c.ID = id

		for _, coldID := range coldIDs {
			if _, err := tx.Exec(`DELETE FROM context_items WHERE id = ?`, coldID); err != nil {
				return fmt.Errorf("failed to delete archived context item: %w", err)
			}
		}

		checkpoint = c
		return nil
	})
	return checkpoint, err
}

// ListContextCheckpoints returns checkpoints for an agent, newest first.
func (s *Store) ListContextCheckpoints(projectID int64, agentID string) ([]*types.ContextCheckpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, project_id, checkpoint_data, items_count, items_archived, hot_items_retained, token_count_before, token_count_after, created_at
		FROM context_checkpoints WHERE project_id = ? AND agent_id = ? ORDER BY created_at DESC`, projectID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list context checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*types.ContextCheckpoint
	for rows.Next() {
		var c types.ContextCheckpoint
		if err := rows.Scan(&c.ID, &c.AgentID, &c.ProjectID, &c.CheckpointData, &c.ItemsCount, &c.ItemsArchived,
			&c.HotItemsRetained, &c.TokenCountBefore, &c.TokenCountAfter, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan context checkpoint: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ContextStats aggregates tier/token counts for GET /api/agents/{id}/context/stats.
// countTokens should be the same TokenCounter the caller uses for
// ShouldFlashSave/FlashSave, so the reported token_usage_percentage
// agrees with the threshold that actually triggers a flash save.
func (s *Store) ContextStats(projectID int64, agentID string, tokenLimit int, countTokens func(string) int) (types.ContextStats, error) {
	items, err := s.ListContextItems(projectID, agentID)
	if err != nil {
		return types.ContextStats{}, err
	}
	var stats types.ContextStats
	for _, it := range items {
		stats.TotalItems++
		tokens := countTokens(it.Content)
		stats.TotalTokens += tokens
		switch it.TierValue {
		case types.TierHot:
			stats.HotCount++
			stats.HotTokens += tokens
		case types.TierWarm:
			stats.WarmCount++
			stats.WarmTokens += tokens
		case types.TierCold:
			stats.ColdCount++
			stats.ColdTokens += tokens
		}
	}
	if tokenLimit > 0 {
		stats.TokenUsagePercentage = (float64(stats.TotalTokens) / float64(tokenLimit)) * 100
	}
	return stats, nil
}
