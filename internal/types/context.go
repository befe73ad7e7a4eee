package types

import "time"

// ContextItemType is the kind of content an agent stashed in its tiered
// memory (spec §3 ContextItem).
type ContextItemType string

const (
	ItemTask        ContextItemType = "TASK"
	ItemCode        ContextItemType = "CODE"
	ItemError       ContextItemType = "ERROR"
	ItemTestResult  ContextItemType = "TEST_RESULT"
	ItemPRDSection  ContextItemType = "PRD_SECTION"
)

// Tier is the importance band a ContextItem falls into.
type Tier string

const (
	TierHot  Tier = "HOT"
	TierWarm Tier = "WARM"
	TierCold Tier = "COLD"
)

// ContextItem is one entry in an agent's per-project Virtual Project
// tiered memory.
type ContextItem struct {
	ID              int64           `json:"id"`
	AgentID         string          `json:"agent_id"`
	ProjectID       int64           `json:"project_id"`
	ItemType        ContextItemType `json:"item_type"`
	Content         string          `json:"content"`
	ImportanceScore float64         `json:"importance_score"`
	TierValue       Tier            `json:"tier"`
	AccessCount     int             `json:"access_count"`
	CreatedAt       time.Time       `json:"created_at"`
	LastAccessed    time.Time       `json:"last_accessed"`
}

// ContextCheckpoint is an append-only flash-save record.
type ContextCheckpoint struct {
	ID                int64     `json:"id"`
	AgentID           string    `json:"agent_id"`
	ProjectID         int64     `json:"project_id"`
	CheckpointData    []byte    `json:"checkpoint_data"`
	ItemsCount        int       `json:"items_count"`
	ItemsArchived     int       `json:"items_archived"`
	HotItemsRetained  int       `json:"hot_items_retained"`
	TokenCountBefore  int       `json:"token_count_before"`
	TokenCountAfter   int       `json:"token_count_after"`
	CreatedAt         time.Time `json:"created_at"`
}

// ReductionPercentage computes the observed flash-save token reduction,
// used to check the spec §8 "reduction_percentage >= 30" property.
func (c *ContextCheckpoint) ReductionPercentage() float64 {
	if c.TokenCountBefore == 0 {
		return 0
	}
	reduced := c.TokenCountBefore - c.TokenCountAfter
	return (float64(reduced) / float64(c.TokenCountBefore)) * 100
}

// FlashSaveResult is returned by ContextManager.FlashSave (spec §4.4).
type FlashSaveResult struct {
	Checkpoint         *ContextCheckpoint `json:"checkpoint"`
	ReductionPercentage float64           `json:"reduction_percentage"`
}

// TierRecomputeResult is returned by ContextManager.RecomputeTiers.
type TierRecomputeResult struct {
	Hot     int `json:"hot"`
	Warm    int `json:"warm"`
	Cold    int `json:"cold"`
	Changes int `json:"changes"`
}

// ContextStats backs GET /api/agents/{id}/context/stats.
type ContextStats struct {
	TotalItems          int     `json:"total_items"`
	HotCount             int     `json:"hot_count"`
	WarmCount            int     `json:"warm_count"`
	ColdCount            int     `json:"cold_count"`
	TotalTokens          int     `json:"total_tokens"`
	HotTokens            int     `json:"hot_tokens"`
	WarmTokens           int     `json:"warm_tokens"`
	ColdTokens           int     `json:"cold_tokens"`
	TokenUsagePercentage float64 `json:"token_usage_percentage"`
}
