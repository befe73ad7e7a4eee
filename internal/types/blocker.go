package types

import "time"

// BlockerSeverity determines dispatch-time effect: SYNC halts the task's
// branch of work and its dependents; ASYNC lets unrelated ready tasks
// continue dispatching (spec §4.7).
type BlockerSeverity string

const (
	BlockerSync  BlockerSeverity = "sync"
	BlockerAsync BlockerSeverity = "async"
)

// Blocker is the sole human-in-the-loop checkpoint mechanism.
type Blocker struct {
	ID         int64           `json:"id"`
	TaskID     int64           `json:"task_id"`
	Severity   BlockerSeverity `json:"severity"`
	Reason     string          `json:"reason"`
	Question   string          `json:"question"`
	Resolution string          `json:"resolution,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the blocker still needs human input.
func (b *Blocker) IsOpen() bool {
	return b.ResolvedAt == nil
}
