package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is one of the canonical event names from spec §4.12. Payload
// shape is the named entity id plus whatever fields are relevant to that
// transition; subscribers type-assert the fields they need out of Payload.
type Type string

const (
	ProjectCreated     Type = "project_created"
	DiscoveryProgress  Type = "discovery_progress"
	PlanningCompleted  Type = "planning_completed"
	TasksApproved      Type = "tasks_approved"
	TaskReady          Type = "task_ready"
	TaskStarted        Type = "task_started"
	TaskCompleted      Type = "task_completed"
	TaskFailed         Type = "task_failed"
	BlockerCreated     Type = "blocker_created"
	BlockerResolved    Type = "blocker_resolved"
	ContextTierUpdated Type = "context_tier_updated"
	FlashSaveCompleted Type = "flash_save_completed"
	LintStarted        Type = "lint_started"
	LintCompleted      Type = "lint_completed"
	LintFailed         Type = "lint_failed"
	ReviewStarted      Type = "review_started"
	ReviewCompleted    Type = "review_completed"
	ReviewFailed       Type = "review_failed"
	CommitSkipped      Type = "commit_skipped"
)

// AllTypes returns the full canonical vocabulary.
func AllTypes() []Type {
	return []Type{
		ProjectCreated, DiscoveryProgress, PlanningCompleted, TasksApproved,
		TaskReady, TaskStarted, TaskCompleted, TaskFailed,
		BlockerCreated, BlockerResolved,
		ContextTierUpdated, FlashSaveCompleted,
		LintStarted, LintCompleted, LintFailed,
		ReviewStarted, ReviewCompleted, ReviewFailed,
		CommitSkipped,
	}
}

// Event is one emission on the bus. ProjectID scopes delivery the way
// Target scoped the teacher's event routing; Version makes the
// per-entity monotonic-ordering guarantee (spec §5) checkable by a
// subscriber that tracks the last version it saw per EntityID.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	ProjectID int64                  `json:"project_id"`
	EntityID  string                 `json:"entity_id"`
	Version   int64                  `json:"version"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// New builds an Event with a generated id and current timestamp. Version
// is left zero; Bus.Publish assigns the next per-entity version so
// callers never need to track it themselves.
func New(eventType Type, projectID int64, entityID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ProjectID: projectID,
		EntityID:  entityID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
