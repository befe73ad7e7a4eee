package types

import "time"

// IssueStatus tracks an issue's lifecycle independent of its tasks.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueDone       IssueStatus = "done"
)

// ProposedBy records whether an issue was proposed by the planning LLM
// or added directly by a human during discovery/approval.
type ProposedBy string

const (
	ProposedByAgent ProposedBy = "agent"
	ProposedByHuman ProposedBy = "human"
)

// Issue groups related tasks under a dotted issue number (e.g. "1.2").
type Issue struct {
	ID          int64       `json:"id"`
	ProjectID   int64       `json:"project_id"`
	IssueNumber string      `json:"issue_number"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      IssueStatus `json:"status"`
	Priority    int         `json:"priority"`
	DependsOn   []int64     `json:"depends_on"`
	ProposedBy  ProposedBy  `json:"proposed_by"`
	CreatedAt   time.Time   `json:"created_at"`
}
