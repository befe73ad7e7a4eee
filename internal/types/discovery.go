package types

import (
	"strings"
	"time"
)

// DiscoveryQuestion is one entry of the fixed ordered discovery script
// (spec §3: "a fixed ordered list of <=20 questions grouped by category").
type DiscoveryQuestion struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
	Required bool   `json:"required"`
}

// DiscoveryAnswer records one submitted answer for a project.
type DiscoveryAnswer struct {
	ProjectID  int64     `json:"project_id"`
	QuestionID string    `json:"question_id"`
	Category   string    `json:"category"`
	AnswerText string    `json:"answer_text"`
	AnsweredAt time.Time `json:"answered_at"`
}

// ValidateAnswer checks the length invariant from spec §4.11 and §8
// ("Answer length exactly 1 passes; exactly 5001 fails").
func ValidateAnswer(answer string) error {
	if strings.TrimSpace(answer) == "" {
		return NewValidationError("answer must not be whitespace-only")
	}
	if len(answer) < 1 || len(answer) > 5000 {
		return NewValidationError("answer must be between 1 and 5000 characters")
	}
	return nil
}

// DefaultDiscoveryScript returns the fixed ordered discovery questions.
// Kept under 20 entries per spec §3.
func DefaultDiscoveryScript() []DiscoveryQuestion {
	return []DiscoveryQuestion{
		{ID: "goal", Category: "vision", Prompt: "What is the primary goal of this project?", Required: true},
		{ID: "users", Category: "vision", Prompt: "Who are the primary users?", Required: true},
		{ID: "core_features", Category: "scope", Prompt: "What are the 3-5 core features?", Required: true},
		{ID: "non_goals", Category: "scope", Prompt: "What is explicitly out of scope?", Required: false},
		{ID: "data_model", Category: "architecture", Prompt: "What are the main data entities?", Required: true},
		{ID: "integrations", Category: "architecture", Prompt: "What external services must it integrate with?", Required: false},
		{ID: "auth", Category: "architecture", Prompt: "What authentication/authorization model is needed?", Required: false},
		{ID: "deployment", Category: "ops", Prompt: "Where will this be deployed?", Required: false},
		{ID: "timeline", Category: "ops", Prompt: "What is the target timeline?", Required: true},
		{ID: "constraints", Category: "ops", Prompt: "Any technical constraints we must respect?", Required: false},
	}
}
