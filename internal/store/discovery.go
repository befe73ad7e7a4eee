package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// SaveDiscoveryAnswer upserts an answer, letting a project revisit and
// correct a prior answer before discovery is marked complete (spec §4.11
// "re-answering a question overwrites the prior answer idempotently").
func (s *Store) SaveDiscoveryAnswer(a *types.DiscoveryAnswer) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := types.ValidateAnswer(a.AnswerText); err != nil {
			return err
		}
		if a.AnsweredAt.IsZero() {
			a.AnsweredAt = time.Now().UTC()
		}
		_, err := tx.Exec(`
			INSERT INTO discovery_answers (project_id, question_id, category, answer_text, answered_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(project_id, question_id) DO UPDATE SET
				answer_text = excluded.answer_text,
				answered_at = excluded.answered_at`,
			a.ProjectID, a.QuestionID, a.Category, a.AnswerText, a.AnsweredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save discovery answer: %w", err)
		}
		return nil
	})
}

// ListDiscoveryAnswers returns every answer recorded for a project.
func (s *Store) ListDiscoveryAnswers(projectID int64) ([]*types.DiscoveryAnswer, error) {
	rows, err := s.db.Query(`
		SELECT project_id, question_id, category, answer_text, answered_at
		FROM discovery_answers WHERE project_id = ? ORDER BY answered_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discovery answers: %w", err)
	}
	defer rows.Close()

	var out []*types.DiscoveryAnswer
	for rows.Next() {
		var a types.DiscoveryAnswer
		if err := rows.Scan(&a.ProjectID, &a.QuestionID, &a.Category, &a.AnswerText, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery answer: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DiscoveryComplete reports whether every required question in script
// has a recorded answer (spec §4.11 "discovery completes when all
// required questions are answered").
func (s *Store) DiscoveryComplete(projectID int64, script []types.DiscoveryQuestion) (bool, error) {
	answers, err := s.ListDiscoveryAnswers(projectID)
	if err != nil {
		return false, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	for _, q := range script {
		if q.Required && !answered[q.ID] {
			return false, nil
		}
	}
	return true, nil
}
