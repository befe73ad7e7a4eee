package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateLintResult appends a linter-run record (spec §4.5 gate 1).
func (s *Store) CreateLintResult(r *types.LintResult) error {
	return s.withTx(func(tx *sql.Tx) error {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		files, err := json.Marshal(r.FilesLinted)
		if err != nil {
			return fmt.Errorf("failed to marshal files linted: %w", err)
		}
		findings, err := json.Marshal(r.Findings)
		if err != nil {
			return fmt.Errorf("failed to marshal lint findings: %w", err)
		}
		res, err := tx.Exec(`
			INSERT INTO lint_results (task_id, linter, error_count, warning_count, files_linted, findings, output, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TaskID, string(r.LinterName), r.ErrorCount, r.WarningCount, string(files), string(findings), r.Output, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert lint result: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read lint result id: %w", err)
		}
		r.ID = id
		return nil
	})
}

// LatestLintResult returns the most recent lint run for a task, or
// sql.ErrNoRows if none exist.
func (s *Store) LatestLintResult(taskID int64) (*types.LintResult, error) {
	row := s.db.QueryRow(`
		SELECT id, task_id, linter, error_count, warning_count, files_linted, findings, output, created_at
		FROM lint_results WHERE task_id = ? ORDER BY created_at DESC LIMIT 1`, taskID)
	return scanLintResult(row)
}

func scanLintResult(row *sql.Row) (*types.LintResult, error) {
	var r types.LintResult
	var linter, files, findings string
	if err := row.Scan(&r.ID, &r.TaskID, &linter, &r.ErrorCount, &r.WarningCount, &files, &findings, &r.Output, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.LinterName = types.Linter(linter)
	if err := json.Unmarshal([]byte(files), &r.FilesLinted); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files linted: %w", err)
	}
	if err := json.Unmarshal([]byte(findings), &r.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lint findings: %w", err)
	}
	return &r, nil
}

// LintTrendPoint is one bucket in a project's lint-health-over-time
// series (supplemented feature, grounded in the teacher's historical
// metrics snapshot pattern).
type LintTrendPoint struct {
	TaskID       int64     `json:"task_id"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// LintTrend returns the last N lint results across every task in a
// project, oldest first, for the lint-trend dashboard endpoint.
func (s *Store) LintTrend(projectID int64, limit int) ([]LintTrendPoint, error) {
	rows, err := s.db.Query(`
		SELECT l.task_id, l.error_count, l.warning_count, l.created_at
		FROM lint_results l
		JOIN tasks t ON t.id = l.task_id
		WHERE t.project_id = ?
		ORDER BY l.created_at DESC
		LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load lint trend: %w", err)
	}
	defer rows.Close()

	var out []LintTrendPoint
	for rows.Next() {
		var p LintTrendPoint
		if err := rows.Scan(&p.TaskID, &p.ErrorCount, &p.WarningCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lint trend point: %w", err)
		}
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// CreateReviewReport appends a review verdict (spec §4.5 gate 3 / §4.10).
func (s *Store) CreateReviewReport(r *types.ReviewReport) error {
	return s.withTx(func(tx *sql.Tx) error {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if r.Iteration == 0 {
			r.Iteration = 1
		}
		findings, err := json.Marshal(r.Findings)
		if err != nil {
			return fmt.Errorf("failed to marshal review findings: %w", err)
		}
		res, err := tx.Exec(`
			INSERT INTO review_reports
				(task_id, overall_score, complexity_score, security_score, style_score, coverage_score, status, findings, iteration, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TaskID, r.OverallScore, r.ComplexityScore, r.SecurityScore, r.StyleScore, r.CoverageScore,
			string(r.Status), string(findings), r.Iteration, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert review report: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read review report id: %w", err)
		}
		r.ID = id
		return nil
	})
}

// LatestReviewReport returns the most recent review for a task.
func (s *Store) LatestReviewReport(taskID int64) (*types.ReviewReport, error) {
	row := s.db.QueryRow(`
		SELECT id, task_id, overall_score, complexity_score, security_score, style_score, coverage_score, status, findings, iteration, created_at
		FROM review_reports WHERE task_id = ? ORDER BY created_at DESC LIMIT 1`, taskID)
	return scanReviewReport(row)
}

func scanReviewReport(row *sql.Row) (*types.ReviewReport, error) {
	var r types.ReviewReport
	var status, findings string
	if err := row.Scan(&r.ID, &r.TaskID, &r.OverallScore, &r.ComplexityScore, &r.SecurityScore, &r.StyleScore,
		&r.CoverageScore, &status, &findings, &r.Iteration, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = types.ReviewStatus(status)
	if err := json.Unmarshal([]byte(findings), &r.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review findings: %w", err)
	}
	return &r, nil
}

// CountReviewIterations reports how many review passes a task has had,
// used to enforce MAX_REVIEW_ITERATIONS (spec §4.5).
func (s *Store) CountReviewIterations(taskID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM review_reports WHERE task_id = ?`, taskID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count review iterations: %w", err)
	}
	return count, nil
}
