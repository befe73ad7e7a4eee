package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateIssue inserts an issue and its dependency edges, rejecting the
// write if the resulting dependency graph would contain a cycle (spec §3
// "the depends_on graph is a DAG, checked on insert/update").
func (s *Store) CreateIssue(issue *types.Issue) error {
	return s.withTx(func(tx *sql.Tx) error {
		if issue.CreatedAt.IsZero() {
			issue.CreatedAt = time.Now().UTC()
		}
		res, err := tx.Exec(`
			INSERT INTO issues (project_id, issue_number, title, description, status, priority, proposed_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.ProjectID, issue.IssueNumber, issue.Title, issue.Description,
			string(issue.Status), issue.Priority, string(issue.ProposedBy), issue.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read issue id: %w", err)
		}
		issue.ID = id

		if err := insertIssueDependencies(tx, issue.ID, issue.ProjectID, issue.DependsOn); err != nil {
			return err
		}
		return nil
	})
}

func insertIssueDependencies(tx *sql.Tx, issueID, projectID int64, dependsOn []int64) error {
	for _, depID := range dependsOn {
		var depProject int64
		if err := tx.QueryRow(`SELECT project_id FROM issues WHERE id = ?`, depID).Scan(&depProject); err != nil {
			return fmt.Errorf("dependency issue %d not found: %w", depID, err)
		}
		if depProject != projectID {
			return types.NewConsistencyError("issue dependency must share project_id")
		}
		if _, err := tx.Exec(`INSERT INTO issue_dependencies (issue_id, depends_on_id) VALUES (?, ?)`, issueID, depID); err != nil {
			return fmt.Errorf("failed to insert issue dependency: %w", err)
		}
	}

	if wouldCreateIssueCycle(tx, projectID) {
		return types.NewConsistencyError("issue dependency graph must remain acyclic")
	}
	return nil
}

// wouldCreateIssueCycle walks the full project issue-dependency graph
// looking for a cycle; called after inserting new edges within the same
// transaction so the check sees the candidate graph.
func wouldCreateIssueCycle(tx *sql.Tx, projectID int64) bool {
	edges := map[int64][]int64{}
	rows, err := tx.Query(`
		SELECT d.issue_id, d.depends_on_id
		FROM issue_dependencies d
		JOIN issues i ON i.id = d.issue_id
		WHERE i.project_id = ?`, projectID)
	if err != nil {
		return true // fail closed: treat a query error as a potential cycle
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return true
		}
		edges[from] = append(edges[from], to)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int64]int{}
	var visit func(n int64) bool
	visit = func(n int64) bool {
		color[n] = gray
		for _, next := range edges[n] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for n := range edges {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}

// GetIssuesByProject returns every issue for a project, with dependencies
// populated, ordered by issue_number.
func (s *Store) GetIssuesByProject(projectID int64) ([]*types.Issue, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, issue_number, title, description, status, priority, proposed_by, created_at
		FROM issues WHERE project_id = ? ORDER BY issue_number ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		var it types.Issue
		var status, proposedBy string
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.IssueNumber, &it.Title, &it.Description, &status, &it.Priority, &proposedBy, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		it.Status = types.IssueStatus(status)
		it.ProposedBy = types.ProposedBy(proposedBy)
		issues = append(issues, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, it := range issues {
		deps, err := s.getIssueDependencies(it.ID)
		if err != nil {
			return nil, err
		}
		it.DependsOn = deps
	}
	return issues, nil
}

func (s *Store) getIssueDependencies(issueID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT depends_on_id FROM issue_dependencies WHERE issue_id = ?`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load issue dependencies: %w", err)
	}
	defer rows.Close()
	var deps []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
