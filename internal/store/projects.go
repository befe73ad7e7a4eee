package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateProject inserts a new project, returning a ConflictError if the
// name is already taken (spec §6 "unique (409 on conflict)").
func (s *Store) CreateProject(p *types.Project) error {
	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT 1 FROM projects WHERE name = ?`, p.Name).Scan(&exists); err == nil {
			return types.NewConflictError(fmt.Sprintf("project %q already exists", p.Name))
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check project name: %w", err)
		}

		if p.Phase == "" {
			p.Phase = types.PhaseDiscovery
		}
		if p.Status == "" {
			p.Status = "init"
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}

		res, err := tx.Exec(`
			INSERT INTO projects (name, description, project_type, phase, status, workspace_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Description, string(p.ProjectType), string(p.Phase), p.Status, p.WorkspacePath, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read project id: %w", err)
		}
		p.ID = id
		return nil
	})
}

// GetProject loads a project by id.
func (s *Store) GetProject(id int64) (*types.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, project_type, phase, status, workspace_path, created_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName loads a project by its unique name.
func (s *Store) GetProjectByName(name string) (*types.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, project_type, phase, status, workspace_path, created_at
		FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*types.Project, error) {
	var p types.Project
	var projectType, phase string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &projectType, &phase, &p.Status, &p.WorkspacePath, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ProjectType = types.ProjectType(projectType)
	p.Phase = types.ProjectPhase(phase)
	return &p, nil
}

// ListProjects returns every project.
func (s *Store) ListProjects() ([]*types.Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, project_type, phase, status, workspace_path, created_at
		FROM projects ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		var p types.Project
		var projectType, phase string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &projectType, &phase, &p.Status, &p.WorkspacePath, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.ProjectType = types.ProjectType(projectType)
		p.Phase = types.ProjectPhase(phase)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdatePhase moves a project to newPhase, rejecting illegal transitions
// with a ConsistencyError (spec §3 "phase advances monotonically").
func (s *Store) UpdatePhase(projectID int64, newPhase types.ProjectPhase) error {
	return s.withTx(func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRow(`SELECT phase FROM projects WHERE id = ?`, projectID).Scan(&current); err != nil {
			return fmt.Errorf("failed to load project phase: %w", err)
		}
		if !types.CanTransitionPhase(types.ProjectPhase(current), newPhase) {
			return types.NewConsistencyError(fmt.Sprintf("illegal phase transition %s -> %s", current, newPhase))
		}
		_, err := tx.Exec(`UPDATE projects SET phase = ? WHERE id = ?`, string(newPhase), projectID)
		if err != nil {
			return fmt.Errorf("failed to update phase: %w", err)
		}
		return nil
	})
}

// ProjectProgress computes completed/total task counts in one query
// (spec §6 "progress computed in the same query").
func (s *Store) ProjectProgress(projectID int64) (types.ProjectProgress, error) {
	var completed, total int
	err := s.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*)
		FROM tasks WHERE project_id = ?`, projectID).Scan(&completed, &total)
	if err != nil {
		return types.ProjectProgress{}, fmt.Errorf("failed to compute progress: %w", err)
	}
	return types.NewProjectProgress(completed, total), nil
}
