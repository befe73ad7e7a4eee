package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// CreateBlocker opens a blocker, returning the existing open blocker's id
// instead of erroring if one already exists for (task_id, reason) — the
// unique partial index on blockers backs this idempotence (spec §4.7
// "raising the same blocker twice is a no-op that returns the existing id").
func (s *Store) CreateBlocker(b *types.Blocker) error {
	return s.withTx(func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRow(`
			SELECT id FROM blockers WHERE task_id = ? AND reason = ? AND resolved_at IS NULL`,
			b.TaskID, b.Reason).Scan(&existingID)
		if err == nil {
			b.ID = existingID
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check existing blocker: %w", err)
		}

		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		res, err := tx.Exec(`
			INSERT INTO blockers (task_id, severity, reason, question, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			b.TaskID, string(b.Severity), b.Reason, b.Question, b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert blocker: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read blocker id: %w", err)
		}
		b.ID = id

		if b.Severity == types.BlockerSync {
			if _, err := tx.Exec(`UPDATE tasks SET status = ? WHERE id = ?`, string(types.TaskBlocked), b.TaskID); err != nil {
				return fmt.Errorf("failed to mark task blocked: %w", err)
			}
		}
		return nil
	})
}

// ResolveBlocker records a human (or automated) resolution and, for a
// SYNC blocker whose task has no other open SYNC blockers, returns the
// task to pending so the dispatch loop can pick it up again.
func (s *Store) ResolveBlocker(blockerID int64, resolution string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var taskID int64
		var severity string
		if err := tx.QueryRow(`SELECT task_id, severity FROM blockers WHERE id = ?`, blockerID).Scan(&taskID, &severity); err != nil {
			return fmt.Errorf("failed to load blocker: %w", err)
		}

		now := time.Now().UTC()
		res, err := tx.Exec(`
			UPDATE blockers SET resolution = ?, resolved_at = ?
			WHERE id = ? AND resolved_at IS NULL`, resolution, now, blockerID)
		if err != nil {
			return fmt.Errorf("failed to resolve blocker: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to confirm blocker resolution: %w", err)
		}
		if rows == 0 {
			return types.NewConflictError("blocker already resolved")
		}

		if types.BlockerSeverity(severity) != types.BlockerSync {
			return nil
		}
		var remainingOpen int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM blockers WHERE task_id = ? AND severity = 'sync' AND resolved_at IS NULL`,
			taskID).Scan(&remainingOpen); err != nil {
			return fmt.Errorf("failed to count remaining blockers: %w", err)
		}
		if remainingOpen == 0 {
			if _, err := tx.Exec(`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`,
				string(types.TaskPending), taskID, string(types.TaskBlocked)); err != nil {
				return fmt.Errorf("failed to unblock task: %w", err)
			}
		}
		return nil
	})
}

// GetBlocker loads a single blocker by id.
func (s *Store) GetBlocker(id int64) (*types.Blocker, error) {
	row := s.db.QueryRow(`
		SELECT id, task_id, severity, reason, question, resolution, created_at, resolved_at
		FROM blockers WHERE id = ?`, id)
	return scanBlocker(row)
}

func scanBlocker(row *sql.Row) (*types.Blocker, error) {
	var b types.Blocker
	var severity string
	var resolution sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.TaskID, &severity, &b.Reason, &b.Question, &resolution, &b.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	b.Severity = types.BlockerSeverity(severity)
	b.Resolution = nullStringValue(resolution)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}
	return &b, nil
}

// ListOpenBlockers returns every unresolved blocker for a project, joined
// through its tasks, for the pending-questions dashboard (spec §6).
func (s *Store) ListOpenBlockers(projectID int64) ([]*types.Blocker, error) {
	rows, err := s.db.Query(`
		SELECT b.id, b.task_id, b.severity, b.reason, b.question, b.resolution, b.created_at, b.resolved_at
		FROM blockers b
		JOIN tasks t ON t.id = b.task_id
		WHERE t.project_id = ? AND b.resolved_at IS NULL
		ORDER BY b.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open blockers: %w", err)
	}
	defer rows.Close()

	var out []*types.Blocker
	for rows.Next() {
		var b types.Blocker
		var severity string
		var resolution sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.TaskID, &severity, &b.Reason, &b.Question, &resolution, &b.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		b.Severity = types.BlockerSeverity(severity)
		b.Resolution = nullStringValue(resolution)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			b.ResolvedAt = &t
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ListBlockersByTask returns every blocker (open or resolved) for a task.
func (s *Store) ListBlockersByTask(taskID int64) ([]*types.Blocker, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, severity, reason, question, resolution, created_at, resolved_at
		FROM blockers WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task blockers: %w", err)
	}
	defer rows.Close()

	var out []*types.Blocker
	for rows.Next() {
		var b types.Blocker
		var severity string
		var resolution sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.TaskID, &severity, &b.Reason, &b.Question, &resolution, &b.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		b.Severity = types.BlockerSeverity(severity)
		b.Resolution = nullStringValue(resolution)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			b.ResolvedAt = &t
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
