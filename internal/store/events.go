package store

import (
	"database/sql"
	"fmt"
	"time"
)

// EventRecord is the persisted shape of one EventBus emission; kept
// dependency-free of internal/events so Store never imports it — the
// adapter in internal/events converts between the two.
type EventRecord struct {
	ID          string
	Type        string
	ProjectID   int64
	EntityID    string
	Version     int64
	PayloadJSON string
	CreatedAt   time.Time
	DeliveredAt *time.Time
}

// SaveEvent persists one EventBus emission for later replay (spec §4.12
// "no durable replay" refers to delivery guarantees, not storage — the
// dashboard's event feed still needs history).
func (s *Store) SaveEvent(e *EventRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		_, err := tx.Exec(`
			INSERT INTO events (id, type, project_id, entity_id, version, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Type, e.ProjectID, e.EntityID, e.Version, e.PayloadJSON, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

// GetPendingEvents returns undelivered events for projectID (0 = every
// project), optionally filtered to types.
func (s *Store) GetPendingEvents(projectID int64, types []string) ([]*EventRecord, error) {
	query := `
		SELECT id, type, project_id, entity_id, version, payload, created_at, delivered_at
		FROM events WHERE delivered_at IS NULL`
	var args []interface{}
	if projectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if len(types) > 0 {
		placeholders := ""
		for i, t := range types {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(` AND type IN (%s)`, placeholders)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		var e EventRecord
		var deliveredAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Type, &e.ProjectID, &e.EntityID, &e.Version, &e.PayloadJSON, &e.CreatedAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			e.DeliveredAt = &t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkEventDelivered stamps delivered_at so GetPendingEvents stops
// returning it.
func (s *Store) MarkEventDelivered(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to mark event delivered: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to confirm event delivery: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("event not found: %s", id)
		}
		return nil
	})
}
