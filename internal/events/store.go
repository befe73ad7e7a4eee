package events

import (
	"encoding/json"
	"fmt"

	"github.com/codeframe-dev/codeframe/internal/store"
)

// StoreAdapter implements Store by delegating to the process's single
// SQLite writer, so the bus never opens a second connection of its own
// the way the teacher's SQLiteStore did.
type StoreAdapter struct {
	DB *store.Store
}

func NewStoreAdapter(db *store.Store) *StoreAdapter {
	return &StoreAdapter{DB: db}
}

func (a *StoreAdapter) Save(event *Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return a.DB.SaveEvent(&store.EventRecord{
		ID:          event.ID,
		Type:        string(event.Type),
		ProjectID:   event.ProjectID,
		EntityID:    event.EntityID,
		Version:     event.Version,
		PayloadJSON: string(payload),
		CreatedAt:   event.CreatedAt,
	})
}

func (a *StoreAdapter) GetPending(projectID int64, types []Type) ([]*Event, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	records, err := a.DB.GetPendingEvents(projectID, typeStrs)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(records))
	for _, r := range records {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(r.PayloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		out = append(out, &Event{
			ID:        r.ID,
			Type:      Type(r.Type),
			ProjectID: r.ProjectID,
			EntityID:  r.EntityID,
			Version:   r.Version,
			Payload:   payload,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (a *StoreAdapter) MarkDelivered(eventID string) error {
	return a.DB.MarkEventDelivered(eventID)
}
