package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/codeframe-dev/codeframe/internal/types"
)

type createContextItemRequest struct {
	ProjectID int64                  `json:"project_id"`
	ItemType  types.ContextItemType  `json:"item_type"`
	Content   string                 `json:"content"`
	Score     float64                `json:"importance_score,omitempty"` // accepted but overridden
	Tier      types.Tier             `json:"tier,omitempty"`             // accepted but overridden
}

// handleCreateContextItem implements `POST /api/agents/{id}/context`.
// Any caller-supplied score/tier is accepted for request-shape
// compatibility but overridden by ImportanceScorer per spec §6.
func (s *Server) handleCreateContextItem(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	var req createContextItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	id, err := s.ctxMgr.Save(agentID, req.ProjectID, req.ItemType, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := s.ctxMgr.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleListContextItems implements
// `GET /api/agents/{id}/context?tier=HOT&limit=&offset=`. Reads trigger
// the access-tracking side effect via ContextManager.Load (spec §4.4).
func (s *Server) handleListContextItems(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	projectID := queryInt64(r, "project_id", 0)
	tier := types.Tier(r.URL.Query().Get("tier"))
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	items, err := s.ctxMgr.Load(agentID, projectID, tier)
	if err != nil {
		writeError(w, err)
		return
	}
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetContextItem implements `GET /api/agents/{id}/context/{item_id}`.
func (s *Server) handleGetContextItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt64(r, "itemID")
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := s.ctxMgr.Get(itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteContextItem implements `DELETE /api/agents/{id}/context/{item_id}`.
func (s *Server) handleDeleteContextItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt64(r, "itemID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.ctxMgr.Delete(itemID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleContextStats implements `GET /api/agents/{id}/context/stats`.
func (s *Server) handleContextStats(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	projectID := queryInt64(r, "project_id", 0)
	stats, err := s.ctxMgr.Stats(agentID, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListContextCheckpoints implements `GET /api/agents/{id}/context/checkpoints`.
func (s *Server) handleListContextCheckpoints(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	projectID := queryInt64(r, "project_id", 0)
	checkpoints, err := s.ctxMgr.Checkpoints(agentID, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpoints)
}

// handleFlashSave implements `POST /api/agents/{id}/flash-save`.
func (s *Server) handleFlashSave(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	projectID := queryInt64(r, "project_id", 0)
	result, err := s.ctxMgr.FlashSave(agentID, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUpdateTiers implements `POST /api/agents/{id}/context/update-tiers`.
func (s *Server) handleUpdateTiers(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	projectID := queryInt64(r, "project_id", 0)
	result, err := s.ctxMgr.RecomputeTiers(agentID, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
