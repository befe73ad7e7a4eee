package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// handleListBlockers implements `GET /api/projects/{id}/blockers`.
func (s *Server) handleListBlockers(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.blockers.ListOpen(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveBlockerRequest struct {
	Resolution string `json:"resolution"`
}

// handleResolveBlocker implements
// `POST /api/projects/{id}/blockers/{blocker_id}/resolve`.
func (s *Server) handleResolveBlocker(w http.ResponseWriter, r *http.Request) {
	blockerID, err := pathInt64(r, "blockerID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req resolveBlockerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	if err := s.blockers.Resolve(blockerID, req.Resolution); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.blockers.Get(blockerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
