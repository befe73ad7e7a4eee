package httpapi

import "net/http"

// handleWebSocket implements spec §6's `/ws` upgrade, scoped to a single
// project via `?project_id=`, or every project when omitted (the
// dashboard's all-projects view).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID := queryInt64(r, "project_id", 0)
	if err := s.hub.ServeWS(w, r, projectID); err != nil {
		s.logger.Printf("[WS] upgrade failed: %v", err)
	}
}
