package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/types"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ProjectType string `json:"projectType"`
}

// handleCreateProject implements spec §6 `POST /api/projects` and
// end-to-end scenario 1: validates name/description/projectType,
// returns 409 on a duplicate name, 422 on validation failure.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	if req.ProjectType == "" {
		req.ProjectType = string(types.ProjectTypePython)
	}

	if err := types.ValidateName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	if err := types.ValidateDescription(req.Description); err != nil {
		writeError(w, err)
		return
	}
	pt := types.ProjectType(req.ProjectType)
	if err := types.ValidateProjectType(pt); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.store.GetProjectByName(req.Name); err == nil {
		writeError(w, types.NewConflictError("a project named "+req.Name+" already exists"))
		return
	}

	proj := &types.Project{
		Name:        req.Name,
		Description: req.Description,
		ProjectType: pt,
		Phase:       types.PhaseDiscovery,
		Status:      "init",
	}
	if err := s.store.CreateProject(proj); err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(events.New(events.ProjectCreated, proj.ID, strconv.FormatInt(proj.ID, 10), map[string]interface{}{"name": proj.Name}))
	writeJSON(w, http.StatusCreated, proj)
}

type projectListItem struct {
	*types.Project
	Progress types.ProjectProgress `json:"progress"`
}

// handleListProjects implements `GET /api/projects`, computing progress
// for each project in the same request per spec §6.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]projectListItem, 0, len(projects))
	for _, p := range projects {
		progress, err := s.store.ProjectProgress(p.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, projectListItem{Project: p, Progress: progress})
	}
	writeJSON(w, http.StatusOK, out)
}

type issueWithTasks struct {
	*types.Issue
	Tasks []*types.Task `json:"tasks"`
}

// handleProjectIssues implements `GET /api/projects/{id}/issues?include=tasks`.
// Tasks are always inlined; the `include` query parameter is accepted
// for forward compatibility with a leaner response shape but the core
// only ever serves the full tree.
func (s *Server) handleProjectIssues(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	issues, err := s.store.GetIssuesByProject(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.store.ListTasksByProject(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	byIssue := make(map[int64][]*types.Task)
	for _, t := range tasks {
		byIssue[t.IssueID] = append(byIssue[t.IssueID], t)
	}
	out := make([]issueWithTasks, 0, len(issues))
	for _, it := range issues {
		out = append(out, issueWithTasks{Issue: it, Tasks: byIssue[it.ID]})
	}
	writeJSON(w, http.StatusOK, out)
}

type discoveryAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// handleDiscoveryAnswer implements `POST /api/projects/{id}/discovery/answer`.
// QuestionID defaults to the Lead's current question when omitted, since
// spec §6's documented body is just `{answer}`.
func (s *Server) handleDiscoveryAnswer(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req discoveryAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	if err := types.ValidateAnswer(req.Answer); err != nil {
		writeError(w, err)
		return
	}

	l, err := s.leads.Get(projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.QuestionID == "" {
		current, err := l.DiscoveryState(projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		if current.NextQuestion == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":             true,
				"next_question":       nil,
				"is_complete":         true,
				"current_index":       current.CurrentIndex,
				"total_questions":     current.TotalQuestions,
				"progress_percentage": current.ProgressPercentage,
			})
			return
		}
		req.QuestionID = current.NextQuestion.ID
	}

	state, err := l.AnswerDiscovery(projectID, req.QuestionID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"next_question":       state.NextQuestion,
		"is_complete":         state.IsComplete,
		"current_index":       state.CurrentIndex,
		"total_questions":     state.TotalQuestions,
		"progress_percentage": state.ProgressPercentage,
	})
}

// handleDiscoveryProgress implements `GET /api/projects/{id}/discovery/progress`.
func (s *Server) handleDiscoveryProgress(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	proj, err := s.store.GetProject(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.leads.Get(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := l.DiscoveryState(projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	answered, err := s.store.ListDiscoveryAnswers(projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"phase": proj.Phase,
		"discovery": map[string]interface{}{
			"progress_percentage": state.ProgressPercentage,
			"answered_count":      len(answered),
			"total_required":     state.TotalQuestions,
		},
	}
	if state.NextQuestion != nil {
		resp["discovery"].(map[string]interface{})["current_question"] = state.NextQuestion
		resp["discovery"].(map[string]interface{})["state"] = "in_progress"
	} else {
		resp["discovery"].(map[string]interface{})["state"] = "complete"
	}
	writeJSON(w, http.StatusOK, resp)
}

type approveRequest struct {
	SelectedTaskIDs []int64 `json:"selected_task_ids"`
	AllTaskIDs      []int64 `json:"all_task_ids"`
}

// handleApprove implements `POST /api/projects/{id}/approve`. Excluded
// tasks are computed by Lead.Approve as all \ selected (spec §6); the
// request's all_task_ids is accepted but not required, since the Store
// is the authoritative task list.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	l, err := s.leads.Get(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := l.Approve(projectID, req.SelectedTaskIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approved_count": len(req.SelectedTaskIDs),
	})
}
