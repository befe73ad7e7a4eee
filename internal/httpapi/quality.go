package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/types"
)

type lintRunRequest struct {
	ProjectID int64 `json:"project_id"`
	TaskID    int64 `json:"task_id"`
}

var lintableExts = map[string]bool{
	".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
}

// lintableFiles walks a workspace for files the quality gate knows how
// to route to ruff/eslint (spec §4.5), returning paths relative to root.
func lintableFiles(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == "node_modules" || info.Name() == ".codeframe" {
				return filepath.SkipDir
			}
			return nil
		}
		if lintableExts[filepath.Ext(path)] {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

// handleLintRun implements `POST /api/lint/run`, a standalone lint pass
// outside the full quality pipeline (spec §6).
func (s *Server) handleLintRun(w http.ResponseWriter, r *http.Request) {
	var req lintRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	task, err := s.store.GetTask(req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	workspace := s.workspaceRoot(req.ProjectID)
	files, err := lintableFiles(workspace)
	if err != nil {
		writeError(w, types.WrapExternalToolFailure("failed to scan workspace for lintable files", err))
		return
	}
	results, err := s.pipeline.RunLint(r.Context(), quality.Request{
		Task:          task,
		WorkspacePath: workspace,
		ChangedFiles:  files,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleLintResults implements `GET /api/lint/results?task_id=`.
func (s *Server) handleLintResults(w http.ResponseWriter, r *http.Request) {
	taskID := queryInt64(r, "task_id", 0)
	if taskID == 0 {
		writeError(w, types.NewValidationError("task_id is required"))
		return
	}
	result, err := s.store.LatestLintResult(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLintTrend implements `GET /api/lint/trend?project_id=&days=`.
// days is mapped onto the Store's row-count cap on a rough
// runs-per-day estimate since LintResult carries no pre-aggregated
// daily bucket (supplemented feature, see DESIGN.md).
func (s *Server) handleLintTrend(w http.ResponseWriter, r *http.Request) {
	projectID := queryInt64(r, "project_id", 0)
	if projectID == 0 {
		writeError(w, types.NewValidationError("project_id is required"))
		return
	}
	days := queryInt(r, "days", 30)
	limit := days * 20
	if limit > 2000 {
		limit = 2000
	}
	trend, err := s.store.LintTrend(projectID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// handleTaskByCommit implements `GET /api/tasks/by-commit?sha=`.
func (s *Server) handleTaskByCommit(w http.ResponseWriter, r *http.Request) {
	sha := r.URL.Query().Get("sha")
	task, err := s.store.GetTaskByCommitSHA(sha)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleReviewStatus implements `GET /api/tasks/{id}/review-status`.
func (s *Server) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := s.store.LatestReviewReport(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type reviewRequest struct {
	TaskID        int64    `json:"task_id"`
	ProjectID     int64    `json:"project_id"`
	FilesModified []string `json:"files_modified"`
	CoverageScore float64  `json:"coverage_score"`
}

// handleReview implements `POST /api/agents/{id}/review`: dispatches
// ReviewAgent's deterministic analyzers (spec §4.10) against the
// declared file set read off disk, outside the full pipeline (the
// pipeline already calls review.Analyze inline during a worker's
// Execute run; this endpoint is for standalone/out-of-band review
// requests such as a manual re-review).
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	_ = agentID // review is dispatched by capability, not a stored per-agent route
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed request body"))
		return
	}
	workspace := s.workspaceRoot(req.ProjectID)
	files := review.FileSet{}
	for _, rel := range req.FilesModified {
		data, err := os.ReadFile(filepath.Join(workspace, rel))
		if err != nil {
			writeError(w, types.WrapExternalToolFailure("failed to read file for review: "+rel, err))
			return
		}
		files[rel] = string(data)
	}
	coverage := req.CoverageScore
	if coverage == 0 {
		coverage = 100
	}

	s.bus.Publish(events.New(events.ReviewStarted, req.ProjectID, fmt.Sprintf("%d", req.TaskID), map[string]interface{}{"task_id": req.TaskID}))
	report := review.Analyze(req.TaskID, files, coverage, s.reviewCfg)
	priorIterations, err := s.store.CountReviewIterations(req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	report.Iteration = priorIterations + 1
	if err := s.store.CreateReviewReport(report); err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(events.New(events.ReviewCompleted, req.ProjectID, fmt.Sprintf("%d", req.TaskID), map[string]interface{}{"task_id": req.TaskID, "status": report.Status}))
	writeJSON(w, http.StatusOK, report)
}
