// Package httpapi implements the REST surface from spec §6 on top of
// gorilla/mux, in the teacher's internal/handlers style: one handler
// struct per resource group, JSON in and out, http.Error for failures.
// Transport framing (the reverse-proxy/WebSocket-upgrade problem) stays
// out of scope per spec §1; this package only serves routes.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	"github.com/codeframe-dev/codeframe/internal/context"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/lead"
	"github.com/codeframe-dev/codeframe/internal/pool"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/types"
	"github.com/codeframe-dev/codeframe/internal/worker"
	"github.com/codeframe-dev/codeframe/internal/wsserver"
)

// Leads resolves or creates the per-project LeadAgent backing the
// discovery/planning/approval/dispatch endpoints. One Server holds one
// Leads; cmd/codeframe wires the construction closure at startup so
// httpapi never imports internal/llm directly.
type Leads interface {
	Get(projectID int64) (*lead.Lead, error)
}

// Server wires every REST resource from spec §6 onto a gorilla/mux
// router, mirroring the teacher's Server struct in internal/server.
type Server struct {
	store    *store.Store
	bus      *events.Bus
	ctxMgr   *context.Manager
	blockers *blockers.Manager
	pipeline *quality.Pipeline
	pool     *pool.Pool
	leads    Leads
	hub      *wsserver.Hub
	reviewCfg review.Config
	workspaceRoot worker.WorkspaceRoot

	logger *log.Logger
}

// Config bundles Server's dependencies.
type Config struct {
	Store         *store.Store
	Bus           *events.Bus
	ContextMgr    *context.Manager
	Blockers      *blockers.Manager
	Pipeline      *quality.Pipeline
	Pool          *pool.Pool
	Leads         Leads
	Hub           *wsserver.Hub
	ReviewConfig  review.Config
	WorkspaceRoot worker.WorkspaceRoot
	Logger        *log.Logger
}

// New builds a Server and its mux.Router.
func New(cfg Config) (*Server, *mux.Router) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Server{
		store:         cfg.Store,
		bus:           cfg.Bus,
		ctxMgr:        cfg.ContextMgr,
		blockers:      cfg.Blockers,
		pipeline:      cfg.Pipeline,
		pool:          cfg.Pool,
		leads:         cfg.Leads,
		hub:           cfg.Hub,
		reviewCfg:     cfg.ReviewConfig,
		workspaceRoot: cfg.WorkspaceRoot,
		logger:        cfg.Logger,
	}

	r := mux.NewRouter()
	r.Use(SecurityHeadersMiddleware)

	r.HandleFunc("/api/projects", s.handleCreateProject).Methods(http.MethodPost)
	r.HandleFunc("/api/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}/issues", s.handleProjectIssues).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}/discovery/answer", s.handleDiscoveryAnswer).Methods(http.MethodPost)
	r.HandleFunc("/api/projects/{id}/discovery/progress", s.handleDiscoveryProgress).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	r.HandleFunc("/api/projects/{id}/blockers", s.handleListBlockers).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}/blockers/{blockerID}/resolve", s.handleResolveBlocker).Methods(http.MethodPost)

	r.HandleFunc("/api/agents/{id}/context", s.handleCreateContextItem).Methods(http.MethodPost)
	r.HandleFunc("/api/agents/{id}/context", s.handleListContextItems).Methods(http.MethodGet)
	r.HandleFunc("/api/agents/{id}/context/stats", s.handleContextStats).Methods(http.MethodGet)
	r.HandleFunc("/api/agents/{id}/context/checkpoints", s.handleListContextCheckpoints).Methods(http.MethodGet)
	r.HandleFunc("/api/agents/{id}/context/update-tiers", s.handleUpdateTiers).Methods(http.MethodPost)
	r.HandleFunc("/api/agents/{id}/context/{itemID}", s.handleGetContextItem).Methods(http.MethodGet)
	r.HandleFunc("/api/agents/{id}/context/{itemID}", s.handleDeleteContextItem).Methods(http.MethodDelete)
	r.HandleFunc("/api/agents/{id}/flash-save", s.handleFlashSave).Methods(http.MethodPost)
	r.HandleFunc("/api/agents/{id}/review", s.handleReview).Methods(http.MethodPost)

	r.HandleFunc("/api/lint/run", s.handleLintRun).Methods(http.MethodPost)
	r.HandleFunc("/api/lint/results", s.handleLintResults).Methods(http.MethodGet)
	r.HandleFunc("/api/lint/trend", s.handleLintTrend).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/by-commit", s.handleTaskByCommit).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}/review-status", s.handleReviewStatus).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWebSocket)

	return s, r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a taxonomy-tagged error (spec §7) to the right HTTP
// status, matching the propagation policy: ValidationError -> 422,
// ConflictError -> 409, everything else internal -> 500.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := types.KindOf(err)
	if !ok {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	switch kind {
	case types.KindValidation:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case types.KindConflict:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case types.KindPrecondition, types.KindConsistency:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v := mux.Vars(r)[name]
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, types.NewValidationError(name + " must be an integer")
	}
	return n, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
