// Package app wires every CodeFRAME component into one running process
// (spec §2 data flow, §9 "global configuration read once at process
// start"), the way the teacher's cmd/cliaimonitor main.go and
// internal/server.Server constructed its dependency graph.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	"github.com/codeframe-dev/codeframe/internal/config"
	codeframecontext "github.com/codeframe-dev/codeframe/internal/context"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/httpapi"
	"github.com/codeframe-dev/codeframe/internal/lead"
	"github.com/codeframe-dev/codeframe/internal/llm"
	"github.com/codeframe-dev/codeframe/internal/notifications"
	"github.com/codeframe-dev/codeframe/internal/notifications/external"
	"github.com/codeframe-dev/codeframe/internal/pool"
	"github.com/codeframe-dev/codeframe/internal/quality"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/scoring"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/tokencounter"
	"github.com/codeframe-dev/codeframe/internal/toolrunner"
	"github.com/codeframe-dev/codeframe/internal/types"
	"github.com/codeframe-dev/codeframe/internal/worker"
	"github.com/codeframe-dev/codeframe/internal/wsserver"
)

// Options configures the one running process (spec §6 environment plus
// a handful of filesystem/network settings the spec leaves to the
// deployer, e.g. listen address and LLM endpoint).
type Options struct {
	DBPath         string
	WorkspacesRoot string // parent of every <workspace>/ project checkout
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	NotifyWebhook  types.NotifyWebhookConfig
	NotifyEmail    types.NotifyEmailConfig
	Logger         *log.Logger
}

// App holds every long-lived component so cmd/codeframe's main can
// start/stop it as a unit.
type App struct {
	Store       *store.Store
	Bus         *events.Bus
	ContextMgr  *codeframecontext.Manager
	Blockers    *blockers.Manager
	Pool        *pool.Pool
	Worker      *worker.Worker
	Pipeline    *quality.Pipeline
	Hub         *wsserver.Hub
	Notify      *notifications.Manager
	HTTPServer  *httpapi.Server
	Router      *mux.Router

	cfg             *config.Snapshot
	logger          *log.Logger
	discoveryScript []types.DiscoveryQuestion
	workspacesRoot  string
	model           string
	llmClient       llm.Client

	mu    sync.Mutex
	leads map[int64]*lead.Lead
}

// New builds every component and wires them together. It does not start
// any network listener; cmd/codeframe owns http.ListenAndServe.
func New(opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	cfg := config.Load()

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	bus := events.NewBus(st)

	counter, err := tokencounter.New(opts.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build token counter: %w", err)
	}

	thresholds := scoring.Thresholds{Hot: cfg.HotThreshold, Warm: cfg.WarmThreshold}
	ctxMgr := codeframecontext.New(st, counter, bus, thresholds, cfg.ContextLimitTokens, cfg.FlashSaveThreshold)

	blockerMgr := blockers.New(st, bus)

	definitions, err := config.LoadAgentDefinitions(filepath.Join(opts.WorkspacesRoot, ".codeframe", "agents", "definitions"))
	if err != nil {
		return nil, fmt.Errorf("failed to load agent definitions: %w", err)
	}
	if len(definitions) == 0 {
		definitions = config.DefaultAgentDefinitions()
	}
	agentPool := pool.New(st, bus, definitions, 5*time.Minute)

	runner := toolrunner.New(cfg.LintSubprocessBudget)
	pipeline := quality.New(runner, st, bus, blockerMgr, quality.Config{
		BlockOnCritical:     cfg.BlockOnCritical,
		BlockOnError:        cfg.BlockOnError,
		MaxReviewIterations: cfg.MaxReviewIterations,
		Review: review.Config{
			ComplexityThreshold: cfg.ComplexityThreshold,
			FunctionLengthLimit: cfg.FunctionLengthLimit,
			ApproveScore:        cfg.ReviewApproveScore,
			RejectScore:         cfg.ReviewRejectScore,
		},
	})

	var llmClient llm.Client
	if opts.LLMBaseURL == "" {
		llmClient = llm.NewFakeClient(`{"summary":"no-op","edits":[]}`)
	} else {
		llmClient = llm.NewHTTPClient(opts.LLMBaseURL, opts.LLMAPIKey, cfg.LLMTimeout)
	}

	workspaceRoot := func(projectID int64) string {
		return filepath.Join(opts.WorkspacesRoot, fmt.Sprintf("project-%d", projectID))
	}
	testCommand := func(projectID int64) []string {
		return []string{"true"} // replaced per-project by its ToolRunner-visible test command
	}

	wk := worker.New(st, ctxMgr, pipeline, llmClient, bus, blockerMgr, workspaceRoot, testCommand, opts.LLMModel, cfg.GitFailureEscalationThreshold)

	hub := wsserver.NewHub(bus)

	notifyCfg := notifications.Config{Logger: opts.Logger}
	notifyMgr := notifications.NewManager(bus, notifyCfg)
	if opts.NotifyWebhook.Enabled && opts.NotifyWebhook.URL != "" {
		notifyMgr.AddChannel(external.NewWebhookChannel(opts.NotifyWebhook))
	}
	if opts.NotifyEmail.Enabled && opts.NotifyEmail.SMTPHost != "" {
		notifyMgr.AddChannel(external.NewEmailChannel(opts.NotifyEmail))
	}
	go notifyMgr.Run()

	a := &App{
		Store:           st,
		Bus:             bus,
		ContextMgr:      ctxMgr,
		Blockers:        blockerMgr,
		Pool:            agentPool,
		Worker:          wk,
		Pipeline:        pipeline,
		Hub:             hub,
		Notify:          notifyMgr,
		cfg:             cfg,
		logger:          opts.Logger,
		discoveryScript: types.DefaultDiscoveryScript(),
		workspacesRoot:  opts.WorkspacesRoot,
		model:           opts.LLMModel,
		llmClient:       llmClient,
		leads:           make(map[int64]*lead.Lead),
	}

	srv, router := httpapi.New(httpapi.Config{
		Store:         st,
		Bus:           bus,
		ContextMgr:    ctxMgr,
		Blockers:      blockerMgr,
		Pipeline:      pipeline,
		Pool:          agentPool,
		Leads:         a,
		Hub:           hub,
		ReviewConfig: review.Config{
			ComplexityThreshold: cfg.ComplexityThreshold,
			FunctionLengthLimit: cfg.FunctionLengthLimit,
			ApproveScore:        cfg.ReviewApproveScore,
			RejectScore:         cfg.ReviewRejectScore,
		},
		WorkspaceRoot: workspaceRoot,
		Logger:        opts.Logger,
	})
	a.HTTPServer = srv
	a.Router = router

	return a, nil
}

// Get implements httpapi.Leads: one Lead per project, created lazily and
// cached for the process lifetime (spec §4.11 "a process holds one Lead
// per active project").
func (a *App) Get(projectID int64) (*lead.Lead, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.leads[projectID]; ok {
		return l, nil
	}
	if _, err := a.Store.GetProject(projectID); err != nil {
		return nil, err
	}
	l := lead.New(a.Store, a.Bus, a.Pool, a.Worker, a.llmClient, a.model, a.discoveryScript, a.cfg.MaxConcurrentTasks)
	a.leads[projectID] = l
	return l, nil
}

// DispatchLoop runs Lead.Tick for every project with an active Lead at
// a fixed interval until ctx is cancelled, the process-level analogue
// of spec §4.11's "periodic tick" dispatch trigger.
func (a *App) DispatchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			projectIDs := make([]int64, 0, len(a.leads))
			for id := range a.leads {
				projectIDs = append(projectIDs, id)
			}
			a.mu.Unlock()
			for _, id := range projectIDs {
				l, err := a.Get(id)
				if err != nil {
					continue
				}
				if err := l.Tick(ctx, id); err != nil {
					a.logger.Printf("[DISPATCH] project %d tick failed: %v", id, err)
				}
			}
		}
	}
}

// Close releases the Store handle.
func (a *App) Close() error {
	a.Notify.Stop()
	return a.Store.Close()
}
