// Package quality implements QualityPipeline (spec §4.5): the fixed
// lint -> test -> review gate sequence a worker's file edits pass
// through before GitWorkflow is allowed to commit them.
package quality

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/review"
	"github.com/codeframe-dev/codeframe/internal/store"
	"github.com/codeframe-dev/codeframe/internal/toolrunner"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Status is the pipeline's outcome for one run, distinct from
// types.TaskStatus since a changes_requested outcome does not by itself
// move the task to blocked — only an exhausted revision budget does.
type Status string

const (
	StatusPass             Status = "pass"
	StatusBlocked          Status = "blocked"
	StatusChangesRequested Status = "changes_requested"
	StatusFailed           Status = "failed"
)

// Outcome is what WorkerAgent branches on after a pipeline run.
type Outcome struct {
	Status       Status
	LintResults  []*types.LintResult
	TestResult   *toolrunner.TestResult
	ReviewReport *types.ReviewReport
	BlockerID    int64
	FailReason   string
}

// Config is the gate policy read from config.Snapshot, kept separate
// from the snapshot type so this package stays dependency-free of
// internal/config.
type Config struct {
	BlockOnCritical     bool
	BlockOnError        bool
	MaxReviewIterations int
	Review              review.Config
}

// Request bundles one task's worker output for the pipeline to gate.
type Request struct {
	Task          *types.Task
	WorkspacePath string
	ChangedFiles  []string // paths relative to WorkspacePath, for linting
	FileContents  review.FileSet
	TestCommand   []string
	CoverageScore float64 // 100 when the project has no coverage tool configured
}

// Pipeline wires the three gates together.
type Pipeline struct {
	runner   toolrunner.Runner
	store    *store.Store
	bus      *events.Bus
	blockers *blockers.Manager
	cfg      Config
}

// New builds a Pipeline.
func New(runner toolrunner.Runner, s *store.Store, bus *events.Bus, b *blockers.Manager, cfg Config) *Pipeline {
	return &Pipeline{runner: runner, store: s, bus: bus, blockers: b, cfg: cfg}
}

// Run executes lint, then tests, then review, in that fixed order,
// short-circuiting on the first blocking gate (spec §4.5).
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	lintResults, lintBlocked, err := p.runLint(ctx, req)
	if err != nil {
		return nil, err
	}
	if lintBlocked {
		b, err := p.blockers.Create(req.Task.ID, types.BlockerSync, "lint_block", "lint found blocking findings; see the lint report")
		if err != nil {
			return nil, err
		}
		p.publish(events.LintFailed, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"blocker_id": b.ID})
		return &Outcome{Status: StatusBlocked, LintResults: lintResults, BlockerID: b.ID, FailReason: "lint_block"}, nil
	}
	p.publish(events.LintCompleted, req.Task.ProjectID, req.Task.ID, nil)

	testResult, err := p.runner.RunTests(ctx, req.WorkspacePath, req.TestCommand)
	if err != nil {
		return nil, fmt.Errorf("test gate failed to run: %w", err)
	}
	if !testResult.Passed {
		b, err := p.blockers.Create(req.Task.ID, types.BlockerSync, "test_failure", "tests failed; see the test output")
		if err != nil {
			return nil, err
		}
		return &Outcome{Status: StatusBlocked, LintResults: lintResults, TestResult: testResult, BlockerID: b.ID, FailReason: "test_failure"}, nil
	}

	return p.runReview(req, lintResults, testResult)
}

// RunLint runs just the lint gate standalone, for the `POST /api/lint/run`
// endpoint (spec §6) which triggers a lint pass outside the full
// lint->test->review sequence. Blocking findings are reported but no
// blocker is created here — only a full Pipeline.Run can gate a commit.
func (p *Pipeline) RunLint(ctx context.Context, req Request) ([]*types.LintResult, error) {
	results, _, err := p.runLint(ctx, req)
	return results, err
}

func (p *Pipeline) runLint(ctx context.Context, req Request) ([]*types.LintResult, bool, error) {
	languages := groupByLinter(req.ChangedFiles)
	if len(languages) == 0 {
		return nil, false, nil
	}

	p.publish(events.LintStarted, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"linters": linterNames(languages)})

	var (
		mu      sync.Mutex
		results []*types.LintResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for linter, files := range languages {
		linter, files := linter, files
		g.Go(func() error {
			result, err := p.runner.RunLint(gctx, linter, req.WorkspacePath, files)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("lint gate failed to run: %w", err)
	}

	for _, r := range results {
		r.TaskID = req.Task.ID
		if err := p.store.CreateLintResult(r); err != nil {
			return nil, false, fmt.Errorf("failed to record lint result: %w", err)
		}
	}

	blocked := false
	for _, r := range results {
		for _, f := range r.Findings {
			if p.cfg.BlockOnCritical && f.Severity == types.SeverityCritical {
				blocked = true
			}
			if p.cfg.BlockOnError && f.Severity == types.SeverityError {
				blocked = true
			}
		}
	}
	return results, blocked, nil
}

func (p *Pipeline) runReview(req Request, lintResults []*types.LintResult, testResult *toolrunner.TestResult) (*Outcome, error) {
	p.publish(events.ReviewStarted, req.Task.ProjectID, req.Task.ID, nil)

	priorIterations, err := p.store.CountReviewIterations(req.Task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count prior review iterations: %w", err)
	}

	report := review.Analyze(req.Task.ID, req.FileContents, req.CoverageScore, p.cfg.Review)
	report.Iteration = priorIterations + 1
	if err := p.store.CreateReviewReport(report); err != nil {
		return nil, fmt.Errorf("failed to record review report: %w", err)
	}

	switch report.Status {
	case types.ReviewApproved:
		p.publish(events.ReviewCompleted, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"status": report.Status})
		return &Outcome{Status: StatusPass, LintResults: lintResults, TestResult: testResult, ReviewReport: report}, nil

	case types.ReviewRejected:
		p.publish(events.ReviewFailed, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"status": report.Status})
		return &Outcome{Status: StatusFailed, LintResults: lintResults, TestResult: testResult, ReviewReport: report, FailReason: "review_rejected"}, nil

	default: // changes_requested
		if report.Iteration >= p.cfg.MaxReviewIterations {
			b, err := p.blockers.Create(req.Task.ID, types.BlockerSync, "review_iterations_exhausted",
				"review requested changes past the maximum revision budget; human input needed")
			if err != nil {
				return nil, err
			}
			p.publish(events.ReviewFailed, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"status": report.Status, "blocker_id": b.ID})
			return &Outcome{Status: StatusBlocked, LintResults: lintResults, TestResult: testResult, ReviewReport: report, BlockerID: b.ID, FailReason: "review_iterations_exhausted"}, nil
		}
		b, err := p.blockers.Create(req.Task.ID, types.BlockerSync, "review_changes_requested", "review requested changes; worker is revising")
		if err != nil {
			return nil, err
		}
		p.publish(events.ReviewCompleted, req.Task.ProjectID, req.Task.ID, map[string]interface{}{"status": report.Status, "blocker_id": b.ID})
		return &Outcome{Status: StatusChangesRequested, LintResults: lintResults, TestResult: testResult, ReviewReport: report, BlockerID: b.ID}, nil
	}
}

func (p *Pipeline) publish(eventType events.Type, projectID, taskID int64, extra map[string]interface{}) {
	if p.bus == nil {
		return
	}
	payload := map[string]interface{}{"task_id": taskID}
	for k, v := range extra {
		payload[k] = v
	}
	p.bus.Publish(events.New(eventType, projectID, fmt.Sprintf("%d", taskID), payload))
}

func groupByLinter(files []string) map[types.Linter][]string {
	grouped := make(map[types.Linter][]string)
	for _, f := range files {
		linter, ok := linterForExt(filepath.Ext(f))
		if !ok {
			continue
		}
		grouped[linter] = append(grouped[linter], f)
	}
	return grouped
}

func linterForExt(ext string) (types.Linter, bool) {
	switch ext {
	case ".py":
		return types.LinterRuff, true
	case ".ts", ".tsx", ".js", ".jsx":
		return types.LinterESLint, true
	default:
		return "", false
	}
}

func linterNames(grouped map[types.Linter][]string) []string {
	var names []string
	for l := range grouped {
		names = append(names, string(l))
	}
	return names
}
