// Package gitwork implements GitWorkflow (spec §4.6): one commit per
// completed task, built on the same exec.Command-over-git shell-out the
// teacher's internal/git package uses.
package gitwork

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/codeframe-dev/codeframe/internal/blockers"
	"github.com/codeframe-dev/codeframe/internal/events"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// ErrUnrelatedModifications is returned when the working tree has
// changes outside the task's declared file set. Spec §4.6: "warn and
// skip rather than fail the task" — callers must treat this as a
// non-fatal signal, not a task failure.
var ErrUnrelatedModifications = fmt.Errorf("working tree has modifications outside the task's declared file set")

// Workflow wraps one project's git repository.
type Workflow struct {
	repoPath string
	bus      *events.Bus
	blockers *blockers.Manager

	threshold int
	mu        sync.Mutex
	failures  map[int64]int // consecutive git failure count, keyed by project id
}

// New builds a Workflow rooted at repoPath. threshold is the consecutive
// failure count that escalates to an ASYNC blocker (config
// GitFailureEscalationThreshold, default 3).
func New(repoPath string, bus *events.Bus, b *blockers.Manager, threshold int) *Workflow {
	return &Workflow{
		repoPath:  repoPath,
		bus:       bus,
		blockers:  b,
		threshold: threshold,
		failures:  make(map[int64]int),
	}
}

// run executes a git command and returns its combined output, mirroring
// the teacher's Git.run exactly.
func (w *Workflow) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = w.repoPath

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// changedFiles returns every path git reports as modified, staged or not.
func (w *Workflow) changedFiles() ([]string, error) {
	output, err := w.run("status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		files = append(files, strings.TrimSpace(line[3:]))
	}
	return files, nil
}

// CommitTask stages declaredFiles, commits with the spec §4.6 message
// format, and returns the new commit's SHA. Returns
// ErrUnrelatedModifications (not a failure) if the working tree carries
// changes outside declaredFiles.
func (w *Workflow) CommitTask(task *types.Task, declaredFiles []string) (string, error) {
	changed, err := w.changedFiles()
	if err != nil {
		return "", w.recordFailure(task, err)
	}
	if hasUnrelated(changed, declaredFiles) {
		w.recordSkip(task, "unrelated_modifications", "working tree has modifications outside the task's declared file set")
		return "", ErrUnrelatedModifications
	}
	if len(changed) == 0 {
		w.recordSkip(task, "no_changes", "no changes to commit")
		return "", fmt.Errorf("no changes to commit for task %s", task.TaskNumber)
	}

	if _, err := w.run(append([]string{"add"}, declaredFiles...)...); err != nil {
		return "", w.recordFailure(task, err)
	}

	message := commitMessage(task, declaredFiles)
	if _, err := w.run("commit", "-m", message); err != nil {
		return "", w.recordFailure(task, err)
	}

	sha, err := w.run("rev-parse", "HEAD")
	if err != nil {
		return "", w.recordFailure(task, err)
	}

	w.clearFailures(task.ProjectID)
	return sha, nil
}

// hasUnrelated reports whether changed contains any path not present in
// declared.
func hasUnrelated(changed, declared []string) bool {
	declaredSet := make(map[string]bool, len(declared))
	for _, f := range declared {
		declaredSet[f] = true
	}
	for _, f := range changed {
		if !declaredSet[f] {
			return true
		}
	}
	return false
}

// recordFailure logs a git failure, emits a warning event, and — after
// threshold consecutive failures for the project — raises an ASYNC
// blocker (spec §4.6: "does not block completion... optionally create
// an ASYNC blocker after N consecutive failures").
func (w *Workflow) recordFailure(task *types.Task, cause error) error {
	w.mu.Lock()
	w.failures[task.ProjectID]++
	count := w.failures[task.ProjectID]
	w.mu.Unlock()

	if w.bus != nil {
		w.bus.Publish(events.New(events.TaskFailed, task.ProjectID, strconv.FormatInt(task.ID, 10), map[string]interface{}{
			"task_id": task.ID,
			"warning": "git_operation_failed",
			"error":   cause.Error(),
			"count":   count,
		}))
	}

	if count >= w.threshold && w.blockers != nil {
		if _, err := w.blockers.Create(task.ID, types.BlockerAsync, "git_consecutive_failures",
			fmt.Sprintf("git operations have failed %d times in a row for this project", count)); err != nil {
			return fmt.Errorf("git operation failed (%w) and escalation blocker could not be created: %v", cause, err)
		}
	}
	return fmt.Errorf("git operation failed: %w", cause)
}

// recordSkip emits the warning event spec §8 requires whenever a task
// completes without a commit SHA: "a completed task without a SHA
// indicates a GitWorkflow-skipped commit (warning must be present)."
// Unlike recordFailure this is not a failure — the task still completes
// normally — so it neither increments the consecutive-failure counter
// nor can escalate a blocker.
func (w *Workflow) recordSkip(task *types.Task, reason, detail string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.New(events.CommitSkipped, task.ProjectID, strconv.FormatInt(task.ID, 10), map[string]interface{}{
		"task_id": task.ID,
		"warning": "commit_skipped",
		"reason":  reason,
		"detail":  detail,
	}))
}

func (w *Workflow) clearFailures(projectID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, projectID)
}

// commitMessage builds the spec §4.6 commit message:
// "<type>(<task_number>): <subject>\n\n<description>\n\nModified files:\n- <path>..."
func commitMessage(task *types.Task, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s): %s\n\n%s\n\nModified files:\n", inferCommitType(task.Title), task.TaskNumber, task.Title, task.Description)
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

// inferCommitType infers a conventional-commit type from title keywords.
func inferCommitType(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug"):
		return "fix"
	case strings.Contains(lower, "test"):
		return "test"
	case strings.Contains(lower, "refactor"):
		return "refactor"
	case strings.Contains(lower, "doc"):
		return "docs"
	case strings.Contains(lower, "chore") || strings.Contains(lower, "cleanup"):
		return "chore"
	default:
		return "feat"
	}
}
