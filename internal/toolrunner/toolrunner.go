// Package toolrunner executes the external tools QualityPipeline depends
// on — linters and test runners — as subprocesses under a time budget,
// the way the teacher shells out to git in internal/git/git.go.
package toolrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// Runner is the capability interface WorkerAgent and QualityPipeline
// depend on, so tests can substitute a fake without shelling out.
type Runner interface {
	RunLint(ctx context.Context, linter types.Linter, workspacePath string, files []string) (*types.LintResult, error)
	RunTests(ctx context.Context, workspacePath string, command []string) (*TestResult, error)
}

// TestResult is the recorded outcome of one test-runner invocation (spec
// §4.5 gate 2, "Output is recorded").
type TestResult struct {
	Passed   bool
	Output   string
	Duration time.Duration
}

// SubprocessRunner shells out to the real linter/test-runner binaries.
type SubprocessRunner struct {
	Budget time.Duration
}

// New builds a SubprocessRunner bounded by budget (config.Snapshot's
// LintSubprocessBudget).
func New(budget time.Duration) *SubprocessRunner {
	return &SubprocessRunner{Budget: budget}
}

// RunLint invokes the linter matching linter's language (ruff for Python,
// eslint for TypeScript/JavaScript) and parses its output into a
// LintResult. Severity mapping is done by the caller-supplied parser
// since ruff and eslint emit unrelated JSON shapes.
func (r *SubprocessRunner) RunLint(ctx context.Context, linter types.Linter, workspacePath string, files []string) (*types.LintResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Budget)
	defer cancel()

	var args []string
	switch linter {
	case types.LinterRuff:
		args = append([]string{"check", "--output-format=json"}, files...)
	case types.LinterESLint:
		args = append([]string{"--format=json"}, files...)
	default:
		return nil, types.NewValidationError(fmt.Sprintf("unsupported linter: %s", linter))
	}

	binary := string(linter)
	if linter == types.LinterESLint {
		binary = "eslint"
	}

	output, runErr := r.run(ctx, workspacePath, binary, args...)

	var result *types.LintResult
	var parseErr error
	switch linter {
	case types.LinterRuff:
		result, parseErr = parseRuffOutput(output)
	case types.LinterESLint:
		result, parseErr = parseESLintOutput(output)
	}
	if parseErr != nil {
		return nil, types.WrapExternalToolFailure(fmt.Sprintf("failed to parse %s output", linter), parseErr)
	}

	result.LinterName = linter
	result.FilesLinted = files
	result.Output = output

	// A non-zero exit from ruff/eslint with no findings parsed is a tool
	// failure, not a clean run; a non-zero exit with findings parsed is
	// the expected "lint found problems" path.
	if runErr != nil && result.ErrorCount == 0 && result.WarningCount == 0 && len(result.Findings) == 0 {
		return nil, types.WrapExternalToolFailure(fmt.Sprintf("%s invocation failed", linter), runErr)
	}
	return result, nil
}

// RunTests runs the project's configured test command under the budget.
func (r *SubprocessRunner) RunTests(ctx context.Context, workspacePath string, command []string) (*TestResult, error) {
	if len(command) == 0 {
		return nil, types.NewValidationError("no test command configured for this project")
	}
	ctx, cancel := context.WithTimeout(ctx, r.Budget)
	defer cancel()

	start := time.Now()
	output, err := r.run(ctx, workspacePath, command[0], command[1:]...)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewBudgetExhaustion("test run exceeded its time budget")
		}
		return &TestResult{Passed: false, Output: output, Duration: duration}, nil
	}
	return &TestResult{Passed: true, Output: output, Duration: duration}, nil
}

func (r *SubprocessRunner) run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}
