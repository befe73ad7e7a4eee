package types

import "time"

// Linter identifies which tool produced a LintResult.
type Linter string

const (
	LinterRuff   Linter = "ruff"
	LinterESLint Linter = "eslint"
	LinterOther  Linter = "other"
)

// LintSeverity is the normalized severity CodeFRAME maps linter-native
// codes onto (spec §4.5): ruff F-series -> CRITICAL, E-series -> ERROR,
// W/I/N -> WARNING; eslint error -> CRITICAL, warn -> WARNING.
type LintSeverity string

const (
	SeverityCritical LintSeverity = "CRITICAL"
	SeverityError    LintSeverity = "ERROR"
	SeverityWarning  LintSeverity = "WARNING"
)

// LintFinding is one diagnostic line from a linter run.
type LintFinding struct {
	File     string       `json:"file"`
	Line     int          `json:"line"`
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Severity LintSeverity `json:"severity"`
}

// LintResult is an append-only record of one linter invocation.
type LintResult struct {
	ID           int64         `json:"id"`
	TaskID       int64         `json:"task_id"`
	LinterName   Linter        `json:"linter"`
	ErrorCount   int           `json:"error_count"`
	WarningCount int           `json:"warning_count"`
	FilesLinted  []string      `json:"files_linted"`
	Findings     []LintFinding `json:"findings"`
	Output       string        `json:"output"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ReviewStatus is ReviewAgent's verdict for a task's changed files.
type ReviewStatus string

const (
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewRejected         ReviewStatus = "rejected"
)

// FindingSeverity grades a single ReviewReport finding.
type FindingSeverity string

const (
	FindingCritical FindingSeverity = "CRITICAL"
	FindingMajor    FindingSeverity = "MAJOR"
	FindingMinor    FindingSeverity = "MINOR"
)

// ReviewFinding is one analyzer hit inside a ReviewReport.
type ReviewFinding struct {
	Category   string          `json:"category"`
	Severity   FindingSeverity `json:"severity"`
	File       string          `json:"file"`
	Line       int             `json:"line"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// ReviewReport is ReviewAgent's scored output for one task.
type ReviewReport struct {
	ID              int64           `json:"id"`
	TaskID          int64           `json:"task_id"`
	OverallScore    float64         `json:"overall_score"`
	ComplexityScore float64         `json:"complexity_score"`
	SecurityScore   float64         `json:"security_score"`
	StyleScore      float64         `json:"style_score"`
	CoverageScore   float64         `json:"coverage_score"`
	Status          ReviewStatus    `json:"status"`
	Findings        []ReviewFinding `json:"findings"`
	Iteration       int             `json:"iteration"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HasCriticalSecurityFinding reports whether any finding is a CRITICAL
// security-category finding, which forces an unconditional rejection
// per spec §4.10.
func (r *ReviewReport) HasCriticalSecurityFinding() bool {
	for _, f := range r.Findings {
		if f.Category == "security" && f.Severity == FindingCritical {
			return true
		}
	}
	return false
}
