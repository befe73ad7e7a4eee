package review

import (
	"github.com/codeframe-dev/codeframe/internal/types"
)

// Config carries the configuration-exposed thresholds ReviewAgent's
// analyzers and decision rules need (spec §4.10, sourced from
// config.Snapshot at the call site so this package stays dependency-free
// of internal/config).
type Config struct {
	ComplexityThreshold int
	FunctionLengthLimit int
	ApproveScore        float64
	RejectScore         float64
}

// findingDeduction is how many points a finding costs its sub-score,
// keyed by severity. CRITICAL findings are steep enough that a handful
// of them drives a sub-score to zero quickly, matching spec §4.10's
// intent that security issues dominate the overall score.
func findingDeduction(sev types.FindingSeverity) float64 {
	switch sev {
	case types.FindingCritical:
		return 40
	case types.FindingMajor:
		return 20
	default:
		return 5
	}
}

func subScore(findings []types.ReviewFinding) float64 {
	score := 100.0
	for _, f := range findings {
		score -= findingDeduction(f.Severity)
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Analyze runs every deterministic analyzer over files and scores the
// result. coverageScore is supplied by the caller (WorkerAgent reads it
// off the test runner's coverage report, if any; 100 when no coverage
// tool is configured for the project's language).
func Analyze(taskID int64, files FileSet, coverageScore float64, cfg Config) *types.ReviewReport {
	complexityFindings := AnalyzeComplexity(files, cfg.ComplexityThreshold)
	lengthFindings := AnalyzeLength(files, cfg.FunctionLengthLimit)
	securityFindings := AnalyzeSecurity(files)

	styleFindings := append(append([]types.ReviewFinding{}, complexityFindings...), lengthFindings...)

	complexityScore := subScore(complexityFindings)
	securityScore := subScore(securityFindings)
	styleScore := subScore(styleFindings)

	overall := 0.3*complexityScore + 0.4*securityScore + 0.2*styleScore + 0.1*coverageScore

	report := &types.ReviewReport{
		TaskID:          taskID,
		OverallScore:    overall,
		ComplexityScore: complexityScore,
		SecurityScore:   securityScore,
		StyleScore:      styleScore,
		CoverageScore:   coverageScore,
		Findings:        append(append(append([]types.ReviewFinding{}, complexityFindings...), lengthFindings...), securityFindings...),
	}
	report.Status = decide(report, overall, cfg)
	return report
}

// decide applies spec §4.10's decision rules: any CRITICAL security
// finding rejects unconditionally regardless of score; otherwise the
// overall score against approve_threshold/reject_threshold governs.
func decide(report *types.ReviewReport, overall float64, cfg Config) types.ReviewStatus {
	if report.HasCriticalSecurityFinding() {
		return types.ReviewRejected
	}
	if overall >= cfg.ApproveScore {
		return types.ReviewApproved
	}
	if overall < cfg.RejectScore {
		return types.ReviewRejected
	}
	return types.ReviewChangesRequested
}
