package toolrunner

import (
	"encoding/json"
	"strings"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// ruffDiagnostic is the shape of one entry in `ruff check --output-format=json`.
type ruffDiagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row int `json:"row"`
	} `json:"location"`
}

// parseRuffOutput maps ruff's F/E/W/I/N rule-code prefixes onto spec §4.5's
// normalized severities: F-series -> CRITICAL, E-series -> ERROR, anything
// else -> WARNING.
func parseRuffOutput(output string) (*types.LintResult, error) {
	result := &types.LintResult{}
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return result, nil
	}

	var diagnostics []ruffDiagnostic
	if err := json.Unmarshal([]byte(trimmed), &diagnostics); err != nil {
		return nil, err
	}

	for _, d := range diagnostics {
		severity := ruffSeverity(d.Code)
		result.Findings = append(result.Findings, types.LintFinding{
			File:     d.Filename,
			Line:     d.Location.Row,
			Code:     d.Code,
			Message:  d.Message,
			Severity: severity,
		})
		switch severity {
		case types.SeverityCritical, types.SeverityError:
			result.ErrorCount++
		default:
			result.WarningCount++
		}
	}
	return result, nil
}

func ruffSeverity(code string) types.LintSeverity {
	switch {
	case strings.HasPrefix(code, "F"):
		return types.SeverityCritical
	case strings.HasPrefix(code, "E"):
		return types.SeverityError
	default:
		return types.SeverityWarning
	}
}

// eslintFileResult is one entry in `eslint --format=json`'s output array.
type eslintFileResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"` // 1 = warn, 2 = error
		Message  string `json:"message"`
		Line     int    `json:"line"`
	} `json:"messages"`
}

// parseESLintOutput maps eslint's severity 2 ("error") onto CRITICAL and
// severity 1 ("warn") onto WARNING, per spec §4.5.
func parseESLintOutput(output string) (*types.LintResult, error) {
	result := &types.LintResult{}
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return result, nil
	}

	var files []eslintFileResult
	if err := json.Unmarshal([]byte(trimmed), &files); err != nil {
		return nil, err
	}

	for _, f := range files {
		for _, m := range f.Messages {
			severity := types.SeverityWarning
			if m.Severity == 2 {
				severity = types.SeverityCritical
			}
			result.Findings = append(result.Findings, types.LintFinding{
				File:     f.FilePath,
				Line:     m.Line,
				Code:     m.RuleID,
				Message:  m.Message,
				Severity: severity,
			})
			if severity == types.SeverityCritical {
				result.ErrorCount++
			} else {
				result.WarningCount++
			}
		}
	}
	return result, nil
}
