// Package review implements ReviewAgent (spec §4.10), a WorkerAgent
// specialization that never edits files or commits: it runs deterministic
// static analyzers over a task's changed files and produces a scored
// ReviewReport.
package review

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/codeframe-dev/codeframe/internal/types"
)

// FileSet maps a changed file's path to its full post-edit content.
type FileSet map[string]string

// branchKeywords approximates cyclomatic complexity without a real
// per-language parser: every branch point adds one to a function's
// complexity, the same rough heuristic the teacher's own recon findings
// (scripts/import-recon.go) use line-pattern matching for rather than a
// full AST walk.
var branchKeywords = regexp.MustCompile(`\b(if|for|while|case|catch|except|elif|&&|\|\|)\b`)

// funcHeaders recognizes a function/method start across the languages
// CodeFRAME's worker agents touch (Go, Python, TypeScript/JavaScript).
var funcHeaders = regexp.MustCompile(`^\s*(func |def |function |.*=>\s*\{)`)

// AnalyzeComplexity walks each file and flags functions whose approximate
// branch count exceeds threshold (default 10, spec §4.10).
func AnalyzeComplexity(files FileSet, threshold int) []types.ReviewFinding {
	var findings []types.ReviewFinding
	for path, content := range files {
		lines := strings.Split(content, "\n")
		funcStart := -1
		complexity := 0
		flush := func(endLine int) {
			if funcStart >= 0 && complexity > threshold {
				findings = append(findings, types.ReviewFinding{
					Category: "complexity",
					Severity: complexitySeverity(complexity, threshold),
					File:     path,
					Line:     funcStart + 1,
					Message:  "function exceeds cyclomatic complexity threshold",
				})
			}
		}
		for i, line := range lines {
			if funcHeaders.MatchString(line) {
				flush(i)
				funcStart = i
				complexity = 0
				continue
			}
			complexity += len(branchKeywords.FindAllString(line, -1))
		}
		flush(len(lines))
	}
	return findings
}

func complexitySeverity(complexity, threshold int) types.FindingSeverity {
	if complexity > threshold*2 {
		return types.FindingMajor
	}
	return types.FindingMinor
}

// AnalyzeLength flags functions longer than limit lines (default 50).
func AnalyzeLength(files FileSet, limit int) []types.ReviewFinding {
	var findings []types.ReviewFinding
	for path, content := range files {
		lines := strings.Split(content, "\n")
		funcStart := -1
		flush := func(endLine int) {
			if funcStart >= 0 && endLine-funcStart > limit {
				findings = append(findings, types.ReviewFinding{
					Category: "style",
					Severity: types.FindingMinor,
					File:     path,
					Line:     funcStart + 1,
					Message:  "function exceeds line-length limit",
				})
			}
		}
		for i, line := range lines {
			if funcHeaders.MatchString(line) {
				flush(i)
				funcStart = i
			}
		}
		flush(len(lines))
	}
	return findings
}

// owaspPatterns are a small set of OWASP-derived anti-patterns
// (injection, weak crypto, insecure deserialization surface) checked
// with simple substring/regex matching rather than full taint analysis.
var owaspPatterns = []struct {
	pattern  *regexp.Regexp
	category string
	message  string
	severity types.FindingSeverity
}{
	{regexp.MustCompile(`(?i)exec\.Command\([^)]*\+`), "security", "possible command injection via concatenated exec.Command argument", types.FindingCritical},
	{regexp.MustCompile(`(?i)SELECT .* \+ |"\s*\+\s*\w+\s*\+\s*"`), "security", "possible SQL injection via string-concatenated query", types.FindingCritical},
	{regexp.MustCompile(`(?i)md5|sha1\(`), "security", "use of a weak hash algorithm", types.FindingMajor},
	{regexp.MustCompile(`(?i)InsecureSkipVerify\s*:\s*true`), "security", "TLS certificate verification disabled", types.FindingCritical},
}

// secretPatterns sweep for hardcoded credentials.
var secretPatterns = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*[:=]\s*["'][A-Za-z0-9+/_-]{12,}["']`), "hardcoded credential-like literal"},
	{regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`), "embedded private key"},
	{regexp.MustCompile(`(?i)sk-[A-Za-z0-9]{20,}`), "embedded API key"},
}

// AnalyzeSecurity runs the OWASP pattern checks and the secrets sweep
// over every file, returning both sets of findings together since both
// feed the same security sub-score.
func AnalyzeSecurity(files FileSet) []types.ReviewFinding {
	var findings []types.ReviewFinding
	for path, content := range files {
		scanner := bufio.NewScanner(strings.NewReader(content))
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			for _, p := range owaspPatterns {
				if p.pattern.MatchString(text) {
					findings = append(findings, types.ReviewFinding{
						Category: p.category,
						Severity: p.severity,
						File:     path,
						Line:     line,
						Message:  p.message,
					})
				}
			}
			for _, p := range secretPatterns {
				if p.pattern.MatchString(text) {
					findings = append(findings, types.ReviewFinding{
						Category: "security",
						Severity: types.FindingCritical,
						File:     path,
						Line:     line,
						Message:  p.message,
					})
				}
			}
		}
	}
	return findings
}
