package review

import (
	"strings"
	"testing"

	"github.com/codeframe-dev/codeframe/internal/types"
)

func testConfig() Config {
	return Config{
		ComplexityThreshold: 10,
		FunctionLengthLimit: 50,
		ApproveScore:        70,
		RejectScore:         50,
	}
}

func TestAnalyzeCleanFileApproves(t *testing.T) {
	files := FileSet{
		"main.go": "func main() {\n\tprintln(\"hello\")\n}\n",
	}
	report := Analyze(1, files, 100, testConfig())
	if report.Status != types.ReviewApproved {
		t.Errorf("expected approved for a clean file, got %s (score %f, findings %+v)", report.Status, report.OverallScore, report.Findings)
	}
}

func TestAnalyzeCriticalSecurityFindingAlwaysRejects(t *testing.T) {
	files := FileSet{
		"db.go": `query := "SELECT * FROM users WHERE id = " + userInput + ""`,
	}
	report := Analyze(1, files, 100, testConfig())
	if report.Status != types.ReviewRejected {
		t.Errorf("expected rejected for a CRITICAL security finding regardless of score, got %s", report.Status)
	}
	if !report.HasCriticalSecurityFinding() {
		t.Error("expected HasCriticalSecurityFinding to report true")
	}
}

func TestAnalyzeHighComplexityRequestsChanges(t *testing.T) {
	var b strings.Builder
	b.WriteString("func tangled(x int) int {\n")
	for i := 0; i < 15; i++ {
		b.WriteString("\tif x > 0 && x < 100 || x == 5 {\n\t\tx++\n\t}\n")
	}
	b.WriteString("\treturn x\n}\n")

	files := FileSet{"tangled.go": b.String()}
	report := Analyze(1, files, 100, testConfig())
	if report.Status == types.ReviewApproved {
		t.Errorf("expected a tangled function to not cleanly approve, got %s (complexity score %f)", report.Status, report.ComplexityScore)
	}
	if len(report.Findings) == 0 {
		t.Error("expected at least one complexity finding")
	}
}

func TestAnalyzeDetectsHardcodedSecret(t *testing.T) {
	files := FileSet{
		"config.go": `apiKey := "sk-abcdefghijklmnopqrstuvwxyz123456"`,
	}
	findings := AnalyzeSecurity(files)
	if len(findings) == 0 {
		t.Fatal("expected a secret-pattern finding")
	}
	if findings[0].Severity != types.FindingCritical {
		t.Errorf("expected secret finding to be CRITICAL, got %s", findings[0].Severity)
	}
}
