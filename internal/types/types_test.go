package types

import "testing"

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "my-awesome-app", false},
		{"too short", "ab", true},
		{"uppercase rejected", "MyApp", true},
		{"spaces rejected", "my app", true},
		{"valid with digits and underscore", "app_2024", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDescription(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"too short", "short", true},
		{"valid", "A full-stack application for tracking things", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescription(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDescription(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestCanTransitionPhase(t *testing.T) {
	tests := []struct {
		name string
		from ProjectPhase
		to   ProjectPhase
		want bool
	}{
		{"discovery to planning", PhaseDiscovery, PhasePlanning, true},
		{"skip planning forbidden", PhaseDiscovery, PhaseAwaitingApproval, false},
		{"review back to development allowed", PhaseReview, PhaseDevelopment, true},
		{"any phase to failed allowed", PhaseDevelopment, PhaseFailed, true},
		{"development back to planning forbidden", PhaseDevelopment, PhasePlanning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionPhase(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionPhase(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTaskTransitionTo(t *testing.T) {
	task := &Task{Status: TaskPending}

	if err := task.TransitionTo(TaskReady); err != nil {
		t.Fatalf("pending -> ready should be legal: %v", err)
	}
	if task.Status != TaskReady {
		t.Fatalf("expected status ready, got %s", task.Status)
	}

	if err := task.TransitionTo(TaskCompleted); err == nil {
		t.Fatal("ready -> completed directly should be illegal")
	}
}

func TestAgentHasCapabilities(t *testing.T) {
	agent := &Agent{Capabilities: []string{"python", "fastapi"}}

	if !agent.HasCapabilities([]string{"python"}) {
		t.Error("expected agent to satisfy subset requirement")
	}
	if agent.HasCapabilities([]string{"python", "rust"}) {
		t.Error("expected agent to not satisfy capability it lacks")
	}
}

func TestAgentSuccessRate(t *testing.T) {
	agent := &Agent{SuccessCount: 3, FailureCount: 1}
	if rate := agent.SuccessRate(); rate != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", rate)
	}
	empty := &Agent{}
	if rate := empty.SuccessRate(); rate != 0 {
		t.Errorf("SuccessRate() with no history = %v, want 0", rate)
	}
}

func TestValidateAnswer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"one char passes", "x", false},
		{"whitespace only fails", "   ", true},
		{"5001 chars fails", string(make([]byte, 5001)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswer(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAnswer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReviewReportHasCriticalSecurityFinding(t *testing.T) {
	report := &ReviewReport{Findings: []ReviewFinding{
		{Category: "style", Severity: FindingCritical},
		{Category: "security", Severity: FindingMinor},
	}}
	if report.HasCriticalSecurityFinding() {
		t.Error("expected no critical security finding")
	}

	report.Findings = append(report.Findings, ReviewFinding{Category: "security", Severity: FindingCritical})
	if !report.HasCriticalSecurityFinding() {
		t.Error("expected critical security finding to be detected")
	}
}

func TestKindOf(t *testing.T) {
	err := NewValidationError("bad input")
	kind, ok := KindOf(err)
	if !ok || kind != KindValidation {
		t.Errorf("KindOf() = (%v, %v), want (%v, true)", kind, ok, KindValidation)
	}
}
