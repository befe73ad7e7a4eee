// Package types holds the core entities shared across CodeFRAME components:
// Project, Issue, Task, Agent, ContextItem, Blocker, and their satellites.
// None of these types owns persistence; internal/store is the sole writer.
package types

import (
	"regexp"
	"time"
)

// ProjectType is the declared stack of a project, used for linter/test
// runner selection downstream in QualityPipeline.
type ProjectType string

const (
	ProjectTypePython     ProjectType = "python"
	ProjectTypeTypeScript ProjectType = "typescript"
	ProjectTypeFullstack  ProjectType = "fullstack"
	ProjectTypeOther      ProjectType = "other"
)

// ProjectPhase is the LeadAgent state machine's position for a project.
type ProjectPhase string

const (
	PhaseDiscovery        ProjectPhase = "discovery"
	PhasePlanning         ProjectPhase = "planning"
	PhaseAwaitingApproval ProjectPhase = "awaiting_approval"
	PhaseDevelopment      ProjectPhase = "development"
	PhaseReview           ProjectPhase = "review"
	PhaseCompleted        ProjectPhase = "completed"
	PhaseFailed           ProjectPhase = "failed"
)

var projectNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Project is a single orchestrated software project.
type Project struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	ProjectType   ProjectType  `json:"project_type"`
	Phase         ProjectPhase `json:"phase"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	WorkspacePath string       `json:"workspace_path"`
}

// ValidateName checks the project-name invariants from spec §3 and §6.
func ValidateName(name string) error {
	if len(name) < 3 || len(name) > 100 {
		return NewValidationError("name must be between 3 and 100 characters")
	}
	if !projectNamePattern.MatchString(name) {
		return NewValidationError("name must match ^[a-z0-9_-]+$")
	}
	return nil
}

// ValidateDescription checks the description length invariant.
func ValidateDescription(desc string) error {
	if len(desc) < 10 || len(desc) > 500 {
		return NewValidationError("description must be between 10 and 500 characters")
	}
	return nil
}

// ValidateProjectType checks that t is one of the enumerated project types.
func ValidateProjectType(t ProjectType) error {
	switch t {
	case ProjectTypePython, ProjectTypeTypeScript, ProjectTypeFullstack, ProjectTypeOther:
		return nil
	default:
		return NewValidationError("projectType must be one of python, typescript, fullstack, other")
	}
}

// phaseOrder gives the monotonic ordering used to validate forward phase
// transitions; development -> review is allowed to run backward for
// re-review per spec §3.
var phaseOrder = map[ProjectPhase]int{
	PhaseDiscovery:        0,
	PhasePlanning:         1,
	PhaseAwaitingApproval: 2,
	PhaseDevelopment:      3,
	PhaseReview:           4,
	PhaseCompleted:        5,
	PhaseFailed:           6,
}

// CanTransitionPhase reports whether moving from `from` to `to` is allowed.
// Backward transitions are forbidden except development -> review
// (re-review) and any phase -> failed (abort).
func CanTransitionPhase(from, to ProjectPhase) bool {
	if to == PhaseFailed {
		return true
	}
	if from == PhaseReview && to == PhaseDevelopment {
		return true
	}
	fromOrd, fromOK := phaseOrder[from]
	toOrd, toOK := phaseOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toOrd == fromOrd+1
}

// ProjectProgress is computed alongside a Project listing (spec §6
// GET /api/projects).
type ProjectProgress struct {
	CompletedTasks int     `json:"completed_tasks"`
	TotalTasks     int     `json:"total_tasks"`
	Percentage     float64 `json:"percentage"`
}

// NewProjectProgress computes a ProjectProgress from raw counts.
func NewProjectProgress(completed, total int) ProjectProgress {
	p := ProjectProgress{CompletedTasks: completed, TotalTasks: total}
	if total > 0 {
		p.Percentage = (float64(completed) / float64(total)) * 100
	}
	return p
}
