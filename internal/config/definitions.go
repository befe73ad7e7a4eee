package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/codeframe-dev/codeframe/internal/types"
	"gopkg.in/yaml.v3"
)

// LoadAgentDefinitions reads every *.yaml file under dir (normally
// <workspace>/.codeframe/agents/definitions/) into an AgentDefinition,
// keyed by file basename without extension. New worker variants are
// added by dropping a file here; no core code change is required
// (spec §9 "Polymorphism").
func LoadAgentDefinitions(dir string) (map[string]*types.AgentDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*types.AgentDefinition{}, nil
		}
		return nil, err
	}

	defs := make(map[string]*types.AgentDefinition, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		def, err := loadOneDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		defs[name] = def
	}
	return defs, nil
}

func loadOneDefinition(path string) (*types.AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def types.AgentDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// DefaultAgentDefinitions returns the built-in backend/frontend/test/review
// capability descriptors used when no definitions directory exists yet,
// mirroring the teacher's built-in team defaults.
func DefaultAgentDefinitions() map[string]*types.AgentDefinition {
	return map[string]*types.AgentDefinition{
		"backend": {
			Type:         types.AgentTypeBackend,
			Provider:     "default",
			Capabilities: []string{"python", "backend", "api"},
			Maturity:     types.MaturitySupporting,
		},
		"frontend": {
			Type:         types.AgentTypeFrontend,
			Provider:     "default",
			Capabilities: []string{"typescript", "frontend", "ui"},
			Maturity:     types.MaturitySupporting,
		},
		"test": {
			Type:         types.AgentTypeTest,
			Provider:     "default",
			Capabilities: []string{"python", "typescript", "testing"},
			Maturity:     types.MaturityCoaching,
		},
		"review": {
			Type:         types.AgentTypeReview,
			Provider:     "default",
			Capabilities: []string{"python", "typescript", "review"},
			Maturity:     types.MaturityDelegating,
		},
	}
}
