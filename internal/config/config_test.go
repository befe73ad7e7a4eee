package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("CONTEXT_LIMIT_TOKENS")
	os.Unsetenv("MAX_CONCURRENT_TASKS")

	snap := Load()

	if snap.ContextLimitTokens != 180000 {
		t.Errorf("ContextLimitTokens = %d, want 180000", snap.ContextLimitTokens)
	}
	if snap.FlashSaveThreshold != 0.80 {
		t.Errorf("FlashSaveThreshold = %v, want 0.80", snap.FlashSaveThreshold)
	}
	if snap.MaxConcurrentTasks != 4 {
		t.Errorf("MaxConcurrentTasks = %d, want 4", snap.MaxConcurrentTasks)
	}
	if !snap.BlockOnCritical {
		t.Error("BlockOnCritical should default to true")
	}
	if snap.BlockOnError {
		t.Error("BlockOnError should default to false")
	}
}

func TestLoadRespectsEnv(t *testing.T) {
	os.Setenv("CONTEXT_LIMIT_TOKENS", "90000")
	defer os.Unsetenv("CONTEXT_LIMIT_TOKENS")

	snap := Load()
	if snap.ContextLimitTokens != 90000 {
		t.Errorf("ContextLimitTokens = %d, want 90000", snap.ContextLimitTokens)
	}
}

func TestLoadAgentDefinitionsMissingDirReturnsEmpty(t *testing.T) {
	defs, err := LoadAgentDefinitions("/nonexistent/path/definitely")
	if err != nil {
		t.Fatalf("LoadAgentDefinitions() error = %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("expected empty map, got %d entries", len(defs))
	}
}

func TestLoadAgentDefinitionsFromYAML(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `type: backend
provider: anthropic
capabilities:
  - python
  - fastapi
maturity: supporting
`
	if err := os.WriteFile(dir+"/backend.yaml", []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	defs, err := LoadAgentDefinitions(dir)
	if err != nil {
		t.Fatalf("LoadAgentDefinitions() error = %v", err)
	}
	def, ok := defs["backend"]
	if !ok {
		t.Fatal("expected a 'backend' definition")
	}
	if len(def.Capabilities) != 2 || def.Capabilities[0] != "python" {
		t.Errorf("unexpected capabilities: %v", def.Capabilities)
	}
}

func TestDefaultAgentDefinitions(t *testing.T) {
	defs := DefaultAgentDefinitions()
	for _, name := range []string{"backend", "frontend", "test", "review"} {
		if _, ok := defs[name]; !ok {
			t.Errorf("expected default definition for %q", name)
		}
	}
}
