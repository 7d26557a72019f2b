package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_Fallbacks(t *testing.T) {
	pm := NewPromptManager(t.TempDir())

	if !strings.Contains(pm.PlannerPrompt(), "meal plan") {
		t.Error("Planner fallback should describe meal planning")
	}
	if !strings.Contains(pm.ExtractorPrompt(), "comma-separated") {
		t.Error("Extractor fallback should ask for a comma-separated list")
	}
	if !strings.Contains(pm.SubstitutePrompt(), "substitute") {
		t.Error("Substitute fallback should ask for a substitute")
	}
}

func TestPromptManager_FileOverride(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte("Custom Planner Content"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(dir)

	if pm.PlannerPrompt() != "Custom Planner Content" {
		t.Errorf("Expected file override, got %q", pm.PlannerPrompt())
	}
	// Missing files still fall back.
	if !strings.Contains(pm.ExtractorPrompt(), "comma-separated") {
		t.Error("Extractor should fall back when no override file exists")
	}
}
