package llm

import (
	"os"
	"path/filepath"
)

// Built-in fallbacks used when no override file exists in the prompts
// directory. Keeping them here means a fresh checkout runs without any
// prompt files on disk.
const (
	defaultPlannerPrompt = "You are a world-class nutritionist. Create a detailed weekly meal plan based exactly on the user's constraints."

	defaultExtractorPrompt = "You are a shopping assistant. Read the meal plan. " +
		"Extract a consolidated comma-separated list of grocery ingredients. " +
		"Exclude pantry staples (salt, oil, water). " +
		"Example: 'chicken breast, spinach, greek yogurt'"

	defaultSubstitutePrompt = "You are a shopping assistant. When told an item is unavailable, " +
		"reply with the name of ONE generic substitute and nothing else."
)

// PromptManager resolves system prompts from a directory of markdown
// files, falling back to built-in defaults for any file that is missing.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) load(name, fallback string) string {
	path := filepath.Join(pm.Directory, name)
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return fallback
	}
	return string(data)
}

func (pm *PromptManager) PlannerPrompt() string {
	return pm.load("planner.md", defaultPlannerPrompt)
}

func (pm *PromptManager) ExtractorPrompt() string {
	return pm.load("extractor.md", defaultExtractorPrompt)
}

func (pm *PromptManager) SubstitutePrompt() string {
	return pm.load("substitute.md", defaultSubstitutePrompt)
}
