package tools

import (
	"context"

	"github.com/diffsight/diffsight-go/internal/models"
)

// StaticAdapter returns a fixed issue list regardless of input. It backs
// tests and dry runs where launching real analyzers is unwanted.
type StaticAdapter struct {
	name       string
	version    string
	categories []models.Category
	issues     []models.ToolIssue

	// Selector overrides file selection; nil selects everything
	Selector func(path, language string) bool
}

// NewStaticAdapter builds an adapter that always reports the given issues.
// Fingerprints and identifiers are finalized on construction.
func NewStaticAdapter(name, version string, categories []models.Category, issues []models.ToolIssue) *StaticAdapter {
	finalized := make([]models.ToolIssue, len(issues))
	for i, issue := range issues {
		issue.Tool = name
		if issue.ToolVersion == "" {
			issue.ToolVersion = version
		}
		FinalizeIssue(&issue)
		finalized[i] = issue
	}
	return &StaticAdapter{
		name:       name,
		version:    version,
		categories: categories,
		issues:     finalized,
	}
}

func (a *StaticAdapter) Name() string { return a.name }

func (a *StaticAdapter) Version() string { return a.version }

func (a *StaticAdapter) Categories() []models.Category { return a.categories }

func (a *StaticAdapter) SelectsFile(path, language string) bool {
	if a.Selector != nil {
		return a.Selector(path, language)
	}
	return true
}

func (a *StaticAdapter) Invoke(ctx context.Context, workTreePath string, files []string) ([]models.ToolIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.ToolIssue, len(a.issues))
	copy(out, a.issues)
	return out, nil
}
