package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diffsight/diffsight-go/internal/models"
	"github.com/diffsight/diffsight-go/internal/tools"
)

// builtinRegistry registers the adapters for the analyzers DiffSight knows
// how to drive out of the box. A binary that is not installed surfaces as a
// per-tool failure at analysis time, not as a startup error.
func builtinRegistry() *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(tools.NewCommandAdapter(tools.CommandConfig{
		Name:       "golangci-lint",
		Binary:     "golangci-lint",
		Args:       []string{"run", "--out-format", "line-number"},
		Format:     tools.FormatLines,
		Categories: []models.Category{models.CategoryQuality},
		Extensions: []string{".go"},
		Languages:  []string{"Go"},
	}))

	reg.Register(tools.NewCommandAdapter(tools.CommandConfig{
		Name:        "staticcheck",
		Binary:      "staticcheck",
		Format:      tools.FormatLines,
		Categories:  []models.Category{models.CategoryQuality, models.CategoryPerformance},
		Extensions:  []string{".go"},
		Languages:   []string{"Go"},
		DefaultRule: "staticcheck",
	}))

	reg.Register(tools.NewCommandAdapter(tools.CommandConfig{
		Name:        "ruff",
		Binary:      "ruff",
		Args:        []string{"check", "--output-format", "concise"},
		Format:      tools.FormatLines,
		Categories:  []models.Category{models.CategoryQuality},
		Extensions:  []string{".py"},
		Languages:   []string{"Python"},
		DefaultRule: "ruff",
	}))

	return reg
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools DiffSight can run",
	Run: func(cmd *cobra.Command, args []string) {
		reg := builtinRegistry()
		for _, name := range reg.Names() {
			adapter, _ := reg.Get(name)
			cats := make([]string, 0, len(adapter.Categories()))
			for _, c := range adapter.Categories() {
				cats = append(cats, string(c))
			}
			fmt.Printf("  %-16s %s\n", name, strings.Join(cats, ", "))
		}
	},
}
