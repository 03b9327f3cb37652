package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diffsight/diffsight-go/internal/analyzer"
	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/compare"
	"github.com/diffsight/diffsight-go/internal/models"
	"github.com/diffsight/diffsight-go/internal/pipeline"
)

var (
	targetBranch     string
	noCache          bool
	includeUnchanged bool
	jsonOutput       bool
	categoryFlags    []string
	toolFlags        []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pr-url>",
	Short: "Analyze a pull request",
	Long: `Analyze clones both sides of the pull request, runs the configured
tools against each, and prints the new, fixed, and unchanged issues.

Exits non-zero when the PR introduces a blocking (critical) issue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		c := cache.New(ctx, cfg.Cache)
		defer c.Close()

		orchestrator := pipeline.New(cfg, c, builtinRegistry(), logger)

		report, err := orchestrator.AnalyzePR(ctx, args[0], pipeline.Options{
			TargetBranch: targetBranch,
			SkipCache:    noCache,
			Analyze: analyzer.Options{
				Categories: parseCategories(categoryFlags),
				Tools:      toolFlags,
				SkipCache:  noCache,
			},
			Compare: compare.Options{
				MatchThreshold:   cfg.Compare.MatchThreshold,
				IncludeUnchanged: includeUnchanged,
			},
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			out, merr := json.MarshalIndent(report, "", "  ")
			if merr != nil {
				return merr
			}
			fmt.Println(string(out))
		} else {
			printReport(report)
		}

		if blocking := blockingIssues(report); blocking > 0 {
			return fmt.Errorf("pull request blocked: %d critical issue(s) introduced", blocking)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&targetBranch, "target-branch", "main", "branch the PR merges into")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass cached results")
	analyzeCmd.Flags().BoolVar(&includeUnchanged, "include-unchanged", true, "list unchanged issues in the output")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the full report as JSON")
	analyzeCmd.Flags().StringSliceVar(&categoryFlags, "category", nil, "restrict tools to these categories (security, quality, performance, dependency, architecture)")
	analyzeCmd.Flags().StringSliceVar(&toolFlags, "tool", nil, "run only these tools")
}

func parseCategories(raw []string) []models.Category {
	var cats []models.Category
	for _, r := range raw {
		cats = append(cats, models.Category(strings.ToLower(strings.TrimSpace(r))))
	}
	return cats
}

func blockingIssues(report *pipeline.Report) int {
	if report.Comparison == nil {
		return 0
	}
	n := 0
	for _, issue := range report.Comparison.New {
		if issue.BlocksPR {
			n++
		}
	}
	return n
}

func printReport(report *pipeline.Report) {
	fmt.Printf("PR #%d of %s (%s -> %s)\n", report.PRNumber, report.RepoURL, report.PRBranch, report.TargetBranch)
	if report.CacheHit {
		fmt.Println("  (served from cache)")
	}
	if report.Diff != nil {
		fmt.Printf("  files: +%d -%d ~%d moved %d, impact %.1f\n",
			len(report.Diff.Added), len(report.Diff.Removed), len(report.Diff.Modified),
			len(report.Diff.Moved), report.ImpactScore)
	}

	c := report.Comparison
	if c == nil {
		return
	}

	m := c.Metrics
	fmt.Printf("\n  new %d | fixed %d | unchanged %d\n", m.NewCount, m.FixedCount, m.UnchangedCount)
	fmt.Printf("  risk: %s, overall score %.1f (security %.1f, quality %.1f, performance %.1f)\n",
		m.RiskLevel, m.OverallScore, m.SecurityScore, m.QualityScore, m.PerformanceScore)

	if len(c.New) > 0 {
		fmt.Println("\nNew issues:")
		printIssues(c.New, 10)
	}
	if len(c.Fixed) > 0 {
		fmt.Printf("\nFixed issues (credit %.1f):\n", m.TotalCredit)
		printIssues(c.Fixed, 5)
	}

	if len(report.Errors) > 0 {
		fmt.Println("\nTool problems:")
		for _, e := range report.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
}

func printIssues(issues []models.EnhancedIssue, limit int) {
	sorted := make([]models.EnhancedIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	for i, issue := range sorted {
		if i >= limit {
			fmt.Printf("  ... and %d more\n", len(sorted)-limit)
			break
		}
		marker := " "
		if issue.BlocksPR {
			marker = "!"
		}
		fmt.Printf("  %s [%s/%s] %s:%d %s (%s)\n",
			marker, issue.Severity, issue.Category, issue.File, issue.StartLine, issue.Message, issue.RuleID)
	}
}
