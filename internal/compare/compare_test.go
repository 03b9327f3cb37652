package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffsight/diffsight-go/internal/analyzer"
	"github.com/diffsight/diffsight-go/internal/index"
	"github.com/diffsight/diffsight-go/internal/models"
	"github.com/diffsight/diffsight-go/internal/tools"
)

func branchResult(branch string, issues ...models.ToolIssue) *analyzer.Result {
	finalized := make([]models.ToolIssue, len(issues))
	for i, issue := range issues {
		if issue.Tool == "" {
			issue.Tool = "linty"
		}
		if issue.Severity == "" {
			issue.Severity = models.SeverityMedium
		}
		if issue.Category == "" {
			issue.Category = models.CategoryQuality
		}
		tools.FinalizeIssue(&issue)
		finalized[i] = issue
	}
	return &analyzer.Result{
		RepoURL:    "github.com/acme/widgets",
		Branch:     branch,
		CommitHash: "0123456789abcdef",
		Issues:     finalized,
	}
}

func defaultOpts() Options {
	return Options{MatchThreshold: 60, IncludeUnchanged: true}
}

func TestIdenticalBranchesAllUnchanged(t *testing.T) {
	issues := []models.ToolIssue{
		{Tool: "a-lint", RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
		{Tool: "b-sec", RuleID: "S-1", File: "src/a.go", StartLine: 10, Message: "weak hash"},
		{Tool: "c-perf", RuleID: "P-1", File: "src/a.go", StartLine: 10, Message: "alloc in loop"},
	}
	main := branchResult("main", issues...)
	pr := branchResult("pr-7", issues...)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	assert.Empty(t, r.New)
	assert.Empty(t, r.Fixed)
	assert.Len(t, r.Unchanged, 3)
	assert.Equal(t, RiskLow, r.Metrics.RiskLevel)
	assert.Equal(t, 100.0, r.Metrics.OverallScore)
	for _, u := range r.Unchanged {
		assert.Equal(t, models.StatusUnchanged, u.Status)
		assert.Equal(t, 100, u.MatchConfidence)
	}
}

func TestNewCriticalSecurityIssue(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
		models.ToolIssue{RuleID: "X-001", File: "src/b.go", StartLine: 5, Message: "injection", Severity: models.SeverityCritical, Category: models.CategorySecurity},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	require.Len(t, r.New, 1)
	assert.Empty(t, r.Fixed)
	assert.Len(t, r.Unchanged, 1)

	n := r.New[0]
	assert.Equal(t, models.ImpactBreaking, n.Impact)
	assert.True(t, n.RequiresAction)
	assert.True(t, n.BlocksPR)
	assert.Equal(t, 120, n.Priority) // critical 100 + security 20
	assert.Equal(t, "days", n.EstimatedEffort)

	assert.Equal(t, RiskCritical, r.Metrics.RiskLevel)
	assert.LessOrEqual(t, r.Metrics.SecurityScore, 70.0)
}

func TestFixedHighIssueEarnsCredit(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
		models.ToolIssue{RuleID: "H-1", File: "src/a.go", StartLine: 20, Message: "race condition", Severity: models.SeverityHigh},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	assert.Empty(t, r.New)
	require.Len(t, r.Fixed, 1)
	assert.Len(t, r.Unchanged, 1)

	f := r.Fixed[0]
	assert.Equal(t, models.StatusFixed, f.Status)
	assert.Equal(t, 5.0, f.CreditScore)
	assert.Equal(t, "high-value", f.FixQuality)
	assert.Greater(t, r.Metrics.ImprovementRate, 0.0)
	assert.Equal(t, 1, r.Trends.FixVelocity)
}

func TestMovedFileIssueUnchanged(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-7", File: "src/old.go", StartLine: 15, Message: "m"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-7", File: "src/new.go", StartLine: 15, Message: "m"},
	)

	dual := &index.DualIndices{
		CrossRefs: map[string]*index.CrossReference{
			"src/old.go": {MainPath: "src/old.go", PRPath: "src/new.go", Status: index.DiffMoved},
			"src/new.go": {MainPath: "src/old.go", PRPath: "src/new.go", Status: index.DiffMoved},
		},
	}

	r := New(nil).Compare(main, pr, dual, defaultOpts())

	assert.Empty(t, r.New)
	assert.Empty(t, r.Fixed)
	require.Len(t, r.Unchanged, 1)
	assert.Equal(t, "moved", r.Unchanged[0].MatchType)
	assert.Equal(t, 95, r.Unchanged[0].MatchConfidence)
}

func TestLineShiftedIssueUnchanged(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-9", File: "src/a.go", StartLine: 12, Message: "shifted"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-9", File: "src/a.go", StartLine: 14, Message: "shifted"},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	require.Len(t, r.Unchanged, 1)
	assert.Equal(t, "line-shift", r.Unchanged[0].MatchType)
	assert.Equal(t, 86, r.Unchanged[0].MatchConfidence)
}

func TestContentMatchAcrossFiles(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-3", File: "src/a.go", StartLine: 5, Message: "message one here", CodeSnippet: "if err != nil { return err }"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-3", File: "src/b.go", StartLine: 40, Message: "other words entirely", CodeSnippet: "if err != nil { return err }"},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	require.Len(t, r.Unchanged, 1)
	assert.Equal(t, "content", r.Unchanged[0].MatchType)
	assert.Equal(t, 80, r.Unchanged[0].MatchConfidence)
}

func TestEmptyBranchesLowRisk(t *testing.T) {
	r := New(nil).Compare(branchResult("main"), branchResult("pr-7"), nil, defaultOpts())

	assert.Empty(t, r.New)
	assert.Empty(t, r.Fixed)
	assert.Empty(t, r.Unchanged)
	assert.Equal(t, RiskLow, r.Metrics.RiskLevel)
	assert.Equal(t, 100.0, r.Metrics.OverallScore)
	assert.Zero(t, r.Metrics.ImprovementRate)
}

func TestSuppressUnchangedKeepsCounts(t *testing.T) {
	issues := []models.ToolIssue{
		{RuleID: "Q-1", File: "src/a.go", StartLine: 10, Message: "unused var"},
	}
	opts := defaultOpts()
	opts.IncludeUnchanged = false

	r := New(nil).Compare(branchResult("main", issues...), branchResult("pr-7", issues...), nil, opts)

	assert.Empty(t, r.Unchanged)
	assert.Equal(t, 1, r.Metrics.UnchangedCount)
}

func TestBelowThresholdIsNewAndFixed(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-1", File: "src/a.go", StartLine: 1, Message: "alpha beta gamma", Severity: models.SeverityLow},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-2", File: "src/b.go", StartLine: 99, Message: "delta epsilon zeta", Severity: models.SeverityHigh},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	assert.Len(t, r.New, 1)
	assert.Len(t, r.Fixed, 1)
	assert.Empty(t, r.Unchanged)
}

func TestCompareDeterministic(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "one"},
		models.ToolIssue{RuleID: "R-2", File: "src/a.go", StartLine: 20, Message: "two", Severity: models.SeverityHigh},
		models.ToolIssue{RuleID: "R-3", File: "src/b.go", StartLine: 5, Message: "three"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-1", File: "src/a.go", StartLine: 12, Message: "one"},
		models.ToolIssue{RuleID: "R-4", File: "src/c.go", StartLine: 7, Message: "four", Severity: models.SeverityCritical, Category: models.CategorySecurity},
	)

	c := New(nil)
	first := c.Compare(main, pr, nil, defaultOpts())
	second := c.Compare(main, pr, nil, defaultOpts())

	assert.Equal(t, first.New, second.New)
	assert.Equal(t, first.Fixed, second.Fixed)
	assert.Equal(t, first.Unchanged, second.Unchanged)
	assert.Equal(t, first.Metrics, second.Metrics)
}

func TestBestMatchWinsOverFirstMatch(t *testing.T) {
	// Two main candidates can match the PR issue; the higher-confidence
	// exact match must win even though the fuzzy candidate comes first.
	main := branchResult("main",
		models.ToolIssue{RuleID: "R-1", File: "src/b.go", StartLine: 50, Message: "unused variable count"},
		models.ToolIssue{RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "unused variable count"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "unused variable count"},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	require.Len(t, r.Unchanged, 1)
	assert.Equal(t, 100, r.Unchanged[0].MatchConfidence)
	require.Len(t, r.Fixed, 1)
	assert.Equal(t, "src/b.go", r.Fixed[0].File)
}

func TestSprintEstimate(t *testing.T) {
	main := branchResult("main",
		models.ToolIssue{RuleID: "F-1", File: "a.go", StartLine: 1, Message: "one", Severity: models.SeverityHigh},
		models.ToolIssue{RuleID: "F-2", File: "a.go", StartLine: 2, Message: "two", Severity: models.SeverityMedium},
		models.ToolIssue{RuleID: "U-1", File: "b.go", StartLine: 1, Message: "kept"},
		models.ToolIssue{RuleID: "U-2", File: "b.go", StartLine: 2, Message: "kept too"},
		models.ToolIssue{RuleID: "U-3", File: "b.go", StartLine: 3, Message: "still here"},
	)
	pr := branchResult("pr-7",
		models.ToolIssue{RuleID: "U-1", File: "b.go", StartLine: 1, Message: "kept"},
		models.ToolIssue{RuleID: "U-2", File: "b.go", StartLine: 2, Message: "kept too"},
		models.ToolIssue{RuleID: "U-3", File: "b.go", StartLine: 3, Message: "still here"},
	)

	r := New(nil).Compare(main, pr, nil, defaultOpts())

	assert.Equal(t, 2, r.Trends.FixVelocity)
	assert.Equal(t, 0, r.Trends.NewIssueRate)
	// 3 remaining at a net rate of 2 per PR
	assert.Equal(t, 2, r.Trends.EstimatedSprints)
}
