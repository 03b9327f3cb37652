// Package compare classifies the issues of two branch analyses into new,
// fixed, and unchanged, and derives the per-PR scores and trends.
package compare

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diffsight/diffsight-go/internal/analyzer"
	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/index"
	"github.com/diffsight/diffsight-go/internal/matcher"
	"github.com/diffsight/diffsight-go/internal/models"
)

// RiskLevel summarizes the severity distribution of a PR's new issues
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// fixedCredit is the per-severity credit weight for fixed issues
var fixedCredit = map[models.Severity]float64{
	models.SeverityCritical: 10,
	models.SeverityHigh:     5,
	models.SeverityMedium:   3,
	models.SeverityLow:      1,
	models.SeverityInfo:     0.5,
}

// priorityBase is the severity component of the priority score
var priorityBase = map[models.Severity]int{
	models.SeverityCritical: 100,
	models.SeverityHigh:     80,
	models.SeverityMedium:   50,
	models.SeverityLow:      20,
	models.SeverityInfo:     10,
}

// categoryBonus is the category component of the priority score
var categoryBonus = map[models.Category]int{
	models.CategorySecurity:     20,
	models.CategoryDependency:   15,
	models.CategoryPerformance:  10,
	models.CategoryQuality:      5,
	models.CategoryArchitecture: 5,
}

// scoreDeduction is the per-severity deduction a new issue applies to its
// category score. Unchanged issues predate the PR and do not deduct.
var scoreDeduction = map[models.Severity]float64{
	models.SeverityCritical: 30,
	models.SeverityHigh:     15,
	models.SeverityMedium:   7,
	models.SeverityLow:      3,
	models.SeverityInfo:     1,
}

// Options control one comparison
type Options struct {
	// MatchThreshold is the minimum confidence for a PR issue to count as
	// unchanged
	MatchThreshold int

	// IncludeUnchanged retains unchanged issues in the result
	IncludeUnchanged bool

	// StrictDedup re-runs fingerprint deduplication on both sides before
	// matching
	StrictDedup bool
}

// DefaultOptions derives comparison options from configuration
func DefaultOptions(cfg config.CompareConfig) Options {
	threshold := cfg.MatchThreshold
	if threshold <= 0 {
		threshold = 60
	}
	return Options{
		MatchThreshold:   threshold,
		IncludeUnchanged: cfg.IncludeUnchanged,
	}
}

// Metrics aggregates a comparison into counts and scores
type Metrics struct {
	NewCount       int `json:"new_count"`
	FixedCount     int `json:"fixed_count"`
	UnchangedCount int `json:"unchanged_count"`

	NewBySeverity map[models.Severity]int `json:"new_by_severity"`
	ByCategory    map[models.Category]int `json:"by_category"` // new + unchanged
	ByTool        map[string]int          `json:"by_tool"`     // new + unchanged

	SecurityScore    float64 `json:"security_score"`
	QualityScore     float64 `json:"quality_score"`
	PerformanceScore float64 `json:"performance_score"`
	OverallScore     float64 `json:"overall_score"`

	ImprovementRate float64   `json:"improvement_rate"`
	TotalCredit     float64   `json:"total_credit"`
	RiskLevel       RiskLevel `json:"risk_level"`
}

// Trends is the coarse forward-looking view over one comparison
type Trends struct {
	FixVelocity     int     `json:"fix_velocity"`
	NewIssueRate    int     `json:"new_issue_rate"`
	ImprovementRate float64 `json:"improvement_rate"`

	// EstimatedSprints is the completion estimate for the remaining backlog,
	// zero when fix velocity does not exceed the new-issue rate
	EstimatedSprints int `json:"estimated_sprints,omitempty"`
}

// Result is the full outcome of comparing two branch analyses
type Result struct {
	RepoURL    string `json:"repo_url"`
	MainBranch string `json:"main_branch"`
	PRBranch   string `json:"pr_branch"`
	MainCommit string `json:"main_commit"`
	PRCommit   string `json:"pr_commit"`

	New       []models.EnhancedIssue `json:"new"`
	Fixed     []models.EnhancedIssue `json:"fixed"`
	Unchanged []models.EnhancedIssue `json:"unchanged"`

	Metrics Metrics `json:"metrics"`
	Trends  Trends  `json:"trends"`

	ComparedAt time.Time     `json:"compared_at"`
	Duration   time.Duration `json:"duration"`
}

// Comparator matches issues across the two branch analyses. It is pure:
// caching of comparison results belongs to the orchestrator.
type Comparator struct {
	logger *logrus.Logger
}

// New creates a comparator
func New(logger *logrus.Logger) *Comparator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Comparator{logger: logger}
}

// Compare classifies every issue of the two analyses. dual may be nil, in
// which case file moves are not recognized and a moved file's issues match
// only through the content and fuzzy strategies. Comparison is deterministic:
// repeated calls on the same inputs yield equal results.
func (c *Comparator) Compare(mainResult, prResult *analyzer.Result, dual *index.DualIndices, opts Options) *Result {
	start := time.Now()
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = 60
	}

	mainIssues := mainResult.Issues
	prIssues := prResult.Issues
	if opts.StrictDedup {
		mainIssues = analyzer.Deduplicate(mainIssues)
		prIssues = analyzer.Deduplicate(prIssues)
	}

	result := &Result{
		RepoURL:    prResult.RepoURL,
		MainBranch: mainResult.Branch,
		PRBranch:   prResult.Branch,
		MainCommit: mainResult.CommitHash,
		PRCommit:   prResult.CommitHash,
		ComparedAt: time.Now().UTC(),
	}

	matchedMain := make([]bool, len(mainIssues))

	for i := range prIssues {
		pr := &prIssues[i]
		bestIdx := -1
		bestMatch := matcher.Result{}

		moveSource := ""
		if dual != nil {
			moveSource = dual.MoveSource(pr.File)
		}

		for j := range mainIssues {
			if matchedMain[j] {
				continue
			}
			m := &mainIssues[j]

			var r matcher.Result
			if moveSource != "" && m.File == moveSource {
				r = matcher.MatchWithFileMovement(m, pr, moveSource, pr.File)
			} else {
				r = matcher.Match(m, pr)
			}
			if !r.IsMatch || r.Confidence < opts.MatchThreshold {
				continue
			}
			if r.Confidence > bestMatch.Confidence {
				bestIdx = j
				bestMatch = r
			}
		}

		if bestIdx >= 0 {
			matchedMain[bestIdx] = true
			if opts.IncludeUnchanged {
				result.Unchanged = append(result.Unchanged, enhanceUnchanged(pr, bestMatch))
			} else {
				result.Metrics.UnchangedCount++
			}
		} else {
			result.New = append(result.New, enhanceNew(pr))
		}
	}

	for j := range mainIssues {
		if !matchedMain[j] {
			result.Fixed = append(result.Fixed, enhanceFixed(&mainIssues[j]))
		}
	}

	result.Metrics = computeMetrics(result, result.Metrics.UnchangedCount)
	result.Trends = computeTrends(result.Metrics)
	result.Duration = time.Since(start)

	c.logger.WithFields(logrus.Fields{
		"repo":      result.RepoURL,
		"new":       result.Metrics.NewCount,
		"fixed":     result.Metrics.FixedCount,
		"unchanged": result.Metrics.UnchangedCount,
		"risk":      result.Metrics.RiskLevel,
	}).Info("branch comparison complete")
	return result
}

func enhanceNew(issue *models.ToolIssue) models.EnhancedIssue {
	e := models.EnhancedIssue{
		ToolIssue: *issue,
		Status:    models.StatusNew,
	}

	switch {
	case issue.Severity == models.SeverityCritical:
		e.Impact = models.ImpactBreaking
	case issue.Severity == models.SeverityHigh, issue.Category == models.CategorySecurity:
		e.Impact = models.ImpactDegrading
	default:
		e.Impact = models.ImpactMinor
	}
	e.RequiresAction = issue.Severity == models.SeverityCritical || issue.Severity == models.SeverityHigh
	e.BlocksPR = issue.Severity == models.SeverityCritical

	derivePriorityAndEffort(&e)
	return e
}

func enhanceFixed(issue *models.ToolIssue) models.EnhancedIssue {
	e := models.EnhancedIssue{
		ToolIssue:   *issue,
		Status:      models.StatusFixed,
		CreditScore: fixedCredit[issue.Severity],
		FixQuality:  fixQuality(issue.Severity),
	}
	derivePriorityAndEffort(&e)
	return e
}

func enhanceUnchanged(issue *models.ToolIssue, m matcher.Result) models.EnhancedIssue {
	e := models.EnhancedIssue{
		ToolIssue:       *issue,
		Status:          models.StatusUnchanged,
		MatchConfidence: m.Confidence,
		MatchType:       string(m.Type),
		// Seen in both branch analyses
		OccurrenceCount: 2,
	}
	derivePriorityAndEffort(&e)
	return e
}

func fixQuality(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical, models.SeverityHigh:
		return "high-value"
	case models.SeverityMedium:
		return "moderate"
	default:
		return "minor"
	}
}

func derivePriorityAndEffort(e *models.EnhancedIssue) {
	e.Priority = priorityBase[e.Severity] + categoryBonus[e.Category]

	switch {
	case e.Severity == models.SeverityCritical, e.Category == models.CategoryArchitecture:
		e.EstimatedEffort = "days"
	case e.Severity == models.SeverityHigh, e.Category == models.CategorySecurity:
		e.EstimatedEffort = "hours"
	default:
		e.EstimatedEffort = "minutes"
	}
}

// computeMetrics derives counts and scores. suppressedUnchanged carries the
// unchanged count when the issues themselves were dropped from the result.
func computeMetrics(r *Result, suppressedUnchanged int) Metrics {
	m := Metrics{
		NewCount:       len(r.New),
		FixedCount:     len(r.Fixed),
		UnchangedCount: len(r.Unchanged) + suppressedUnchanged,
		NewBySeverity:  make(map[models.Severity]int),
		ByCategory:     make(map[models.Category]int),
		ByTool:         make(map[string]int),
	}

	for i := range r.New {
		m.NewBySeverity[r.New[i].Severity]++
		m.ByCategory[r.New[i].Category]++
		m.ByTool[r.New[i].Tool]++
	}
	for i := range r.Unchanged {
		m.ByCategory[r.Unchanged[i].Category]++
		m.ByTool[r.Unchanged[i].Tool]++
	}
	for i := range r.Fixed {
		m.TotalCredit += r.Fixed[i].CreditScore
	}

	// Scores deduct for new issues only; pre-existing issues are the
	// baseline, not the PR's doing.
	security, quality, performance := 100.0, 100.0, 100.0
	for i := range r.New {
		deduction := scoreDeduction[r.New[i].Severity]
		switch r.New[i].Category {
		case models.CategorySecurity, models.CategoryDependency:
			security -= deduction
		case models.CategoryPerformance:
			performance -= deduction
		default:
			quality -= deduction
		}
	}
	m.SecurityScore = clampScore(security)
	m.QualityScore = clampScore(quality)
	m.PerformanceScore = clampScore(performance)
	m.OverallScore = 0.4*m.SecurityScore + 0.4*m.QualityScore + 0.2*m.PerformanceScore

	if m.FixedCount > 0 {
		m.ImprovementRate = float64(m.FixedCount-m.NewCount) / float64(m.FixedCount)
	}

	m.RiskLevel = riskLevel(m.NewBySeverity)
	return m
}

func riskLevel(newBySeverity map[models.Severity]int) RiskLevel {
	switch {
	case newBySeverity[models.SeverityCritical] > 0:
		return RiskCritical
	case newBySeverity[models.SeverityHigh] > 2:
		return RiskHigh
	case newBySeverity[models.SeverityHigh] > 0, newBySeverity[models.SeverityMedium] > 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

func computeTrends(m Metrics) Trends {
	t := Trends{
		FixVelocity:     m.FixedCount,
		NewIssueRate:    m.NewCount,
		ImprovementRate: m.ImprovementRate,
	}

	if net := m.FixedCount - m.NewCount; net > 0 && m.UnchangedCount > 0 {
		t.EstimatedSprints = (m.UnchangedCount + net - 1) / net
	}
	return t
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
