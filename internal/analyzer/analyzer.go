// Package analyzer runs the selected tools against one branch working tree
// and aggregates their findings into a single deduplicated result.
package analyzer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/index"
	"github.com/diffsight/diffsight-go/internal/models"
	"github.com/diffsight/diffsight-go/internal/repo"
	"github.com/diffsight/diffsight-go/internal/tools"
)

// defaultSeverityWeights feed the criticality score; configuration may
// override individual severities
var defaultSeverityWeights = map[models.Severity]float64{
	models.SeverityCritical: 10,
	models.SeverityHigh:     5,
	models.SeverityMedium:   2,
	models.SeverityLow:      1,
	models.SeverityInfo:     0.5,
}

// resolveSeverityWeights merges configured overrides onto the defaults
func resolveSeverityWeights(overrides map[string]float64) map[models.Severity]float64 {
	weights := make(map[models.Severity]float64, len(defaultSeverityWeights))
	for sev, w := range defaultSeverityWeights {
		weights[sev] = w
	}
	for raw, w := range overrides {
		sev := models.Severity(strings.ToLower(raw))
		if _, known := defaultSeverityWeights[sev]; known && w >= 0 {
			weights[sev] = w
		}
	}
	return weights
}

// ToolSelector lets a specialized agent contribute tool names to the
// selection. Selected names are unioned with Options.Tools.
type ToolSelector interface {
	RelevantTools() []string
}

// Options narrows which tools run for one branch analysis
type Options struct {
	// Categories filters tools by the issue categories they report.
	// Empty means all categories.
	Categories []models.Category

	// Tools names specific tools to run. Empty means all enabled tools
	// that pass the category filter.
	Tools []string

	// Agents contribute additional tool names (unioned with Tools)
	Agents []ToolSelector

	// SkipCache forces a fresh analysis even when a cached result exists
	SkipCache bool
}

// Metrics aggregates counters over one branch analysis
type Metrics struct {
	TotalIssues      int                     `json:"total_issues"`
	BySeverity       map[models.Severity]int `json:"by_severity"`
	ByCategory       map[models.Category]int `json:"by_category"`
	ByTool           map[string]int          `json:"by_tool"`
	CriticalityScore float64                 `json:"criticality_score"`
	FilesAnalyzed    int                     `json:"files_analyzed"`
}

// Result is the complete analysis of one branch: the deduplicated issue
// list plus per-tool run metadata and aggregate metrics.
type Result struct {
	RepoURL    string `json:"repo_url"`
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`

	Issues   []models.ToolIssue `json:"issues"`
	ToolRuns []models.ToolRun   `json:"tool_runs"`
	Metrics  Metrics            `json:"metrics"`

	AnalyzedAt time.Time     `json:"analyzed_at"`
	Duration   time.Duration `json:"duration"`
}

// Analyzer coordinates tool execution for one branch at a time. Tools run
// concurrently under a bounded worker pool; subprocess launches are
// additionally rate limited so a wide tool set cannot fork-bomb the host.
type Analyzer struct {
	registry *tools.Registry
	cache    *cache.Cache
	cfg      config.AnalyzerConfig
	logger   *logrus.Logger
	limiter  *rate.Limiter
	weights  map[models.Severity]float64
}

// New creates a branch analyzer
func New(registry *tools.Registry, c *cache.Cache, cfg config.AnalyzerConfig, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	launchRate := cfg.LaunchRate
	if launchRate <= 0 {
		launchRate = 20
	}
	return &Analyzer{
		registry: registry,
		cache:    c,
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(launchRate), 1),
		weights:  resolveSeverityWeights(cfg.SeverityWeights),
	}
}

type toolOutput struct {
	run    models.ToolRun
	issues []models.ToolIssue
}

// Analyze runs the selected tools against the working tree and returns the
// aggregated branch result. A tool failure or timeout never fails the
// analysis; it is recorded in the tool's run metadata and the tool
// contributes no issues. Only context cancellation aborts the whole run.
func (a *Analyzer) Analyze(ctx context.Context, tree *repo.WorkingTree, idx *index.RepoIndex, opts Options) (*Result, error) {
	start := time.Now()

	key := cache.BranchKey(tree.RepoURL, tree.Branch)
	if !opts.SkipCache {
		var cached Result
		if a.cache.Get(ctx, key, &cached) {
			a.logger.WithFields(logrus.Fields{
				"repo":   tree.RepoURL,
				"branch": tree.Branch,
				"issues": len(cached.Issues),
			}).Debug("branch analysis cache hit")
			return &cached, nil
		}
	}

	adapters := a.registry.Select(opts.Categories, unionToolNames(opts))
	a.logger.WithFields(logrus.Fields{
		"repo":   tree.RepoURL,
		"branch": tree.Branch,
		"commit": tree.CommitHash,
		"tools":  len(adapters),
		"files":  len(idx.Files),
	}).Info("branch analysis started")

	outputs := make([]toolOutput, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	limit := a.cfg.MaxConcurrentTools
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			outputs[i] = a.runTool(gctx, adapter, tree, idx)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Adapters are sorted by name, so concatenation order is stable and the
	// first-seen tie-break in deduplication is deterministic.
	var all []models.ToolIssue
	runs := make([]models.ToolRun, 0, len(outputs))
	for _, out := range outputs {
		all = append(all, out.issues...)
		runs = append(runs, out.run)
	}
	issues := Deduplicate(all)

	result := &Result{
		RepoURL:    tree.RepoURL,
		Branch:     tree.Branch,
		CommitHash: tree.CommitHash,
		Issues:     issues,
		ToolRuns:   runs,
		Metrics:    computeMetrics(issues, idx, a.weights),
		AnalyzedAt: time.Now().UTC(),
		Duration:   time.Since(start),
	}

	a.cache.Set(ctx, key, result)

	a.logger.WithFields(logrus.Fields{
		"repo":     tree.RepoURL,
		"branch":   tree.Branch,
		"issues":   len(issues),
		"raw":      len(all),
		"duration": result.Duration,
	}).Info("branch analysis complete")
	return result, nil
}

// runTool executes a single adapter with its own timeout, consulting the
// per-tool cache first when the commit hash is known
func (a *Analyzer) runTool(ctx context.Context, adapter tools.Adapter, tree *repo.WorkingTree, idx *index.RepoIndex) toolOutput {
	name := adapter.Name()
	run := models.ToolRun{Tool: name}

	files := selectFiles(adapter, idx)
	if len(files) == 0 {
		run.Status = models.ToolStatusSkipped
		a.logger.WithField("tool", name).Debug("tool selects no files, skipped")
		return toolOutput{run: run}
	}

	hashPrefix := commitHashPrefix(tree.CommitHash)
	var toolKey cache.Key
	if hashPrefix != "" {
		toolKey = cache.ToolKey(tree.RepoURL, tree.Branch, name, hashPrefix)
		var cached []models.ToolIssue
		if a.cache.Get(ctx, toolKey, &cached) {
			run.Status = models.ToolStatusSuccess
			run.IssueCount = len(cached)
			return toolOutput{run: run, issues: cached}
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		run.Status = models.ToolStatusFailure
		run.Error = err.Error()
		return toolOutput{run: run}
	}

	timeout := a.cfg.ToolTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	issues, err := adapter.Invoke(toolCtx, tree.Path, files)
	run.Duration = time.Since(started)

	if err != nil {
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			run.Status = models.ToolStatusTimeout
			run.Error = "tool timed out after " + timeout.String()
			a.logger.WithFields(logrus.Fields{"tool": name, "timeout": timeout}).Warn("tool timed out")
		} else {
			run.Status = models.ToolStatusFailure
			run.Error = err.Error()
			a.logger.WithFields(logrus.Fields{"tool": name, "error": err}).Warn("tool failed")
		}
		return toolOutput{run: run}
	}

	run.Status = models.ToolStatusSuccess
	run.IssueCount = len(issues)

	if hashPrefix != "" {
		a.cache.Set(ctx, toolKey, issues)
	}
	return toolOutput{run: run, issues: issues}
}

// selectFiles applies the adapter's file filter over the index in sorted
// path order
func selectFiles(adapter tools.Adapter, idx *index.RepoIndex) []string {
	var files []string
	for _, path := range idx.Paths() {
		if adapter.SelectsFile(path, idx.Files[path].Language) {
			files = append(files, path)
		}
	}
	return files
}

func unionToolNames(opts Options) []string {
	set := make(map[string]bool)
	for _, n := range opts.Tools {
		set[n] = true
	}
	for _, agent := range opts.Agents {
		for _, n := range agent.RelevantTools() {
			set[n] = true
		}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func commitHashPrefix(hash string) string {
	if hash == "" || hash == index.UnknownCommit {
		return ""
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func computeMetrics(issues []models.ToolIssue, idx *index.RepoIndex, weights map[models.Severity]float64) Metrics {
	m := Metrics{
		TotalIssues:   len(issues),
		BySeverity:    make(map[models.Severity]int),
		ByCategory:    make(map[models.Category]int),
		ByTool:        make(map[string]int),
		FilesAnalyzed: len(idx.Files),
	}
	for i := range issues {
		m.BySeverity[issues[i].Severity]++
		m.ByCategory[issues[i].Category]++
		m.ByTool[issues[i].Tool]++
		m.CriticalityScore += weights[issues[i].Severity]
	}
	return m
}
