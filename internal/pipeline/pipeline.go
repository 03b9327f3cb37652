// Package pipeline wires the full PR analysis flow: working trees, dual
// indices, concurrent branch analyses, and the final comparison.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/diffsight/diffsight-go/internal/analyzer"
	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/compare"
	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/index"
	"github.com/diffsight/diffsight-go/internal/models"
	"github.com/diffsight/diffsight-go/internal/repo"
	"github.com/diffsight/diffsight-go/internal/tools"
)

// Options control one pipeline run
type Options struct {
	// TargetBranch is the branch the PR merges into; empty means "main"
	TargetBranch string

	// Analyze narrows tool selection for both branch analyses
	Analyze analyzer.Options

	// Compare overrides comparison options; zero value means config defaults
	Compare compare.Options

	// SkipCache bypasses the comparison cache check
	SkipCache bool
}

// Report is the end-to-end outcome of one PR analysis run
type Report struct {
	RunID    string `json:"run_id"`
	PRURL    string `json:"pr_url"`
	RepoURL  string `json:"repo_url"`
	PRNumber int    `json:"pr_number"`

	TargetBranch string `json:"target_branch"`
	PRBranch     string `json:"pr_branch"`

	Status   models.RunStatus `json:"status"`
	CacheHit bool             `json:"cache_hit"`

	Comparison  *compare.Result   `json:"comparison,omitempty"`
	Diff        *index.BranchDiff `json:"diff,omitempty"`
	ImpactScore float64           `json:"impact_score"`

	// Errors carries non-fatal per-tool problems; a fatal error is returned
	// alongside the report instead
	Errors []string `json:"errors,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs the PR analysis pipeline. It owns no working trees
// itself; a fresh repository manager is created per run and torn down
// unconditionally when the run ends.
type Orchestrator struct {
	cfg        *config.Config
	cache      *cache.Cache
	analyzer   *analyzer.Analyzer
	comparator *compare.Comparator
	dual       *index.DualIndexer
	logger     *logrus.Logger
}

// New creates an orchestrator over a shared cache and tool registry
func New(cfg *config.Config, c *cache.Cache, registry *tools.Registry, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		cfg:        cfg,
		cache:      c,
		analyzer:   analyzer.New(registry, c, cfg.Analyzer, logger),
		comparator: compare.New(logger),
		dual:       index.NewDualIndexer(cfg.Index, c),
		logger:     logger,
	}
}

// AnalyzePR runs the full pipeline for one pull request URL. Tool failures
// and timeouts degrade the report to partial; clone and indexing failures are
// fatal and returned as the error beside a failure report. Working trees are
// removed on every code path.
func (o *Orchestrator) AnalyzePR(ctx context.Context, prURL string, opts Options) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		PRURL:     prURL,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
	}()

	owner, name, prNumber, err := repo.ParsePRURL(prURL)
	if err != nil {
		report.Status = models.RunFailure
		return report, err
	}
	report.RepoURL = owner + "/" + name
	report.PRNumber = prNumber
	report.TargetBranch = opts.TargetBranch
	if report.TargetBranch == "" {
		report.TargetBranch = "main"
	}

	log := o.logger.WithFields(logrus.Fields{
		"run":  report.RunID,
		"repo": report.RepoURL,
		"pr":   prNumber,
	})

	comparisonKey := cache.ComparisonKey(report.RepoURL, prNumber)
	if !opts.SkipCache {
		var cached compare.Result
		if o.cache.Get(ctx, comparisonKey, &cached) {
			log.Info("comparison served from cache")
			report.Status = models.RunSuccess
			report.CacheHit = true
			report.Comparison = &cached
			report.PRBranch = cached.PRBranch
			return report, nil
		}
	}

	manager, err := repo.NewManager(o.cfg.Repo, o.logger)
	if err != nil {
		report.Status = models.RunFailure
		return report, err
	}
	defer manager.CleanupAll()

	log.Info("pipeline run started")

	mainTree, prTree, err := manager.PrepareForPR(ctx, report.RepoURL, prNumber, report.TargetBranch)
	if err != nil {
		report.Status = models.RunFailure
		return report, err
	}
	report.PRBranch = prTree.Branch

	dual, err := o.dual.BuildDualIndices(ctx, report.RepoURL, mainTree.Path, prTree.Path, mainTree.Branch, prTree.Branch)
	if err != nil {
		report.Status = models.RunFailure
		return report, err
	}
	report.Diff = &dual.Diff
	report.ImpactScore = dual.ImpactScore

	var mainResult, prResult *analyzer.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var aerr error
		mainResult, aerr = o.analyzer.Analyze(gctx, mainTree, dual.Main, opts.Analyze)
		return aerr
	})
	g.Go(func() error {
		var aerr error
		prResult, aerr = o.analyzer.Analyze(gctx, prTree, dual.PR, opts.Analyze)
		return aerr
	})
	if err := g.Wait(); err != nil {
		report.Status = models.RunFailure
		return report, err
	}

	compareOpts := opts.Compare
	if compareOpts == (compare.Options{}) {
		compareOpts = compare.DefaultOptions(o.cfg.Compare)
	}

	comparison := o.comparator.Compare(mainResult, prResult, dual, compareOpts)
	report.Comparison = comparison

	o.cache.Set(ctx, comparisonKey, comparison)

	report.Errors = collectToolErrors(mainResult, prResult)
	if len(report.Errors) > 0 {
		report.Status = models.RunPartial
	} else {
		report.Status = models.RunSuccess
	}

	log.WithFields(logrus.Fields{
		"status":    report.Status,
		"new":       comparison.Metrics.NewCount,
		"fixed":     comparison.Metrics.FixedCount,
		"unchanged": comparison.Metrics.UnchangedCount,
		"risk":      comparison.Metrics.RiskLevel,
	}).Info("pipeline run complete")
	return report, nil
}

// collectToolErrors gathers per-tool failures and timeouts from both branch
// analyses, prefixed by branch for attribution
func collectToolErrors(results ...*analyzer.Result) []string {
	var errs []string
	for _, r := range results {
		for _, run := range r.ToolRuns {
			if run.Status == models.ToolStatusFailure || run.Status == models.ToolStatusTimeout {
				errs = append(errs, r.Branch+"/"+run.Tool+": "+run.Error)
			}
		}
	}
	return errs
}
