package index

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/errors"
)

// dualCacheTTL bounds staleness of a cached dual-index pair
const dualCacheTTL = 30 * time.Minute

// DualIndexer builds both branch indices and derives the branch diff
type DualIndexer struct {
	indexer *Indexer
	cache   *cache.Cache
	cfg     config.IndexConfig
	logger  *slog.Logger
}

// NewDualIndexer creates a dual-branch indexer on top of a file indexer
func NewDualIndexer(cfg config.IndexConfig, c *cache.Cache) *DualIndexer {
	return &DualIndexer{
		indexer: NewIndexer(cfg, c),
		cache:   c,
		cfg:     cfg,
		logger:  slog.Default().With("component", "dual-indexer"),
	}
}

// BuildDualIndices indexes both working trees (in parallel unless configured
// sequential) and computes the branch diff, cross-reference, and impact
// score. Failure of either index aborts the operation; partial results are
// never returned.
func (di *DualIndexer) BuildDualIndices(ctx context.Context, repoURL, mainPath, prPath, mainBranch, prBranch string) (*DualIndices, error) {
	key := cache.RepoKey(repoURL, mainBranch+"-vs-"+prBranch)

	mainHead := resolveHead(mainPath)
	prHead := resolveHead(prPath)
	if mainHead != UnknownCommit && prHead != UnknownCommit {
		var cached DualIndices
		if di.cache.Get(ctx, key, &cached) &&
			cached.Main != nil && cached.Main.CommitHash == mainHead &&
			cached.PR != nil && cached.PR.CommitHash == prHead {
			di.logger.Debug("dual-index cache hit", "repo", repoURL)
			return &cached, nil
		}
	}

	var mainIdx, prIdx *RepoIndex

	if di.cfg.Sequential {
		var err error
		if mainIdx, err = di.indexer.BuildIndex(ctx, mainPath, repoURL, mainBranch); err != nil {
			return nil, err
		}
		if prIdx, err = di.indexer.BuildIndex(ctx, prPath, repoURL, prBranch); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			mainIdx, err = di.indexer.BuildIndex(gctx, mainPath, repoURL, mainBranch)
			return err
		})
		g.Go(func() error {
			var err error
			prIdx, err = di.indexer.BuildIndex(gctx, prPath, repoURL, prBranch)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	dual, err := ComputeDual(mainIdx, prIdx)
	if err != nil {
		return nil, err
	}

	if mainHead != UnknownCommit && prHead != UnknownCommit {
		di.cache.SetWithTTL(ctx, key, dual, dualCacheTTL)
	}

	di.logger.Info("dual indices built",
		"repo", repoURL,
		"added", len(dual.Diff.Added),
		"removed", len(dual.Diff.Removed),
		"modified", len(dual.Diff.Modified),
		"moved", len(dual.Diff.Moved),
		"impact", dual.ImpactScore)
	return dual, nil
}

// ComputeDual derives the branch diff and cross-reference from two built
// indices. Exposed separately so the comparator tests can construct dual
// indices without a filesystem.
func ComputeDual(mainIdx, prIdx *RepoIndex) (*DualIndices, error) {
	diff, crossRefs, err := computeDiff(mainIdx, prIdx)
	if err != nil {
		return nil, err
	}

	return &DualIndices{
		Main:        mainIdx,
		PR:          prIdx,
		Diff:        diff,
		CrossRefs:   crossRefs,
		ImpactScore: impactScore(diff, mainIdx.Stats.FileCount, prIdx.Stats.FileCount),
	}, nil
}

// computeDiff partitions every path into exactly one of added, removed,
// modified, unchanged, or a moved pair. Move detection runs before
// add/remove classification: a PR path absent in main whose content hash
// appears at a vanished main path is a move, and the main path is consumed so
// it cannot also count as removed. When several main paths share a hash, the
// lexicographically first unconsumed candidate wins.
func computeDiff(mainIdx, prIdx *RepoIndex) (BranchDiff, map[string]*CrossReference, error) {
	diff := BranchDiff{Moved: make(map[string]string)}
	crossRefs := make(map[string]*CrossReference)

	hashToMain := make(map[string][]string)
	for _, p := range mainIdx.Paths() {
		h := mainIdx.Hashes[p]
		hashToMain[h] = append(hashToMain[h], p)
	}
	// Paths() is sorted, so each candidate list is already in lexical order

	consumed := make(map[string]bool) // main paths claimed as move sources

	for _, p := range prIdx.Paths() {
		prMeta := prIdx.Files[p]

		if !mainIdx.Has(p) {
			if src := findMoveSource(hashToMain[prMeta.ContentHash], consumed, prIdx); src != "" {
				consumed[src] = true
				diff.Moved[src] = p

				ref := &CrossReference{MainPath: src, PRPath: p, Status: DiffMoved, Similarity: 100}
				if err := putRef(crossRefs, src, ref); err != nil {
					return diff, nil, err
				}
				if err := putRef(crossRefs, p, ref); err != nil {
					return diff, nil, err
				}
				continue
			}

			diff.Added = append(diff.Added, p)
			diff.AddedLines += prMeta.LineCount
			if err := putRef(crossRefs, p, &CrossReference{PRPath: p, Status: DiffAdded}); err != nil {
				return diff, nil, err
			}
			continue
		}

		mainMeta := mainIdx.Files[p]
		if mainMeta.ContentHash == prMeta.ContentHash {
			diff.Unchanged = append(diff.Unchanged, p)
			if err := putRef(crossRefs, p, &CrossReference{MainPath: p, PRPath: p, Status: DiffUnchanged}); err != nil {
				return diff, nil, err
			}
			continue
		}

		diff.Modified = append(diff.Modified, p)
		diff.ModifiedFileCount++
		if delta := prMeta.LineCount - mainMeta.LineCount; delta > 0 {
			diff.AddedLines += delta
		} else {
			diff.RemovedLines -= delta
		}
		if err := putRef(crossRefs, p, &CrossReference{MainPath: p, PRPath: p, Status: DiffModified}); err != nil {
			return diff, nil, err
		}
	}

	for _, p := range mainIdx.Paths() {
		if prIdx.Has(p) || consumed[p] {
			continue
		}
		diff.Removed = append(diff.Removed, p)
		diff.RemovedLines += mainIdx.Files[p].LineCount
		if err := putRef(crossRefs, p, &CrossReference{MainPath: p, Status: DiffRemoved}); err != nil {
			return diff, nil, err
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	sort.Strings(diff.Unchanged)
	diff.TotalChanges = len(diff.Added) + len(diff.Removed) + len(diff.Modified) + len(diff.Moved)

	return diff, crossRefs, nil
}

// findMoveSource returns the first unconsumed main path with the candidate
// hash that is not also present in the PR tree, or ""
func findMoveSource(candidates []string, consumed map[string]bool, prIdx *RepoIndex) string {
	for _, cand := range candidates {
		if !consumed[cand] && !prIdx.Has(cand) {
			return cand
		}
	}
	return ""
}

// putRef inserts a cross-reference, failing on a conflicting status for the
// same path. A conflict is an invariant violation and fatal.
func putRef(crossRefs map[string]*CrossReference, path string, ref *CrossReference) error {
	if existing, ok := crossRefs[path]; ok {
		if existing == ref {
			return nil
		}
		return errors.InternalErrorf("path %s classified as both %s and %s", path, existing.Status, ref.Status)
	}
	crossRefs[path] = ref
	return nil
}

// impactScore summarizes the magnitude of structural change on a 0-100 scale
func impactScore(diff BranchDiff, mainFiles, prFiles int) float64 {
	weighted := 0.3*float64(len(diff.Added)) +
		0.5*float64(len(diff.Removed)) +
		0.4*float64(len(diff.Modified)) +
		0.1*float64(len(diff.Moved))

	denom := float64(mainFiles + prFiles)
	if denom < 1 {
		denom = 1
	}
	return math.Min(100, 100*weighted/denom)
}
