package index

import (
	"sort"
	"time"
)

// FileMetadata is the per-file record of a repository index, keyed by
// relative path within the working tree
type FileMetadata struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	LineCount   int       `json:"line_count"`
	ContentHash string    `json:"content_hash"`
	Extension   string    `json:"extension"`
	Language    string    `json:"language"`
	ModTime     time.Time `json:"mod_time"`
	Content     string    `json:"content,omitempty"` // inline for small files only
}

// IndexStats aggregates counters over one index
type IndexStats struct {
	FileCount      int            `json:"file_count"`
	TotalLines     int            `json:"total_lines"`
	TotalBytes     int64          `json:"total_bytes"`
	LanguageCounts map[string]int `json:"language_counts"`
	BuildDuration  time.Duration  `json:"build_duration"`
}

// RepoIndex is the enumerated, metadata-tagged view of one working tree.
// Invariant: every path in Files has exactly one metadata entry and exactly
// one entry in Hashes; ByExtension and ByLanguage are derived from the
// metadata and kept consistent for O(1) lookup.
type RepoIndex struct {
	RepoURL    string    `json:"repo_url"`
	Branch     string    `json:"branch"`
	CommitHash string    `json:"commit_hash"`
	IndexedAt  time.Time `json:"indexed_at"`

	Files       map[string]*FileMetadata `json:"files"`
	Hashes      map[string]string        `json:"hashes"`
	ByExtension map[string][]string      `json:"by_extension"`
	ByLanguage  map[string][]string      `json:"by_language"`

	Stats IndexStats `json:"stats"`
}

// Paths returns the membership set in sorted order. Components that need a
// stable iteration order go through this instead of ranging over Files.
func (idx *RepoIndex) Paths() []string {
	paths := make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports membership of a relative path
func (idx *RepoIndex) Has(path string) bool {
	_, ok := idx.Files[path]
	return ok
}

// DiffStatus classifies a path in the branch diff
type DiffStatus string

const (
	DiffAdded     DiffStatus = "added"
	DiffRemoved   DiffStatus = "removed"
	DiffModified  DiffStatus = "modified"
	DiffUnchanged DiffStatus = "unchanged"
	DiffMoved     DiffStatus = "moved"
)

// BranchDiff partitions paths across two indices. The five sets are
// disjoint; a path that took part in a move appears only in Moved.
type BranchDiff struct {
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	Modified  []string          `json:"modified"`
	Unchanged []string          `json:"unchanged"`
	Moved     map[string]string `json:"moved"` // main path -> PR path

	AddedLines        int `json:"added_lines"`
	RemovedLines      int `json:"removed_lines"`
	ModifiedFileCount int `json:"modified_file_count"`
	TotalChanges      int `json:"total_changes"`
}

// CrossReference records the cross-branch status of one path. Moved pairs
// carry both paths and are keyed under both source and destination.
type CrossReference struct {
	MainPath   string     `json:"main_path,omitempty"`
	PRPath     string     `json:"pr_path,omitempty"`
	Status     DiffStatus `json:"status"`
	Similarity int        `json:"similarity,omitempty"`
}

// DualIndices bundles both branch indices with the derived diff and
// cross-reference
type DualIndices struct {
	Main *RepoIndex `json:"main"`
	PR   *RepoIndex `json:"pr"`

	Diff        BranchDiff                 `json:"diff"`
	CrossRefs   map[string]*CrossReference `json:"cross_refs"`
	ImpactScore float64                    `json:"impact_score"`
}

// MoveSource returns the main-side origin for a PR path recorded as a move
// destination, or "" when the path is not one
func (d *DualIndices) MoveSource(prPath string) string {
	ref, ok := d.CrossRefs[prPath]
	if !ok || ref.Status != DiffMoved {
		return ""
	}
	if ref.PRPath != prPath {
		return ""
	}
	return ref.MainPath
}
