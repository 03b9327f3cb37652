package index

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/errors"
)

// UnknownCommit is the sentinel recorded when a working tree has no usable
// git metadata. It disables cache validity checks for that index.
const UnknownCommit = "unknown"

// indexCacheTTL bounds how long a cached index is served without rebuild
const indexCacheTTL = time.Hour

// skipDirs are directory names never descended into during the walk
var skipDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "dist": true, "build": true,
	"target": true, "out": true, ".git": true, ".svn": true, ".hg": true,
	"vendor": true, "venv": true, ".venv": true, "coverage": true,
	".idea": true, ".vscode": true, "bower_components": true,
}

// Indexer walks a working tree and produces a repository index
type Indexer struct {
	cfg    config.IndexConfig
	cache  *cache.Cache
	logger *slog.Logger
}

// NewIndexer creates a file indexer
func NewIndexer(cfg config.IndexConfig, c *cache.Cache) *Indexer {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1024 * 1024
	}
	return &Indexer{
		cfg:    cfg,
		cache:  c,
		logger: slog.Default().With("component", "indexer"),
	}
}

// BuildIndex walks the working tree at treePath and produces its index.
// A cached index is returned when its commit hash matches the tree's current
// HEAD; trees without git metadata always rebuild.
func (ix *Indexer) BuildIndex(ctx context.Context, treePath, repoURL, branch string) (*RepoIndex, error) {
	head := resolveHead(treePath)

	key := cache.RepoKey(repoURL, branch)
	if head != UnknownCommit {
		var cached RepoIndex
		if ix.cache.Get(ctx, key, &cached) && cached.CommitHash == head {
			ix.logger.Debug("index cache hit", "repo", repoURL, "branch", branch, "commit", head)
			return &cached, nil
		}
	}

	start := time.Now()
	idx := &RepoIndex{
		RepoURL:     repoURL,
		Branch:      branch,
		CommitHash:  head,
		IndexedAt:   start,
		Files:       make(map[string]*FileMetadata),
		Hashes:      make(map[string]string),
		ByExtension: make(map[string][]string),
		ByLanguage:  make(map[string][]string),
		Stats:       IndexStats{LanguageCounts: make(map[string]int)},
	}

	walkErr := filepath.WalkDir(treePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, never fatal
			ix.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != treePath && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !IsSupportedExtension(name) {
			return nil
		}

		rel, relErr := filepath.Rel(treePath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		meta, fileErr := ix.indexFile(path, rel)
		if fileErr != nil {
			ix.logger.Warn("skipping file", "path", rel, "error", fileErr)
			return nil
		}
		if meta == nil {
			return nil // over the size cap
		}

		idx.Files[rel] = meta
		idx.Hashes[rel] = meta.ContentHash
		idx.ByExtension[meta.Extension] = append(idx.ByExtension[meta.Extension], rel)
		idx.ByLanguage[meta.Language] = append(idx.ByLanguage[meta.Language], rel)

		idx.Stats.FileCount++
		idx.Stats.TotalLines += meta.LineCount
		idx.Stats.TotalBytes += meta.Size
		idx.Stats.LanguageCounts[meta.Language]++
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(walkErr, errors.ErrorTypeIndexing, errors.SeverityCritical, "index walk failed")
	}

	idx.Stats.BuildDuration = time.Since(start)

	if head != UnknownCommit {
		ix.cache.SetWithTTL(ctx, key, idx, indexCacheTTL)
	}

	ix.logger.Info("index built",
		"repo", repoURL,
		"branch", branch,
		"files", idx.Stats.FileCount,
		"lines", idx.Stats.TotalLines,
		"duration", idx.Stats.BuildDuration)
	return idx, nil
}

// indexFile stats, reads, hashes, and classifies one file. Returns (nil, nil)
// for files over the size cap.
func (ix *Indexer) indexFile(absPath, relPath string) (*FileMetadata, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if info.Size() > ix.cfg.MaxFileSize {
		return nil, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(data)

	meta := &FileMetadata{
		Path:        relPath,
		Size:        info.Size(),
		LineCount:   countLines(data),
		ContentHash: hex.EncodeToString(sum[:]),
		Extension:   strings.ToLower(filepath.Ext(relPath)),
		Language:    DetectLanguage(relPath, data),
		ModTime:     info.ModTime(),
	}
	if ix.cfg.InlineContentLimit > 0 && info.Size() <= ix.cfg.InlineContentLimit {
		meta.Content = string(data)
	}
	return meta, nil
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// resolveHead returns the HEAD commit of the tree, or UnknownCommit when git
// metadata is missing or unreadable
func resolveHead(treePath string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = treePath
	out, err := cmd.Output()
	if err != nil {
		return UnknownCommit
	}
	head := strings.TrimSpace(string(out))
	if head == "" {
		return UnknownCommit
	}
	return head
}
