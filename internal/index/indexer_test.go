package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffsight/diffsight-go/internal/cache"
	"github.com/diffsight/diffsight-go/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func testIndexer() *Indexer {
	return NewIndexer(config.IndexConfig{MaxFileSize: 1024 * 1024}, cache.NewInert())
}

func TestBuildIndexBasics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "lib/util.py", "def util():\n    return 1\n")
	writeFile(t, root, "README.md", "# readme\n")

	idx, err := testIndexer().BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Stats.FileCount)
	assert.Equal(t, UnknownCommit, idx.CommitHash)

	meta := idx.Files["main.go"]
	require.NotNil(t, meta)
	assert.Equal(t, "Go", meta.Language)
	assert.Equal(t, 3, meta.LineCount)
	assert.NotEmpty(t, meta.ContentHash)

	// Membership, hash map, and lookup maps must stay consistent
	for path, m := range idx.Files {
		assert.Equal(t, m.ContentHash, idx.Hashes[path])
		assert.Contains(t, idx.ByExtension[m.Extension], path)
		assert.Contains(t, idx.ByLanguage[m.Language], path)
	}
	assert.Len(t, idx.Hashes, len(idx.Files))
}

func TestBuildIndexSkipsBlockedAndHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.go", "package app\n")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")
	writeFile(t, root, "vendor/lib.go", "package lib\n")
	writeFile(t, root, ".hidden/secret.go", "package secret\n")
	writeFile(t, root, ".dotfile.go", "package dot\n")
	writeFile(t, root, "notes.txt", "unsupported extension\n")

	idx, err := testIndexer().BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)

	assert.Equal(t, []string{"src/app.go"}, idx.Paths())
}

func TestBuildIndexSizeCapBoundary(t *testing.T) {
	root := t.TempDir()
	atCap := strings.Repeat("a", 100)
	overCap := strings.Repeat("b", 101)
	writeFile(t, root, "at_cap.go", atCap)
	writeFile(t, root, "over_cap.go", overCap)

	ix := NewIndexer(config.IndexConfig{MaxFileSize: 100}, cache.NewInert())
	idx, err := ix.BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)

	assert.True(t, idx.Has("at_cap.go"), "file exactly at the cap is indexed")
	assert.False(t, idx.Has("over_cap.go"), "one byte over the cap is skipped")
}

func TestBuildIndexDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b/c.go", "package c\n")

	ix := testIndexer()
	first, err := ix.BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)
	second, err := ix.BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)

	assert.Equal(t, first.Paths(), second.Paths())
	for _, p := range first.Paths() {
		assert.Equal(t, first.Hashes[p], second.Hashes[p])
		assert.Equal(t, first.Files[p].LineCount, second.Files[p].LineCount)
	}
}

func TestBuildIndexInlineContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package small\n")

	ix := NewIndexer(config.IndexConfig{MaxFileSize: 1024, InlineContentLimit: 1024}, cache.NewInert())
	idx, err := ix.BuildIndex(context.Background(), root, "acme/widgets", "main")
	require.NoError(t, err)

	assert.Equal(t, "package small\n", idx.Files["small.go"].Content)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 1, countLines([]byte("no trailing newline")))
	assert.Equal(t, 1, countLines([]byte("one line\n")))
	assert.Equal(t, 3, countLines([]byte("a\nb\nc\n")))
	assert.Equal(t, 3, countLines([]byte("a\nb\nc")))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "Go", DetectLanguage("x/y/z.go", nil))
	assert.Equal(t, "Python", DetectLanguage("a.py", nil))
	assert.Equal(t, "Rust", DetectLanguage("lib.rs", nil))
}
