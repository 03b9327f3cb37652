package repo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diffsight/diffsight-go/internal/config"
	"github.com/diffsight/diffsight-go/internal/errors"
)

// WorkingTree is a checkout of one commit of one branch, owned by the
// Manager that created it
type WorkingTree struct {
	RepoURL    string `json:"repo_url"`
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`
	Path       string `json:"path"`
}

// CloneOptions control a single clone operation
type CloneOptions struct {
	Depth        int           // shallow depth; 0 means full history
	SingleBranch bool
	Timeout      time.Duration // 0 means the manager default
}

// Manager clones repositories into isolated temporary working trees and
// guarantees total cleanup of every directory it created, even after partial
// failure.
type Manager struct {
	baseDir      string
	cloneTimeout time.Duration
	fetchTimeout time.Duration
	depth        int
	logger       *logrus.Logger

	mu    sync.Mutex
	trees []string // every temp dir this manager created
}

// NewManager creates a repository manager rooted at one process-owned base
// directory under the configured temp base.
func NewManager(cfg config.RepoConfig, logger *logrus.Logger) (*Manager, error) {
	parent := cfg.TempBaseDir
	if parent == "" {
		parent = os.TempDir()
	}

	baseDir, err := os.MkdirTemp(parent, "diffsight-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp base directory: %w", err)
	}

	cloneTimeout := cfg.CloneTimeout
	if cloneTimeout <= 0 {
		cloneTimeout = 5 * time.Minute
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = time.Minute
	}
	depth := cfg.ShallowDepth
	if depth < 0 {
		depth = 0
	}

	return &Manager{
		baseDir:      baseDir,
		cloneTimeout: cloneTimeout,
		fetchTimeout: fetchTimeout,
		depth:        depth,
		logger:       logger,
	}, nil
}

// Clone clones a repository branch into a fresh temporary directory. On any
// failure the directory is removed before the error is returned.
func (m *Manager) Clone(ctx context.Context, repoURL, branch string, opts CloneOptions) (*WorkingTree, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	dir, err := m.newTreeDir(name)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.cloneTimeout
	}

	args := []string{"clone", "--quiet"}
	if opts.Depth > 0 {
		args = append(args, "--depth", fmt.Sprintf("%d", opts.Depth))
	}
	if opts.SingleBranch {
		args = append(args, "--single-branch")
	}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, CloneURL(owner, name), dir)

	m.logger.WithFields(logrus.Fields{
		"repo":   owner + "/" + name,
		"branch": branch,
		"dir":    dir,
	}).Info("Cloning repository")

	if err := m.runGit(ctx, timeout, "", args...); err != nil {
		m.removeTree(dir)
		return nil, errors.CloneErrorf(err, "clone of %s failed", repoURL)
	}

	hash, err := m.CommitHash(ctx, dir)
	if err != nil {
		m.removeTree(dir)
		return nil, errors.CloneErrorf(err, "failed to resolve HEAD of %s", repoURL)
	}

	return &WorkingTree{
		RepoURL:    repoURL,
		Branch:     branch,
		CommitHash: hash,
		Path:       dir,
	}, nil
}

// PrepareForPR produces two isolated working trees for a pull request: a
// shallow clone of the target branch and an independent clone with the PR
// head ref fetched and checked out as a local branch named pr-<n>.
func (m *Manager) PrepareForPR(ctx context.Context, repoURL string, prNumber int, targetBranch string) (mainTree, prTree *WorkingTree, err error) {
	if prNumber <= 0 {
		return nil, nil, errors.InputErrorf("invalid PR number %d", prNumber)
	}
	if targetBranch == "" {
		targetBranch = "main"
	}

	mainTree, err = m.Clone(ctx, repoURL, targetBranch, CloneOptions{Depth: m.depth, SingleBranch: true})
	if err != nil {
		return nil, nil, err
	}

	prTree, err = m.Clone(ctx, repoURL, targetBranch, CloneOptions{Depth: 0})
	if err != nil {
		m.removeTree(mainTree.Path)
		return nil, nil, err
	}

	prBranch := fmt.Sprintf("pr-%d", prNumber)
	prRef := fmt.Sprintf("pull/%d/head", prNumber)

	if err := m.runGit(ctx, m.fetchTimeout, prTree.Path, "fetch", "--quiet", "origin", prRef+":"+prBranch); err != nil {
		m.removeTree(mainTree.Path)
		m.removeTree(prTree.Path)
		return nil, nil, errors.CloneErrorf(err, "failed to fetch PR ref %s", prRef)
	}
	if err := m.Checkout(ctx, prTree, prBranch); err != nil {
		m.removeTree(mainTree.Path)
		m.removeTree(prTree.Path)
		return nil, nil, err
	}

	hash, err := m.CommitHash(ctx, prTree.Path)
	if err != nil {
		m.removeTree(mainTree.Path)
		m.removeTree(prTree.Path)
		return nil, nil, errors.CloneErrorf(err, "failed to resolve PR HEAD")
	}
	prTree.Branch = prBranch
	prTree.CommitHash = hash

	return mainTree, prTree, nil
}

// Checkout switches a working tree to the named branch
func (m *Manager) Checkout(ctx context.Context, tree *WorkingTree, branch string) error {
	if err := m.runGit(ctx, m.fetchTimeout, tree.Path, "checkout", "--quiet", branch); err != nil {
		return errors.CloneErrorf(err, "checkout of %s failed", branch)
	}
	tree.Branch = branch

	hash, err := m.CommitHash(ctx, tree.Path)
	if err != nil {
		return errors.CloneErrorf(err, "failed to resolve HEAD after checkout")
	}
	tree.CommitHash = hash
	return nil
}

// GetChangedFiles lists paths changed between two revisions via native
// diff-by-name
func (m *Manager) GetChangedFiles(ctx context.Context, tree *WorkingTree, base, head string) ([]string, error) {
	out, err := m.runGitOutput(ctx, m.fetchTimeout, tree.Path, "diff", "--name-only", base, head)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", base, head, err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CommitHash resolves HEAD of the working tree at path
func (m *Manager) CommitHash(ctx context.Context, path string) (string, error) {
	out, err := m.runGitOutput(ctx, m.fetchTimeout, path, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CleanupAll removes every temporary directory this manager created
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	trees := make([]string, len(m.trees))
	copy(trees, m.trees)
	m.trees = m.trees[:0]
	m.mu.Unlock()

	for _, dir := range trees {
		if err := os.RemoveAll(dir); err != nil {
			m.logger.WithError(err).WithField("dir", dir).Warn("Failed to remove working tree")
		}
	}
	if err := os.RemoveAll(m.baseDir); err != nil {
		m.logger.WithError(err).WithField("dir", m.baseDir).Warn("Failed to remove temp base")
	}
}

// newTreeDir allocates a unique empty directory and records it for cleanup
func (m *Manager) newTreeDir(hint string) (string, error) {
	dir, err := os.MkdirTemp(m.baseDir, hint+"-")
	if err != nil {
		return "", errors.CloneErrorf(err, "failed to create working-tree directory")
	}

	// git clone refuses non-empty targets; MkdirTemp guarantees empty, but a
	// stale entry would be an internal bug worth surfacing
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		os.RemoveAll(dir)
		return "", errors.InternalErrorf("working-tree directory %s not empty", dir)
	}

	m.mu.Lock()
	m.trees = append(m.trees, dir)
	m.mu.Unlock()
	return dir, nil
}

func (m *Manager) removeTree(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.WithError(err).WithField("dir", dir).Warn("Failed to roll back working tree")
	}

	m.mu.Lock()
	for i, t := range m.trees {
		if t == dir {
			m.trees = append(m.trees[:i], m.trees[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

func (m *Manager) runGit(ctx context.Context, timeout time.Duration, dir string, args ...string) error {
	_, err := m.runGitOutput(ctx, timeout, dir, args...)
	return err
}

func (m *Manager) runGitOutput(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never prompt for credentials inside the pipeline
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.Output()
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// BaseDir exposes the process-owned temp base, mainly for tests
func (m *Manager) BaseDir() string {
	return m.baseDir
}
