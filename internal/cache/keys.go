package cache

import (
	"strconv"
	"strings"
)

// Kind is the artifact type a cache key addresses. The kind picks the TTL.
type Kind string

const (
	KindBranch     Kind = "branch"
	KindTool       Kind = "tool"
	KindComparison Kind = "comparison"
	KindFile       Kind = "file"
	KindRepo       Kind = "repo"
	KindIssues     Kind = "issues"
	KindContext    Kind = "context"
	KindChat       Kind = "chat"
)

// keyPrefix namespaces every diffsight key in the shared store
const keyPrefix = "diffsight"

// Key identifies one cached artifact. Optional parts are empty strings and
// are omitted from the rendered key.
type Key struct {
	Kind       Kind
	Repo       string // normalized repo, see NormalizeRepoURL
	Branch     string
	Tool       string
	PRNumber   string
	HashPrefix string
}

// String renders the colon-joined key. Every user-supplied part is sanitized
// to [A-Za-z0-9_-] first so a hostile branch name cannot escape its segment.
func (k Key) String() string {
	parts := []string{keyPrefix, string(k.Kind), k.Repo}
	for _, optional := range []string{k.Branch, k.Tool, k.PRNumber, k.HashPrefix} {
		if optional != "" {
			parts = append(parts, sanitizeKeyPart(optional))
		}
	}
	return strings.Join(parts, ":")
}

// BranchKey builds a key for a branch analysis result. The commit hash is
// deliberately not part of the key; the short TTL bounds staleness when the
// branch pointer moves.
func BranchKey(repoURL, branch string) Key {
	return Key{Kind: KindBranch, Repo: NormalizeRepoURL(repoURL), Branch: branch}
}

// ToolKey builds a key for a single tool's result on one branch commit
func ToolKey(repoURL, branch, tool, hashPrefix string) Key {
	return Key{Kind: KindTool, Repo: NormalizeRepoURL(repoURL), Branch: branch, Tool: tool, HashPrefix: hashPrefix}
}

// ComparisonKey builds a key for a PR comparison result
func ComparisonKey(repoURL string, prNumber int) Key {
	return Key{Kind: KindComparison, Repo: NormalizeRepoURL(repoURL), PRNumber: strconv.Itoa(prNumber)}
}

// FileKey builds a key for cached file content
func FileKey(repoURL, hashPrefix string) Key {
	return Key{Kind: KindFile, Repo: NormalizeRepoURL(repoURL), HashPrefix: hashPrefix}
}

// RepoKey builds a key for repository metadata (including indices)
func RepoKey(repoURL, branch string) Key {
	return Key{Kind: KindRepo, Repo: NormalizeRepoURL(repoURL), Branch: branch}
}

// RepoPrefix returns the scan pattern matching every key for a repository,
// across all kinds. Used by InvalidateRepo.
func RepoPrefix(repoURL string) string {
	return keyPrefix + ":*:" + NormalizeRepoURL(repoURL) + "*"
}

// NormalizeRepoURL canonicalizes a repository URL for use as a key segment:
// lowercase, scheme and .git suffix stripped, path separators replaced so the
// result stays within one colon-delimited segment.
func NormalizeRepoURL(repoURL string) string {
	s := strings.ToLower(strings.TrimSpace(repoURL))
	for _, scheme := range []string{"https://", "http://", "git://", "ssh://"} {
		s = strings.TrimPrefix(s, scheme)
	}
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimSuffix(s, "/")
	s = strings.ReplaceAll(s, "/", ":")

	return sanitizeRepoSegment(s)
}

// sanitizeRepoSegment keeps colons (segment separators within the repo part)
// but scrubs everything else to [A-Za-z0-9_.-]
func sanitizeRepoSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// sanitizeKeyPart scrubs a single key segment to [A-Za-z0-9_-]
func sanitizeKeyPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
