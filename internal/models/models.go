package models

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Severity levels for tool issues, ordered from most to least severe
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity maps arbitrary tool severity strings onto the canonical
// scale. Anything unrecognized becomes low.
func NormalizeSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "blocker", "fatal":
		return SeverityCritical
	case "high", "error", "major":
		return SeverityHigh
	case "medium", "warning", "moderate", "warn":
		return SeverityMedium
	case "low", "minor", "note":
		return SeverityLow
	case "info", "informational", "style", "hint":
		return SeverityInfo
	default:
		return SeverityLow
	}
}

// Category classifies what aspect of the code an issue concerns
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryQuality      Category = "quality"
	CategoryPerformance  Category = "performance"
	CategoryDependency   Category = "dependency"
	CategoryArchitecture Category = "architecture"
)

// ToolIssue is the canonical issue record every adapter normalizes into.
// It is immutable after creation; the comparator wraps it rather than
// mutating it.
type ToolIssue struct {
	ID          string   `json:"id"`
	Fingerprint string   `json:"fingerprint"`
	Tool        string   `json:"tool"`
	ToolVersion string   `json:"tool_version,omitempty"`
	RuleID      string   `json:"rule_id"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line,omitempty"`
	StartColumn int      `json:"start_column,omitempty"`
	EndColumn   int      `json:"end_column,omitempty"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	CodeSnippet string   `json:"code_snippet,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	DocURL      string   `json:"doc_url,omitempty"`
	Confidence  float64  `json:"confidence"`
	Tags        []string `json:"tags,omitempty"`
}

// ComputeFingerprint derives the intra-branch deduplication digest from the
// issue's identifying fields. The message is normalized (lowercased,
// non-alphanumerics stripped, truncated to 50 chars) so cosmetic rewording
// does not split duplicates. The fingerprint deliberately includes the file
// and line, so it cannot survive file moves or line shifts; cross-branch
// matching never relies on it.
func (i *ToolIssue) ComputeFingerprint() string {
	var b strings.Builder
	b.WriteString(i.Tool)
	b.WriteByte('|')
	b.WriteString(i.RuleID)
	b.WriteByte('|')
	b.WriteString(i.File)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(i.StartLine))
	b.WriteByte('|')
	b.WriteString(normalizeMessage(i.Message))

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizeMessage(msg string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(msg) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if runes := []rune(s); len(runes) > 50 {
		s = string(runes[:50])
	}
	return s
}

// IssueStatus is attached by the comparator after cross-branch matching
type IssueStatus string

const (
	StatusNew       IssueStatus = "new"
	StatusFixed     IssueStatus = "fixed"
	StatusUnchanged IssueStatus = "unchanged"
)

// Impact describes how a new issue affects the PR
type Impact string

const (
	ImpactBreaking  Impact = "breaking"
	ImpactDegrading Impact = "degrading"
	ImpactMinor     Impact = "minor"
)

// EnhancedIssue wraps a classified tool issue with comparator-derived fields.
// Constructed once by the comparator and immutable thereafter.
type EnhancedIssue struct {
	ToolIssue

	Status          IssueStatus `json:"status"`
	MatchConfidence int         `json:"match_confidence,omitempty"`
	MatchType       string      `json:"match_type,omitempty"`

	// Populated for new issues
	Impact         Impact `json:"impact,omitempty"`
	RequiresAction bool   `json:"requires_action,omitempty"`
	BlocksPR       bool   `json:"blocks_pr,omitempty"`

	// Populated for fixed issues
	FixQuality  string  `json:"fix_quality,omitempty"`
	CreditScore float64 `json:"credit_score,omitempty"`

	// Populated for unchanged issues
	OccurrenceCount int `json:"occurrence_count,omitempty"`

	Priority        int    `json:"priority"`
	EstimatedEffort string `json:"estimated_effort"`
}

// ToolStatus records the outcome of one adapter invocation
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusFailure ToolStatus = "failure"
	ToolStatusTimeout ToolStatus = "timeout"
	ToolStatusSkipped ToolStatus = "skipped"
)

// ToolRun is the per-tool metadata attached to a branch analysis
type ToolRun struct {
	Tool       string        `json:"tool"`
	Status     ToolStatus    `json:"status"`
	IssueCount int           `json:"issue_count"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// RunStatus summarizes an end-to-end pipeline run
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailure RunStatus = "failure"
)
