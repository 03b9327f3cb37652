// Package matcher decides whether two issues from different branch analyses
// are the same underlying finding. Strategies are layered from strict to
// fuzzy; the first that succeeds wins, and a weaker strategy can never
// report higher confidence than the one above it.
package matcher

import (
	"math"
	"strings"

	"github.com/diffsight/diffsight-go/internal/models"
)

// Matching constants. These are deliberately fixed rather than configurable;
// the tests lock them in place.
const (
	// MaxLineShift is the largest line delta the line-shift strategy accepts
	MaxLineShift = 10

	// ContentSimilarityThreshold gates the content strategy
	ContentSimilarityThreshold = 0.80

	// FuzzyScoreThreshold gates the weighted fuzzy strategy
	FuzzyScoreThreshold = 0.60

	// MoveMessageSimilarityThreshold gates the file-move variant when
	// messages are not identical
	MoveMessageSimilarityThreshold = 0.70
)

// Fuzzy strategy weights
const (
	fuzzyRuleWeight     = 0.3
	fuzzyCategoryWeight = 0.2
	fuzzySeverityWeight = 0.1
	fuzzyMessageWeight  = 0.4
)

// MatchType names the strategy that produced a match
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchLineShift MatchType = "line-shift"
	MatchContent   MatchType = "content"
	MatchFuzzy     MatchType = "fuzzy"
	MatchMoved     MatchType = "moved"
)

// Result reports the outcome of matching two issues
type Result struct {
	IsMatch    bool      `json:"is_match"`
	Confidence int       `json:"confidence"` // 0-100
	Type       MatchType `json:"type,omitempty"`
}

var noMatch = Result{}

// Match compares two issues with the layered strategy chain:
// exact, line-shift, content, fuzzy. Matching is symmetric and
// deterministic.
func Match(a, b *models.ToolIssue) Result {
	if r := matchExact(a, b); r.IsMatch {
		return r
	}
	if r := matchLineShift(a, b); r.IsMatch {
		return r
	}
	if r := matchContent(a, b); r.IsMatch {
		return r
	}
	return matchFuzzy(a, b)
}

// MatchWithFileMovement handles the case where the cross-reference recorded
// a move from oldPath to newPath. Rule identity plus message agreement is
// enough; line numbers are ignored because moves routinely reflow them.
func MatchWithFileMovement(a, b *models.ToolIssue, oldPath, newPath string) Result {
	if a.File != oldPath || b.File != newPath {
		return noMatch
	}
	if a.RuleID != b.RuleID {
		return noMatch
	}

	if a.Message == b.Message {
		return Result{IsMatch: true, Confidence: 95, Type: MatchMoved}
	}
	if MessageSimilarity(a.Message, b.Message) >= MoveMessageSimilarityThreshold {
		return Result{IsMatch: true, Confidence: 80, Type: MatchMoved}
	}
	return noMatch
}

func matchExact(a, b *models.ToolIssue) Result {
	if a.File == b.File && a.StartLine == b.StartLine && a.RuleID == b.RuleID {
		return Result{IsMatch: true, Confidence: 100, Type: MatchExact}
	}
	return noMatch
}

func matchLineShift(a, b *models.ToolIssue) Result {
	if a.File != b.File || a.RuleID != b.RuleID {
		return noMatch
	}

	shift := a.StartLine - b.StartLine
	if shift < 0 {
		shift = -shift
	}
	if shift > MaxLineShift {
		return noMatch
	}
	return Result{IsMatch: true, Confidence: 90 - 2*shift, Type: MatchLineShift}
}

func matchContent(a, b *models.ToolIssue) Result {
	if a.RuleID != b.RuleID || a.Category != b.Category {
		return noMatch
	}

	if a.CodeSnippet != "" && b.CodeSnippet != "" {
		if sim := CodeSimilarity(a.CodeSnippet, b.CodeSnippet); sim >= ContentSimilarityThreshold {
			return Result{IsMatch: true, Confidence: roundScore(sim * 80), Type: MatchContent}
		}
	}

	if sim := MessageSimilarity(a.Message, b.Message); sim >= ContentSimilarityThreshold {
		return Result{IsMatch: true, Confidence: roundScore(sim * 70), Type: MatchContent}
	}
	return noMatch
}

func matchFuzzy(a, b *models.ToolIssue) Result {
	score := 0.0
	if a.RuleID == b.RuleID {
		score += fuzzyRuleWeight
	}
	if a.Category == b.Category {
		score += fuzzyCategoryWeight
	}
	if a.Severity == b.Severity {
		score += fuzzySeverityWeight
	}
	score += fuzzyMessageWeight * MessageSimilarity(a.Message, b.Message)

	if score < FuzzyScoreThreshold {
		return noMatch
	}
	return Result{IsMatch: true, Confidence: roundScore(score * 60), Type: MatchFuzzy}
}

// MessageSimilarity is the word-overlap similarity of two messages:
// lower-cased whitespace tokens, |intersection| / max(|A|, |B|).
func MessageSimilarity(a, b string) float64 {
	tokensA := strings.Fields(strings.ToLower(a))
	tokensB := strings.Fields(strings.ToLower(b))
	return tokenOverlap(tokensA, tokensB)
}

// CodeSimilarity is the token-overlap similarity of two snippets after
// whitespace normalization and stripping of {()} punctuation
func CodeSimilarity(a, b string) float64 {
	return tokenOverlap(codeTokens(a), codeTokens(b))
}

func codeTokens(code string) []string {
	normalized := strings.ToLower(code)
	normalized = strings.NewReplacer("{", "", "}", "", "(", "", ")", "").Replace(normalized)
	return strings.Fields(normalized)
}

func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(intersection) / float64(larger)
}

func roundScore(v float64) int {
	return int(math.Round(v))
}
