package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diffsight/diffsight-go/internal/models"
)

func issue(file string, line int, rule, message string) *models.ToolIssue {
	return &models.ToolIssue{
		Tool:      "linty",
		RuleID:    rule,
		Category:  models.CategoryQuality,
		Severity:  models.SeverityMedium,
		File:      file,
		StartLine: line,
		Message:   message,
	}
}

func TestExactMatch(t *testing.T) {
	a := issue("src/a.go", 10, "R-1", "unused variable x")
	b := issue("src/a.go", 10, "R-1", "unused variable x renamed in message")

	r := Match(a, b)
	assert.True(t, r.IsMatch)
	assert.Equal(t, 100, r.Confidence)
	assert.Equal(t, MatchExact, r.Type)
}

func TestLineShiftMatch(t *testing.T) {
	a := issue("src/a.go", 12, "R-9", "some message")
	b := issue("src/a.go", 14, "R-9", "some message")

	r := Match(a, b)
	assert.True(t, r.IsMatch)
	assert.Equal(t, 86, r.Confidence) // 90 - 2*2
	assert.Equal(t, MatchLineShift, r.Type)
}

func TestLineShiftBoundary(t *testing.T) {
	base := issue("src/a.go", 100, "R-1", "m")

	at := issue("src/a.go", 110, "R-1", "m")
	r := Match(base, at)
	assert.True(t, r.IsMatch, "shift of exactly 10 matches")
	assert.Equal(t, 70, r.Confidence)
	assert.Equal(t, MatchLineShift, r.Type)

	over := issue("src/a.go", 111, "R-1", "completely different words here entirely")
	r = Match(base, over)
	assert.NotEqual(t, MatchLineShift, r.Type, "shift of 11 must not line-shift match")
}

func TestContentMatchViaSnippet(t *testing.T) {
	a := issue("src/old.go", 5, "R-3", "totally different message one")
	b := issue("src/new.go", 50, "R-3", "unrelated phrasing over here")
	a.CodeSnippet = "if err != nil { return err }"
	b.CodeSnippet = "if err != nil {  return err }"

	r := Match(a, b)
	assert.True(t, r.IsMatch)
	assert.Equal(t, MatchContent, r.Type)
	assert.Equal(t, 80, r.Confidence) // identical snippets: 1.0 * 80
}

func TestContentMatchViaMessage(t *testing.T) {
	a := issue("src/x.go", 5, "R-4", "possible nil pointer dereference of value")
	b := issue("src/y.go", 9, "R-4", "possible nil pointer dereference of value")

	r := Match(a, b)
	assert.True(t, r.IsMatch)
	assert.Equal(t, MatchContent, r.Type)
	assert.Equal(t, 70, r.Confidence) // identical messages: 1.0 * 70
}

func TestFuzzyThresholdBoundary(t *testing.T) {
	// Same rule (0.3), category (0.2), severity (0.1), zero message overlap:
	// score exactly 0.60 must match with confidence 36
	a := issue("src/a.go", 1, "R-5", "alpha beta gamma")
	b := issue("src/b.go", 99, "R-5", "delta epsilon zeta")
	b.Category = a.Category
	b.Severity = a.Severity

	r := Match(a, b)
	assert.True(t, r.IsMatch)
	assert.Equal(t, MatchFuzzy, r.Type)
	assert.Equal(t, 36, r.Confidence)

	// Drop severity agreement: 0.5 < 0.60, no match
	b.Severity = models.SeverityHigh
	r = Match(a, b)
	assert.False(t, r.IsMatch)
}

func TestMatchSymmetry(t *testing.T) {
	pairs := [][2]*models.ToolIssue{
		{issue("a.go", 10, "R-1", "msg one"), issue("a.go", 10, "R-1", "msg one")},
		{issue("a.go", 12, "R-2", "shifted msg"), issue("a.go", 17, "R-2", "shifted msg")},
		{issue("a.go", 1, "R-3", "alpha beta"), issue("b.go", 2, "R-3", "alpha beta")},
		{issue("a.go", 1, "R-4", "nothing alike"), issue("b.go", 2, "R-9", "in common")},
	}

	for _, p := range pairs {
		ab := Match(p[0], p[1])
		ba := Match(p[1], p[0])
		assert.Equal(t, ab.Confidence, ba.Confidence)
		assert.Equal(t, ab.IsMatch, ba.IsMatch)
		assert.Equal(t, ab.Type, ba.Type)
	}
}

func TestWeakerStrategyNeverBeatsExact(t *testing.T) {
	a := issue("src/a.go", 10, "R-1", "same message entirely")
	b := issue("src/a.go", 10, "R-1", "same message entirely")

	r := Match(a, b)
	assert.Equal(t, MatchExact, r.Type, "exact must win when applicable")
	assert.Equal(t, 100, r.Confidence)
}

func TestMatchWithFileMovement(t *testing.T) {
	a := issue("src/old.go", 15, "R-7", "m")
	b := issue("src/new.go", 15, "R-7", "m")

	r := MatchWithFileMovement(a, b, "src/old.go", "src/new.go")
	assert.True(t, r.IsMatch)
	assert.Equal(t, 95, r.Confidence)
	assert.Equal(t, MatchMoved, r.Type)
}

func TestMatchWithFileMovementSimilarMessage(t *testing.T) {
	a := issue("src/old.go", 15, "R-7", "unused variable count in function")
	b := issue("src/new.go", 22, "R-7", "unused variable count in method")

	r := MatchWithFileMovement(a, b, "src/old.go", "src/new.go")
	assert.True(t, r.IsMatch)
	assert.Equal(t, 80, r.Confidence)
}

func TestMatchWithFileMovementRejectsWrongPaths(t *testing.T) {
	a := issue("src/other.go", 15, "R-7", "m")
	b := issue("src/new.go", 15, "R-7", "m")

	r := MatchWithFileMovement(a, b, "src/old.go", "src/new.go")
	assert.False(t, r.IsMatch)
}

func TestMessageSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, MessageSimilarity("same words here", "same words here"))
	assert.Equal(t, 0.0, MessageSimilarity("alpha beta", "gamma delta"))
	// intersection 2, max size 4
	assert.InDelta(t, 0.5, MessageSimilarity("a b c d", "a b x y"), 0.001)
	assert.Equal(t, 1.0, MessageSimilarity("", ""))
	assert.Equal(t, 0.0, MessageSimilarity("word", ""))
}

func TestCodeSimilarityNormalizesWhitespaceAndBraces(t *testing.T) {
	a := "if err != nil {\n\treturn err\n}"
	b := "if err != nil { return err }"
	assert.Equal(t, 1.0, CodeSimilarity(a, b))
}
