package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFingerprintIgnoresCosmeticRewording(t *testing.T) {
	a := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "Unused variable: x!"}
	b := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "unused variable x"}

	assert.Equal(t, a.ComputeFingerprint(), b.ComputeFingerprint())
}

func TestComputeFingerprintDistinguishesLocation(t *testing.T) {
	a := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "src/a.go", StartLine: 10, Message: "m"}
	b := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "src/a.go", StartLine: 11, Message: "m"}

	assert.NotEqual(t, a.ComputeFingerprint(), b.ComputeFingerprint())
}

func TestNormalizeMessageTruncatesOnRuneBoundary(t *testing.T) {
	// 49 two-byte runes followed by two ASCII letters; only the 50th rune
	// survives truncation, so messages differing after it must collide
	prefix := strings.Repeat("é", 49)
	a := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "f.go", StartLine: 1, Message: prefix + "ab"}
	b := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "f.go", StartLine: 1, Message: prefix + "ac"}

	assert.Equal(t, a.ComputeFingerprint(), b.ComputeFingerprint())

	// A difference inside the first 50 runes still distinguishes
	c := &ToolIssue{Tool: "linty", RuleID: "R-1", File: "f.go", StartLine: 1, Message: prefix + "bb"}
	assert.NotEqual(t, a.ComputeFingerprint(), c.ComputeFingerprint())
}

func TestNormalizeMessage(t *testing.T) {
	assert.Equal(t, "unusedvariablex", normalizeMessage("Unused variable: x!"))
	assert.Equal(t, "", normalizeMessage("  ... !!! "))
	assert.Equal(t, 50, len([]rune(normalizeMessage(strings.Repeat("héllo", 20)))))
}

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]Severity{
		"CRITICAL":  SeverityCritical,
		"error":     SeverityHigh,
		"Warning":   SeverityMedium,
		"note":      SeverityLow,
		"style":     SeverityInfo,
		"mystery":   SeverityLow,
		" blocker ": SeverityCritical,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeSeverity(raw), raw)
	}
}
