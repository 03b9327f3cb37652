package analyzer

import (
	"github.com/diffsight/diffsight-go/internal/models"
)

// Deduplicate collapses issues that share a fingerprint, keeping the most
// detailed record of each group. Detail is a deterministic score; ties keep
// the first-seen issue, so callers must present issues in a stable order
// (the analyzer iterates tool outputs by tool name, then issue index).
// Deduplicating an already-deduplicated list returns it unchanged.
func Deduplicate(issues []models.ToolIssue) []models.ToolIssue {
	if len(issues) <= 1 {
		return issues
	}

	type slot struct {
		index int
		score int
	}
	seen := make(map[string]slot, len(issues))
	result := make([]models.ToolIssue, 0, len(issues))

	for _, issue := range issues {
		fp := issue.Fingerprint
		if fp == "" {
			fp = issue.ComputeFingerprint()
		}

		score := detailScore(&issue)
		existing, dup := seen[fp]
		if !dup {
			seen[fp] = slot{index: len(result), score: score}
			result = append(result, issue)
			continue
		}
		if score > existing.score {
			result[existing.index] = issue
			seen[fp] = slot{index: existing.index, score: score}
		}
	}
	return result
}

// detailScore ranks duplicate issues: a code snippet outweighs any single
// textual field, and longer messages break near-ties.
func detailScore(issue *models.ToolIssue) int {
	score := 0
	if issue.CodeSnippet != "" {
		score += 2
	}
	if issue.Suggestion != "" {
		score++
	}
	if issue.DocURL != "" {
		score++
	}
	if issue.Details != "" {
		score++
	}
	return score*1000 + len(issue.Message)
}
