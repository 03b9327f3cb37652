package tools

import (
	"context"

	"github.com/diffsight/diffsight-go/internal/models"
)

// Adapter is the uniform contract every external analyzer is invoked
// through. Implementations may launch a subprocess or call an embedded
// library; either way they normalize output into canonical issue records.
//
// Invoke must be idempotent: re-running on the same working tree with the
// same file set yields the same issue list, with any unstable tool output
// (timestamps, absolute paths) scrubbed during parsing.
type Adapter interface {
	// Name is the stable tool identifier used in issue records and cache keys
	Name() string

	// Version reports the underlying tool version, queried or embedded
	Version() string

	// Categories lists the issue categories this tool can report
	Categories() []models.Category

	// SelectsFile narrows the input set before invocation
	SelectsFile(path, language string) bool

	// Invoke runs the tool against the working tree. files may be empty,
	// meaning all files the adapter selects. The context carries the
	// per-tool timeout; on expiry the adapter must stop and return.
	Invoke(ctx context.Context, workTreePath string, files []string) ([]models.ToolIssue, error)
}

// FinalizeIssue fills the derived fields every adapter must populate the
// same way: the fingerprint and the content-derived stable identifier.
func FinalizeIssue(issue *models.ToolIssue) {
	issue.Fingerprint = issue.ComputeFingerprint()
	if issue.ID == "" {
		issue.ID = issue.Tool + "-" + issue.Fingerprint[:12]
	}
	if issue.Confidence == 0 {
		issue.Confidence = 1.0
	}
}
