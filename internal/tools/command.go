package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/diffsight/diffsight-go/internal/models"
)

// OutputFormat selects how a command adapter parses tool output
type OutputFormat string

const (
	// FormatJSON expects a JSON array of issue objects on stdout
	FormatJSON OutputFormat = "json"
	// FormatLines expects "path:line:col: message" lines on stdout
	FormatLines OutputFormat = "lines"
)

// jsonIssue is the wire form accepted from JSON-emitting tools
type jsonIssue struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	EndLine  int    `json:"end_line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Details  string `json:"details"`
	Snippet  string `json:"snippet"`
	Fix      string `json:"fix"`
	DocURL   string `json:"doc_url"`
}

// CommandConfig describes one external analyzer binary
type CommandConfig struct {
	Name       string
	Version    string
	Binary     string
	Args       []string // static args; file paths are appended
	Format     OutputFormat
	Categories []models.Category
	Extensions []string // file extensions this tool selects, e.g. ".go"
	Languages  []string // language tags this tool selects; empty means any

	// DefaultRule is used for line-format output that carries no rule id
	DefaultRule string

	// KillGrace is how long after SIGTERM before SIGKILL on cancellation
	KillGrace time.Duration
}

// CommandAdapter invokes an external analyzer subprocess and normalizes its
// output into canonical issues
type CommandAdapter struct {
	cfg  CommandConfig
	exts map[string]bool
	lang map[string]bool
}

// NewCommandAdapter builds an adapter for one external analyzer
func NewCommandAdapter(cfg CommandConfig) *CommandAdapter {
	if cfg.Format == "" {
		cfg.Format = FormatLines
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	langs := make(map[string]bool, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[strings.ToLower(l)] = true
	}
	return &CommandAdapter{cfg: cfg, exts: exts, lang: langs}
}

func (a *CommandAdapter) Name() string { return a.cfg.Name }

func (a *CommandAdapter) Version() string { return a.cfg.Version }

func (a *CommandAdapter) Categories() []models.Category { return a.cfg.Categories }

// SelectsFile accepts a file when its extension is in the configured set and,
// when a language filter is present, its language matches too
func (a *CommandAdapter) SelectsFile(path, language string) bool {
	if len(a.exts) > 0 {
		dot := strings.LastIndexByte(path, '.')
		if dot < 0 || !a.exts[strings.ToLower(path[dot:])] {
			return false
		}
	}
	if len(a.lang) > 0 && !a.lang[strings.ToLower(language)] {
		return false
	}
	return true
}

// Invoke runs the analyzer subprocess rooted at the working tree. On
// cancellation the process receives SIGTERM, then SIGKILL after the grace
// period.
func (a *CommandAdapter) Invoke(ctx context.Context, workTreePath string, files []string) ([]models.ToolIssue, error) {
	args := append([]string{}, a.cfg.Args...)
	args = append(args, files...)

	cmd := exec.CommandContext(ctx, a.cfg.Binary, args...)
	cmd.Dir = workTreePath
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = a.cfg.KillGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil {
		// Many linters exit non-zero when they find issues; only treat the
		// run as failed when there is no parseable output at all
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("%s failed: %v: %s", a.cfg.Name, runErr, strings.TrimSpace(stderr.String()))
		}
	}

	issues, err := a.parse(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s output parse failed: %w", a.cfg.Name, err)
	}

	sortIssues(issues)
	return issues, nil
}

func (a *CommandAdapter) parse(out []byte) ([]models.ToolIssue, error) {
	switch a.cfg.Format {
	case FormatJSON:
		return a.parseJSON(out)
	default:
		return a.parseLines(out), nil
	}
}

func (a *CommandAdapter) parseJSON(out []byte) ([]models.ToolIssue, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raw []jsonIssue
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}

	issues := make([]models.ToolIssue, 0, len(raw))
	for _, r := range raw {
		if r.File == "" || r.Message == "" {
			continue
		}
		rule := r.RuleID
		if rule == "" {
			rule = a.cfg.DefaultRule
		}
		issue := models.ToolIssue{
			Tool:        a.cfg.Name,
			ToolVersion: a.cfg.Version,
			RuleID:      rule,
			Category:    MapCategory(r.Category),
			Severity:    models.NormalizeSeverity(r.Severity),
			File:        r.File,
			StartLine:   r.Line,
			EndLine:     r.EndLine,
			StartColumn: r.Column,
			Message:     r.Message,
			Details:     r.Details,
			CodeSnippet: r.Snippet,
			Suggestion:  r.Fix,
			DocURL:      r.DocURL,
		}
		FinalizeIssue(&issue)
		issues = append(issues, issue)
	}
	return issues, nil
}

// parseLines handles "path:line:col: message" output. A trailing "(rule)"
// token, the golangci-lint convention, is lifted into the rule id.
func (a *CommandAdapter) parseLines(out []byte) []models.ToolIssue {
	var issues []models.ToolIssue

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := locationEnd(line)
		if idx <= 0 {
			continue
		}

		path, lineNo, col := ParseLocation(line[:idx])
		if lineNo == 0 {
			continue
		}
		message := strings.TrimSpace(strings.TrimPrefix(line[idx:], ":"))
		if message == "" {
			continue
		}

		rule := a.cfg.DefaultRule
		if open := strings.LastIndexByte(message, '('); open >= 0 && strings.HasSuffix(message, ")") {
			rule = message[open+1 : len(message)-1]
			message = strings.TrimSpace(message[:open])
		}

		issue := models.ToolIssue{
			Tool:        a.cfg.Name,
			ToolVersion: a.cfg.Version,
			RuleID:      rule,
			Category:    firstCategory(a.cfg.Categories),
			Severity:    models.SeverityMedium,
			File:        path,
			StartLine:   lineNo,
			StartColumn: col,
			Message:     message,
		}
		FinalizeIssue(&issue)
		issues = append(issues, issue)
	}
	return issues
}

// locationEnd finds the end of the path:line[:col] prefix: the colon that
// follows the last numeric segment
func locationEnd(line string) int {
	segments := 0
	for i := 0; i < len(line); i++ {
		if line[i] != ':' {
			continue
		}
		rest := line[i+1:]
		numLen := numericPrefixLen(rest)
		if numLen == 0 {
			if segments > 0 {
				return i
			}
			continue
		}
		segments++
		i += numLen
	}
	if segments > 0 {
		return len(line)
	}
	return -1
}

func numericPrefixLen(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

func firstCategory(cats []models.Category) models.Category {
	if len(cats) > 0 {
		return cats[0]
	}
	return models.CategoryQuality
}

// sortIssues orders by file, line, then rule so adapter output is stable
// regardless of tool emission order
func sortIssues(issues []models.ToolIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		if issues[i].StartLine != issues[j].StartLine {
			return issues[i].StartLine < issues[j].StartLine
		}
		return issues[i].RuleID < issues[j].RuleID
	})
}
