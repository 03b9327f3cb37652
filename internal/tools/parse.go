package tools

import (
	"strconv"
	"strings"

	"github.com/diffsight/diffsight-go/internal/models"
)

// ParseLocation splits a "path:line:column" location string as emitted by
// most unix-style analyzers. Line and column are 0 when absent or malformed.
func ParseLocation(loc string) (path string, line, column int) {
	parts := strings.Split(loc, ":")
	if len(parts) == 0 {
		return loc, 0, 0
	}

	// Work backwards: trailing numeric segments are line then column
	path = parts[0]
	switch {
	case len(parts) >= 3:
		if l, err := strconv.Atoi(parts[1]); err == nil {
			line = l
			if c, cerr := strconv.Atoi(parts[2]); cerr == nil {
				column = c
			}
		} else {
			path = strings.Join(parts[:len(parts)-2], ":")
		}
	case len(parts) == 2:
		if l, err := strconv.Atoi(parts[1]); err == nil {
			line = l
		} else {
			path = loc
		}
	}
	return path, line, column
}

// MapCategory normalizes a tool's category string onto the canonical set;
// unknown values default to quality
func MapCategory(raw string) models.Category {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "security", "sast", "vulnerability", "vuln":
		return models.CategorySecurity
	case "performance", "perf":
		return models.CategoryPerformance
	case "dependency", "deps", "audit", "sca":
		return models.CategoryDependency
	case "architecture", "design", "structure":
		return models.CategoryArchitecture
	default:
		return models.CategoryQuality
	}
}
