package index

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// supportedExtensions is the explicit set of file extensions the indexer
// accepts; everything else is skipped silently.
var supportedExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".java": true, ".c": true, ".cpp": true, ".cc": true,
	".cxx": true, ".h": true, ".hpp": true, ".cs": true, ".rb": true,
	".php": true, ".rs": true, ".swift": true, ".kt": true, ".scala": true,
	".sh": true, ".bash": true, ".sql": true, ".r": true, ".m": true,
	".pl": true, ".lua": true, ".dart": true, ".ex": true, ".exs": true,
	".clj": true, ".fs": true, ".ml": true, ".hs": true, ".vue": true,
	".svelte": true, ".yaml": true, ".yml": true, ".json": true,
	".toml": true, ".xml": true, ".html": true, ".css": true, ".scss": true,
	".tf": true, ".proto": true, ".md": true, ".dockerfile": true,
}

// extensionLanguages resolves common extensions without content sniffing;
// enry handles the rest
var extensionLanguages = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".java": "Java",
	".c":    "C",
	".cpp":  "C++",
	".cc":   "C++",
	".cs":   "C#",
	".rb":   "Ruby",
	".php":  "PHP",
	".rs":   "Rust",
	".kt":   "Kotlin",
	".sh":   "Shell",
	".sql":  "SQL",
}

// IsSupportedExtension reports whether the indexer accepts files with the
// given path's extension
func IsSupportedExtension(filePath string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filePath))]
}

// DetectLanguage returns the language tag for a file, preferring the fast
// extension table and falling back to enry's classifier over the content.
func DetectLanguage(filePath string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}

	if lang := enry.GetLanguage(path.Base(filePath), content); lang != "" && lang != "Other" {
		return lang
	}

	if ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	return "unknown"
}
