package chunker

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// extLanguages maps file extensions to the language names the chunker
// understands. Detection prefers this table; enry breaks ties and handles
// extensionless files.
var extLanguages = map[string]string{
	".go":  "go",
	".py":  "python",
	".pyi": "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".md":  "markdown",
	".mdx": "markdown",
}

// DetectLanguage returns the chunker's language name for a file, or "" when
// the file is unsupported.
func DetectLanguage(path string, content []byte) string {
	if lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}

	name, safe := enry.GetLanguageByExtension(path)
	if !safe && len(content) > 0 {
		name = enry.GetLanguage(filepath.Base(path), content)
	}
	switch strings.ToLower(name) {
	case "go":
		return "go"
	case "python":
		return "python"
	case "javascript":
		return "javascript"
	case "typescript", "tsx":
		return "typescript"
	case "markdown":
		return "markdown"
	}
	return ""
}

// Supported reports whether language has a chunking strategy.
func Supported(language string) bool {
	switch language {
	case "go", "python", "javascript", "typescript", "markdown":
		return true
	}
	return false
}
