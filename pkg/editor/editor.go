package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/contextforge/contextforge/pkg/fingerprint"
	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

const backupDir = ".contextforge/backups"

// protectedPatterns are rejected by RemoveFiles unless force is set.
var protectedPatterns = []string{
	".git", ".gitignore", ".env", "node_modules", "__pycache__",
	".venv", "venv", ".contextforge",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"go.sum", "Cargo.lock", "poetry.lock",
}

// Editor performs workspace-scoped file mutations.
type Editor struct {
	root      string
	retention time.Duration
	differ    *diffmatchpatch.DiffMatchPatch
	logger    zerolog.Logger
}

// New creates an Editor rooted at workspaceRoot. retention bounds backup
// age; zero disables purging.
func New(workspaceRoot string, retention time.Duration) (*Editor, error) {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	return &Editor{
		root:      root,
		retention: retention,
		differ:    diffmatchpatch.New(),
		logger:    log.WithComponent("editor"),
	}, nil
}

// resolve validates that path stays inside the workspace root and returns
// its absolute form.
func (e *Editor) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(e.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the workspace root", types.ErrValidation, path)
	}
	return abs, nil
}

// backup snapshots a file under .contextforge/backups with a timestamped,
// content-hashed name, then opportunistically purges old backups.
func (e *Editor) backup(path string, content []byte) (string, error) {
	dir := filepath.Join(e.root, backupDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	e.purgeOldBackups(dir)

	hash := fingerprint.HashContent(content)[:8]
	name := fmt.Sprintf("%s.%s.%s.bak", filepath.Base(path), time.Now().Format("20060102_150405"), hash)
	backupPath := filepath.Join(dir, name)
	if err := os.WriteFile(backupPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return backupPath, nil
}

// purgeOldBackups deletes backups older than the retention window.
func (e *Editor) purgeOldBackups(dir string) {
	if e.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-e.retention)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bak") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

func isProtected(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, pattern := range protectedPatterns {
			if part == pattern {
				return true
			}
		}
	}
	return false
}
