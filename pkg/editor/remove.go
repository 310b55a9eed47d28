package editor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/contextforge/contextforge/pkg/types"
)

// RemoveOptions controls RemoveFiles behavior.
type RemoveOptions struct {
	Force            bool `json:"force"`
	AllowDirectories bool `json:"allow_directories"`
	DryRun           bool `json:"dry_run"`
	WithBackup       bool `json:"with_backup"`
}

// RemoveOutcome is the per-path result of RemoveFiles, returned in input order.
type RemoveOutcome struct {
	Path        string `json:"path"`
	Removed     bool   `json:"removed"`
	WouldRemove bool   `json:"would_remove,omitempty"`
	BackupPath  string `json:"backup_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RemoveFiles deletes each path after validation. A failure on one path is
// recorded in its outcome and does not stop the remaining paths.
func (e *Editor) RemoveFiles(paths []string, opts RemoveOptions) []RemoveOutcome {
	outcomes := make([]RemoveOutcome, 0, len(paths))
	for _, p := range paths {
		outcomes = append(outcomes, e.removeOne(p, opts))
	}
	return outcomes
}

func (e *Editor) removeOne(path string, opts RemoveOptions) RemoveOutcome {
	out := RemoveOutcome{Path: path}

	abs, err := e.resolve(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if abs == filepath.Dir(abs) || abs == e.root {
		out.Error = fmt.Sprintf("%v: refusing to remove %s", types.ErrValidation, path)
		return out
	}
	if !opts.Force && isProtected(abs) {
		out.Error = fmt.Sprintf("%v: %s is protected", types.ErrValidation, path)
		return out
	}

	info, err := os.Stat(abs)
	if err != nil {
		out.Error = fmt.Sprintf("%v: %s", types.ErrNotFound, path)
		return out
	}
	if info.IsDir() && !opts.AllowDirectories {
		out.Error = fmt.Sprintf("%v: %s is a directory", types.ErrValidation, path)
		return out
	}

	if opts.DryRun {
		out.WouldRemove = true
		return out
	}

	if opts.WithBackup && !info.IsDir() {
		content, err := os.ReadFile(abs)
		if err == nil {
			if backupPath, berr := e.backup(abs, content); berr == nil {
				out.BackupPath = backupPath
			}
		}
	}

	if info.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		out.Error = fmt.Sprintf("failed to remove %s: %v", path, err)
		return out
	}

	out.Removed = true
	e.logger.Info().Str("path", path).Bool("dir", info.IsDir()).Msg("removed")
	return out
}
