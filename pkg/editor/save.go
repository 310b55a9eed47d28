package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextforge/contextforge/pkg/types"
)

// SaveOptions controls SaveFile behavior.
type SaveOptions struct {
	Overwrite     bool `json:"overwrite"`
	CreateParents bool `json:"create_parents"`
	EnsureNewline bool `json:"ensure_newline"`
}

// SaveResult reports what SaveFile did.
type SaveResult struct {
	Path       string `json:"path"`
	BytesSaved int    `json:"bytes_saved"`
	Created    bool   `json:"created"`
	BackupPath string `json:"backup_path,omitempty"`
}

// SaveFile writes content at path. An existing file is only replaced when
// Overwrite is set, and is backed up first.
func (e *Editor) SaveFile(path, content string, opts SaveOptions) (*SaveResult, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{Path: path, Created: true}
	if existing, err := os.ReadFile(abs); err == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("%w: %s already exists and overwrite is false", types.ErrValidation, path)
		}
		result.Created = false
		backupPath, err := e.backup(abs, existing)
		if err != nil {
			return nil, err
		}
		result.BackupPath = backupPath
	}

	if opts.CreateParents {
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("failed to create parent directories: %w", err)
		}
	}

	if opts.EnsureNewline && content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrPermission, path)
		}
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	result.BytesSaved = len(content)

	e.logger.Info().
		Str("path", path).
		Int("bytes", result.BytesSaved).
		Bool("created", result.Created).
		Msg("file saved")
	return result, nil
}
