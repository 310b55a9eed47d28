package types

import "errors"

// Error kinds shared across components. Callers match with errors.Is; the
// wrapped message carries the human-readable context.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrNoMatch        = errors.New("no match")
	ErrRegex          = errors.New("regex error")
	ErrTimeout        = errors.New("timeout")
	ErrPermission     = errors.New("permission denied")
	ErrNotARepository = errors.New("not a git repository")
	ErrNoCommits      = errors.New("no commits")
	ErrQueueFull      = errors.New("queue full")
	ErrUnavailable    = errors.New("backend unavailable")
	ErrInternal       = errors.New("internal error")
)
