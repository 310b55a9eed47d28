// Package viewer renders files and directories for display: line-numbered
// file content, range extraction, regex search with context windows, and a
// two-level directory listing with human-readable sizes.
//
// Output is bounded. Files over the size limit are refused and renders
// past the output line limit are clipped with a visible marker and an
// is_truncated flag so callers can page instead of flooding.
package viewer
