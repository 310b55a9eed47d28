// Package editor provides workspace-scoped file mutation: exact-match
// string replacement, file creation, and guarded deletion.
//
// Every path is resolved against the workspace root and rejected if it
// escapes it. Mutations of existing files can snapshot the prior content
// under .contextforge/backups before writing; backups older than the
// configured retention window are purged opportunistically.
//
// StrReplace applies a sequence of replacements with the semantics of an
// interactive edit tool: a replacement whose old string is absent fails
// with a no-match error, and one that matches more than once fails with a
// conflict carrying the matched line numbers so the caller can retry with
// a line range.
package editor
