// Package gitquery retrieves repository history by shelling out to git:
// relevance-ranked commit search, single-commit lookup, per-line blame,
// and structured diffs.
//
// Every invocation runs with a timeout (30 seconds by default) and in the
// repository root. Failures are returned as errors, never panics; a
// missing git binary or an expired deadline produces a descriptive error
// the caller can match with errors.Is.
//
// Search scoring favors whole-query subject matches, then whole-query
// body matches, then per-token hits in subject, body, and author name.
package gitquery
