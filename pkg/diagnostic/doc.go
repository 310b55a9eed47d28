// Package diagnostic runs health checks over tracked files and operation
// metrics: fingerprint drift, confidence scoring, and resource-limit
// usage. Findings are graded info, warning, error, or critical and kept
// in a bounded in-memory history.
package diagnostic
