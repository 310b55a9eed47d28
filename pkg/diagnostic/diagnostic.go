package diagnostic

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/fingerprint"
	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

const (
	// DefaultHistorySize bounds the in-memory result history.
	DefaultHistorySize = 200

	// criticalDriftRatio separates warning drift from critical drift.
	criticalDriftRatio = 0.5

	// warnThreshold is the fraction of a limit that triggers a warning.
	warnThreshold = 0.9
)

// Limits are the resource maxima the loop-limits check compares against.
type Limits struct {
	MaxToolCalls      int `yaml:"max_tool_calls"`
	MaxRevisions      int `yaml:"max_revisions"`
	MaxTokens         int `yaml:"max_tokens"`
	MaxFilesAccessed  int `yaml:"max_files_accessed"`
	MaxLoopIterations int `yaml:"max_loop_iterations"`
}

// DefaultLimits returns permissive defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxToolCalls:      500,
		MaxRevisions:      50,
		MaxTokens:         1000000,
		MaxFilesAccessed:  200,
		MaxLoopIterations: 100,
	}
}

// Agent runs drift, confidence, and resource-limit checks and keeps a
// bounded history of findings.
type Agent struct {
	mu           sync.Mutex
	fingerprints *fingerprint.Store
	limits       Limits
	history      []types.DiagnosticResult
	historySize  int
	logger       zerolog.Logger
}

// New creates an Agent over a fingerprint store.
func New(fps *fingerprint.Store, limits Limits, historySize int) *Agent {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Agent{
		fingerprints: fps,
		limits:       limits,
		historySize:  historySize,
		logger:       log.WithComponent("diagnostic"),
	}
}

// record appends a result to the bounded history and returns it.
func (a *Agent) record(result types.DiagnosticResult) types.DiagnosticResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, result)
	if len(a.history) > a.historySize {
		a.history = a.history[len(a.history)-a.historySize:]
	}
	return result
}

// History returns a copy of recorded results, oldest first.
func (a *Agent) History() []types.DiagnosticResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.DiagnosticResult(nil), a.history...)
}

// CheckDrift grades a tracked file's drift. Untracked paths report info.
func (a *Agent) CheckDrift(path string) types.DiagnosticResult {
	now := time.Now()
	report, err := a.fingerprints.CheckDrift(path)
	if err != nil {
		return a.record(types.DiagnosticResult{
			Passed:    false,
			Severity:  types.SeverityError,
			Message:   fmt.Sprintf("drift check failed for %s", path),
			Details:   map[string]any{"path": path, "error": err.Error()},
			Timestamp: now,
		})
	}

	switch report.Status {
	case types.DriftNotTracked:
		return a.record(types.DiagnosticResult{
			Passed:    true,
			Severity:  types.SeverityInfo,
			Message:   fmt.Sprintf("%s is not tracked", path),
			Details:   map[string]any{"path": path, "status": string(report.Status)},
			Timestamp: now,
		})
	case types.DriftNone:
		return a.record(types.DiagnosticResult{
			Passed:    true,
			Severity:  types.SeverityInfo,
			Message:   fmt.Sprintf("%s matches its fingerprint", path),
			Details:   map[string]any{"path": path, "status": string(report.Status)},
			Timestamp: now,
		})
	}

	sizeDelta := report.New.Size - report.Old.Size
	severity := types.SeverityWarning
	if report.Old.Size > 0 && math.Abs(float64(sizeDelta))/float64(report.Old.Size) > criticalDriftRatio {
		severity = types.SeverityCritical
	}
	return a.record(types.DiagnosticResult{
		Passed:   false,
		Severity: severity,
		Message:  fmt.Sprintf("%s drifted from its fingerprint", path),
		Details: map[string]any{
			"path":       path,
			"status":     string(report.Status),
			"size_delta": sizeDelta,
			"old_hash":   report.Old.SHA256,
			"new_hash":   report.New.SHA256,
		},
		Timestamp: now,
	})
}

// CheckConfidence grades a caller-supplied confidence score out of 100.
func (a *Agent) CheckConfidence(score float64) types.DiagnosticResult {
	now := time.Now()
	details := map[string]any{"score": score}
	switch {
	case score >= 80:
		return a.record(types.DiagnosticResult{
			Passed:    true,
			Severity:  types.SeverityInfo,
			Message:   fmt.Sprintf("confidence %.0f is healthy", score),
			Details:   details,
			Timestamp: now,
		})
	case score >= 40:
		return a.record(types.DiagnosticResult{
			Passed:    false,
			Severity:  types.SeverityWarning,
			Message:   fmt.Sprintf("confidence %.0f is low", score),
			Details:   details,
			Timestamp: now,
		})
	default:
		return a.record(types.DiagnosticResult{
			Passed:    false,
			Severity:  types.SeverityCritical,
			Message:   fmt.Sprintf("confidence %.0f is critically low", score),
			Details:   details,
			Timestamp: now,
		})
	}
}

// CheckLoopLimits compares operation metrics against the configured
// maxima: at or past 90% of a limit is a warning, over the limit an error.
func (a *Agent) CheckLoopLimits(m types.OperationMetrics) types.DiagnosticResult {
	now := time.Now()
	type gauge struct {
		name  string
		value int
		max   int
	}
	gauges := []gauge{
		{"tool_calls", m.ToolCalls, a.limits.MaxToolCalls},
		{"revisions", m.Revisions, a.limits.MaxRevisions},
		{"tokens_used", m.TokensUsed, a.limits.MaxTokens},
		{"files_accessed", m.FilesAccessed, a.limits.MaxFilesAccessed},
		{"loop_iterations", m.LoopIterations, a.limits.MaxLoopIterations},
	}

	severity := types.SeverityInfo
	var exceeded, near []string
	details := map[string]any{}
	for _, g := range gauges {
		if g.max <= 0 {
			continue
		}
		details[g.name] = fmt.Sprintf("%d/%d", g.value, g.max)
		switch {
		case g.value > g.max:
			exceeded = append(exceeded, g.name)
			severity = types.SeverityError
		case float64(g.value) >= warnThreshold*float64(g.max):
			near = append(near, g.name)
			if severity == types.SeverityInfo {
				severity = types.SeverityWarning
			}
		}
	}

	result := types.DiagnosticResult{
		Passed:    severity == types.SeverityInfo,
		Severity:  severity,
		Message:   "resource usage within limits",
		Details:   details,
		Timestamp: now,
	}
	if len(exceeded) > 0 {
		result.Message = fmt.Sprintf("resource limits exceeded: %v", exceeded)
		result.Details["exceeded"] = exceeded
	} else if len(near) > 0 {
		result.Message = fmt.Sprintf("resource usage near limits: %v", near)
		result.Details["near_limit"] = near
	}
	return a.record(result)
}

// Review runs drift checks for each path plus one loop-limits check and
// returns all findings.
func (a *Agent) Review(paths []string, m types.OperationMetrics) []types.DiagnosticResult {
	results := make([]types.DiagnosticResult, 0, len(paths)+1)
	for _, path := range paths {
		results = append(results, a.CheckDrift(path))
	}
	results = append(results, a.CheckLoopLimits(m))

	if HasCriticalIssues(results) {
		a.logger.Warn().Int("findings", len(results)).Msg("review found critical issues")
	}
	return results
}

// HasCriticalIssues reports whether any result is error or critical.
func HasCriticalIssues(results []types.DiagnosticResult) bool {
	for _, r := range results {
		if r.Severity == types.SeverityError || r.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}
