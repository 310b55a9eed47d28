package diagnostic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/fingerprint"
	"github.com/contextforge/contextforge/pkg/types"
)

func trackedFile(t *testing.T, fps *fingerprint.Store, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracked.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	fp, err := fingerprint.Capture(path)
	require.NoError(t, err)
	fps.Register(fp)
	return path
}

func TestCheckDriftUntracked(t *testing.T) {
	a := New(fingerprint.NewStore(), DefaultLimits(), 0)

	result := a.CheckDrift("/nowhere/file.go")
	assert.True(t, result.Passed)
	assert.Equal(t, types.SeverityInfo, result.Severity)
	assert.Contains(t, result.Message, "not tracked")
}

func TestCheckDriftClean(t *testing.T) {
	fps := fingerprint.NewStore()
	a := New(fps, DefaultLimits(), 0)
	path := trackedFile(t, fps, "stable content\n")

	result := a.CheckDrift(path)
	assert.True(t, result.Passed)
	assert.Equal(t, types.SeverityInfo, result.Severity)
}

func TestCheckDriftWarning(t *testing.T) {
	fps := fingerprint.NewStore()
	a := New(fps, DefaultLimits(), 0)
	content := strings.Repeat("line\n", 100)
	path := trackedFile(t, fps, content)

	// Change content without moving the size more than half.
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("LINE\n", 100)), 0644))

	result := a.CheckDrift(path)
	assert.False(t, result.Passed)
	assert.Equal(t, types.SeverityWarning, result.Severity)
	assert.Equal(t, int64(0), result.Details["size_delta"])
}

func TestCheckDriftCritical(t *testing.T) {
	fps := fingerprint.NewStore()
	a := New(fps, DefaultLimits(), 0)
	path := trackedFile(t, fps, strings.Repeat("line\n", 100))

	// Shrink the file far past the critical ratio.
	require.NoError(t, os.WriteFile(path, []byte("gone\n"), 0644))

	result := a.CheckDrift(path)
	assert.False(t, result.Passed)
	assert.Equal(t, types.SeverityCritical, result.Severity)
}

func TestCheckDriftMissingFile(t *testing.T) {
	fps := fingerprint.NewStore()
	a := New(fps, DefaultLimits(), 0)
	path := trackedFile(t, fps, "here today\n")
	require.NoError(t, os.Remove(path))

	result := a.CheckDrift(path)
	assert.False(t, result.Passed)
	assert.Equal(t, types.SeverityError, result.Severity)
}

func TestCheckConfidence(t *testing.T) {
	a := New(fingerprint.NewStore(), DefaultLimits(), 0)

	tests := []struct {
		score    float64
		passed   bool
		severity types.Severity
	}{
		{95, true, types.SeverityInfo},
		{80, true, types.SeverityInfo},
		{79, false, types.SeverityWarning},
		{40, false, types.SeverityWarning},
		{39, false, types.SeverityCritical},
		{0, false, types.SeverityCritical},
	}
	for _, tt := range tests {
		result := a.CheckConfidence(tt.score)
		assert.Equal(t, tt.passed, result.Passed, "score %v", tt.score)
		assert.Equal(t, tt.severity, result.Severity, "score %v", tt.score)
	}
}

func TestCheckLoopLimits(t *testing.T) {
	limits := Limits{
		MaxToolCalls:      100,
		MaxRevisions:      10,
		MaxTokens:         1000,
		MaxFilesAccessed:  50,
		MaxLoopIterations: 20,
	}
	a := New(fingerprint.NewStore(), limits, 0)

	ok := a.CheckLoopLimits(types.OperationMetrics{ToolCalls: 10, TokensUsed: 100})
	assert.True(t, ok.Passed)
	assert.Equal(t, types.SeverityInfo, ok.Severity)

	warn := a.CheckLoopLimits(types.OperationMetrics{ToolCalls: 90})
	assert.False(t, warn.Passed)
	assert.Equal(t, types.SeverityWarning, warn.Severity)
	assert.Contains(t, warn.Message, "near limits")

	errRes := a.CheckLoopLimits(types.OperationMetrics{Revisions: 11})
	assert.Equal(t, types.SeverityError, errRes.Severity)
	assert.Contains(t, errRes.Message, "exceeded")

	// Exceeded wins over near-limit.
	both := a.CheckLoopLimits(types.OperationMetrics{ToolCalls: 95, Revisions: 11})
	assert.Equal(t, types.SeverityError, both.Severity)
}

func TestReviewAggregates(t *testing.T) {
	fps := fingerprint.NewStore()
	a := New(fps, Limits{MaxToolCalls: 10}, 0)
	path := trackedFile(t, fps, strings.Repeat("x\n", 50))
	require.NoError(t, os.WriteFile(path, []byte("y\n"), 0644))

	results := a.Review([]string{path}, types.OperationMetrics{ToolCalls: 3})
	require.Len(t, results, 2)
	assert.True(t, HasCriticalIssues(results))
}

func TestHasCriticalIssues(t *testing.T) {
	assert.False(t, HasCriticalIssues(nil))
	assert.False(t, HasCriticalIssues([]types.DiagnosticResult{
		{Severity: types.SeverityInfo},
		{Severity: types.SeverityWarning},
	}))
	assert.True(t, HasCriticalIssues([]types.DiagnosticResult{{Severity: types.SeverityError}}))
	assert.True(t, HasCriticalIssues([]types.DiagnosticResult{{Severity: types.SeverityCritical}}))
}

func TestHistoryBounded(t *testing.T) {
	a := New(fingerprint.NewStore(), DefaultLimits(), 5)
	for i := 0; i < 12; i++ {
		a.CheckConfidence(90)
	}
	assert.Len(t, a.History(), 5)
}
