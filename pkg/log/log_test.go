package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		return nil
	}
	return entry
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Msg("suppressed")
	assert.Zero(t, buf.Len())

	Logger.Warn().Msg("emitted")
	assert.NotZero(t, buf.Len())
}

func TestContextHelpers(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{name: "component", field: "component", value: "watcher"},
		{name: "watch", field: "watch_id", value: "w-123"},
		{name: "agent", field: "agent_id", value: "a-456"},
		{name: "task", field: "task_id", value: "t-789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

			switch tt.field {
			case "component":
				l := WithComponent(tt.value)
				l.Info().Msg("hello")
			case "watch_id":
				l := WithWatchID(tt.value)
				l.Info().Msg("hello")
			case "agent_id":
				l := WithAgentID(tt.value)
				l.Info().Msg("hello")
			case "task_id":
				l := WithTaskID(tt.value)
				l.Info().Msg("hello")
			}

			entry := logLine(&buf)
			require.NotNil(t, entry)
			assert.Equal(t, tt.value, entry[tt.field])
			assert.Equal(t, "hello", entry["message"])
		})
	}
}
