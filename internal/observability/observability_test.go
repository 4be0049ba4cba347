package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvents(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "", 0)

	l.LogStep("run-1", "sizing", "failed", 3, "TIMEOUT", "deadline")
	l.LogNotify("run-1", "telegram", errors.New("boom"))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, "step", events[0]["type"])
	assert.Equal(t, "run-1", events[0]["run_id"])
	assert.Equal(t, "sizing", events[0]["step"])
	data := events[0]["data"].(map[string]any)
	assert.Equal(t, "TIMEOUT", data["error_kind"])
	assert.Equal(t, 3.0, data["attempts"])

	assert.Equal(t, "failed", events[1]["data"].(map[string]any)["status"])
}

func TestLogger_LLMEventsGoToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm.jsonl")
	l := NewLogger(&bytes.Buffer{}, path, 1)

	l.LogLLM("run-1", "architecture", "prompt", "response", 0)
	l.LogCost("run-1", "architecture", 10, 20, "fixture")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"llm"`)
}

func TestLogger_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 2*1024*1024), 0644))

	l := NewLogger(&bytes.Buffer{}, path, 1)
	l.LogLLM("run-1", "summary", "p", "r", 0)

	_, err := os.Stat(path + ".old")
	assert.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024))
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	tr.RunStarted("a")
	tr.RunStarted("b")
	tr.RunStarted("c")
	tr.RunFinished("succeeded")
	tr.RunFinished("partial_failure")

	s := tr.Snapshot()
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, "c", s.LastRun)

	tr.RunFinished("cancelled")
	s = tr.Snapshot()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 1, s.Cancelled)
}

func TestStatusLine(t *testing.T) {
	line := StatusLine(Status{Active: 2, Completed: 5, Uptime: "1m0s"}, 1, 4)
	assert.Contains(t, line, "active=2")
	assert.Contains(t, line, "gate 1/4")
}
