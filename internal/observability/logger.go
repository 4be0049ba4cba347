package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRun        EventType = "run"
	EventTypeStep       EventType = "step"
	EventTypeRetry      EventType = "retry"
	EventTypeLLM        EventType = "llm"
	EventTypeCost       EventType = "cost"
	EventTypeValidation EventType = "validation"
	EventTypePolicy     EventType = "policy"
	EventTypeStore      EventType = "store"
	EventTypeNotify     EventType = "notify"
	EventTypeHeartbeat  EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Step      string    `json:"step,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. LLM events are also appended to a
// size-rotated jsonl file when a path is configured.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLogger writes events to out. An empty llmLogPath disables the llm file.
func NewLogger(out io.Writer, llmLogPath string, maxSizeMB int) *Logger {
	if out == nil {
		out = os.Stdout
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
	}
}

// NopLogger discards every event.
func NopLogger() *Logger {
	return NewLogger(io.Discard, "", 0)
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogRun(runID, status string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = status
	l.Log(Event{Type: EventTypeRun, RunID: runID, Data: data})
}

func (l *Logger) LogStep(runID, step, status string, attempts int, errKind, errMsg string) {
	data := map[string]any{
		"status":   status,
		"attempts": attempts,
	}
	if errKind != "" {
		data["error_kind"] = errKind
		data["error"] = errMsg
	}
	l.Log(Event{Type: EventTypeStep, RunID: runID, Step: step, Data: data})
}

func (l *Logger) LogRetry(runID, step string, attempt int, reason string, delay time.Duration) {
	l.Log(Event{
		Type:  EventTypeRetry,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"attempt":  attempt,
			"reason":   reason,
			"delay_ms": delay.Milliseconds(),
		},
	})
}

func (l *Logger) LogCost(runID, step string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:  EventTypeCost,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogLLM(runID, step string, prompt any, response string, elapsed time.Duration) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogValidation(runID, step string, issues any) {
	l.Log(Event{Type: EventTypeValidation, RunID: runID, Step: step, Data: map[string]any{"issues": issues}})
}

func (l *Logger) LogPolicy(field, reason string) {
	l.Log(Event{Type: EventTypePolicy, Data: map[string]string{"field": field, "reason": reason}})
}

func (l *Logger) LogStore(runID, action, id string) {
	l.Log(Event{Type: EventTypeStore, RunID: runID, Data: map[string]string{"action": action, "id": id}})
}

func (l *Logger) LogNotify(runID, channel string, err error) {
	data := map[string]string{"channel": channel, "status": "sent"}
	if err != nil {
		data["status"] = "failed"
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeNotify, RunID: runID, Data: data})
}

func (l *Logger) LogHeartbeat(status Status) {
	l.Log(Event{Type: EventTypeHeartbeat, Data: status})
}
