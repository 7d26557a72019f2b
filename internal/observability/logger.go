package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeStage     EventType = "stage"
	EventTypeItem      EventType = "item"
	EventTypeLocator   EventType = "locator"
	EventTypeLLM       EventType = "llm"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
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

func (l *Logger) LogStage(runID, stage string) {
	l.Log(Event{
		Type:  EventTypeStage,
		RunID: runID,
		Data:  map[string]string{"stage": stage},
	})
}

func (l *Logger) LogItem(runID, name, status string, price float64) {
	l.Log(Event{
		Type:  EventTypeItem,
		RunID: runID,
		Data: map[string]any{
			"name":   name,
			"status": status,
			"price":  price,
		},
	})
}

func (l *Logger) LogLocator(runID, target, outcome string) {
	l.Log(Event{
		Type:  EventTypeLocator,
		RunID: runID,
		Data: map[string]string{
			"target":  target,
			"outcome": outcome,
		},
	})
}

func (l *Logger) LogLLM(runID, role, response string) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]string{
			"role":     role,
			"response": response,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
