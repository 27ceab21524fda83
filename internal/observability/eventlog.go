package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// EventLogFileName is the JSONL event log kept in the board's base path.
const EventLogFileName = ".claw_events.jsonl"

// Event represents a single domain event on the board.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "task.created", "notification.dead_lettered"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events. Type matches either an
// exact type or, when it ends in ".", a prefix such as "task.".
type EventFilter struct {
	Since   *time.Time
	Until   *time.Time
	Type    string
	Level   string
	TaskID  string
	AgentID string
	// Limit keeps only the newest N matches when positive.
	Limit int
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the given path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log and returns the events matching filter in write order.
// Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" {
		if strings.HasSuffix(filter.Type, ".") {
			if !strings.HasPrefix(event.Type, filter.Type) {
				return false
			}
		} else if event.Type != filter.Type {
			return false
		}
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.TaskID != "" && stringField(event.Data, "task_id") != filter.TaskID {
		return false
	}
	if filter.AgentID != "" && stringField(event.Data, "agent_id") != filter.AgentID {
		return false
	}
	return true
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// warnEvents are logged at WARN level; everything else is INFO.
var warnEvents = map[string]bool{
	"task.dependency_warning":    true,
	"task.assignment_skipped":    true,
	"notification.failed":        true,
	"notification.dead_lettered": true,
	"agent.offline":              true,
}

// BoardEventLogger writes board mutations to an EventLog. It satisfies the
// core package's EventLogger port.
type BoardEventLogger struct {
	log EventLog
	now func() time.Time
}

// NewBoardEventLogger wraps log. A nil now uses the wall clock.
func NewBoardEventLogger(log EventLog, now func() time.Time) *BoardEventLogger {
	if now == nil {
		now = time.Now
	}
	return &BoardEventLogger{log: log, now: now}
}

// LogEvent records one event with a level and message derived from its type.
func (b *BoardEventLogger) LogEvent(eventType string, data map[string]any) error {
	level := "INFO"
	if warnEvents[eventType] {
		level = "WARN"
	}
	return b.log.Write(Event{
		Time:    b.now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: strings.NewReplacer(".", " ", "_", " ").Replace(eventType),
		Data:    data,
	})
}
