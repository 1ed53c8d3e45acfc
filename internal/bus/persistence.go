package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/fairrank/internal/pkg/errors"
)

// LoggedEvent is one journal line.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger journals events to disk as JSON lines (one object per line).
// The journal lets a restarted process recover what it announced.
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewEventLogger creates a new event logger.
// If enabled is false, the logger will be created but will not write events.
func NewEventLogger(logPath string, enabled bool) (*EventLogger, error) {
	el := &EventLogger{
		logPath: logPath,
		enabled: enabled,
	}

	if !enabled {
		return el, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	el.file = file
	el.encoder = json.NewEncoder(file)

	return el, nil
}

// Log appends an event to the journal and syncs the file.
// If the logger is disabled, this is a no-op.
func (l *EventLogger) Log(topic string, event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeUnavailable, "event logger is closed")
	}

	if err := l.encoder.Encode(LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync event log: %w", err)
	}

	return nil
}

// GetEvents reads journaled events of a topic logged after since, in
// chronological order. An empty topic matches every topic. If limit > 0, at
// most that many events are returned. Malformed lines are skipped.
func (l *EventLogger) GetEvents(topic string, since time.Time, limit int) ([]LoggedEvent, error) {
	if !l.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return ReadEvents(l.logPath, topic, since, limit)
}

// ReadEvents reads a journal file written by an EventLogger. A missing file
// holds no events.
func ReadEvents(path, topic string, since time.Time, limit int) ([]LoggedEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	events := []LoggedEvent{}
	scanner := bufio.NewScanner(file)

	// Reports can be large
	const maxScanTokenSize = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		var le LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &le); err != nil {
			continue
		}
		if topic != "" && le.Topic != topic {
			continue
		}
		if !le.Timestamp.After(since) {
			continue
		}

		events = append(events, le)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}

	return events, nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close event log: %w", err)
		}
		l.file = nil
		l.encoder = nil
	}

	return nil
}

// IsEnabled returns true if the logger is enabled.
func (l *EventLogger) IsEnabled() bool {
	return l.enabled
}
