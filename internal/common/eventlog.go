package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventEntry records one model lifecycle event.
type EventEntry struct {
	Type     string    `json:"type"`
	Kind     string    `json:"kind"`
	ID       string    `json:"id"`
	Property string    `json:"property,omitempty"`
	Old      any       `json:"old,omitempty"`
	New      any       `json:"new,omitempty"`
	Ts       time.Time `json:"ts"`
}

// EventLog provides append-only access to a JSONL event log.
type EventLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewEventLog returns an EventLog that writes to the provided path. The file
// is opened on first append.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the backing file path for the log.
func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry as a single JSON line.
func (l *EventLog) Append(entry EventEntry) error {
	if l == nil {
		return errors.New("nil event log")
	}
	if entry.Type == "" || entry.Kind == "" {
		return errors.New("event entry missing type or kind")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		dir := filepath.Dir(l.path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		l.f = f
	}
	_, err = l.f.Write(append(data, '\n'))
	return err
}

// Close flushes and closes the backing file.
func (l *EventLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Sync()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// ReadEventLog loads every entry from the supplied JSONL file.
func ReadEventLog(path string) ([]EventEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []EventEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry EventEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode event entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
