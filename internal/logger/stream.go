package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 1000

// Broadcaster pushes log entries out to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LogEntry is a parsed log line ready for streaming.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Stream implements io.Writer. It receives JSON entries from zerolog, keeps
// the most recent ones in memory, and forwards each to the hub when one is
// attached.
type Stream struct {
	mu      sync.RWMutex
	hub     Broadcaster
	recent  []LogEntry
	next    int
	filled  bool
	keepMax int
}

// NewStream creates a log stream buffering up to bufferSize recent entries.
// The hub may be attached later with SetHub.
func NewStream(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Stream{
		recent:  make([]LogEntry, bufferSize),
		keepMax: bufferSize,
	}
}

// SetHub attaches the broadcaster hub.
func (s *Stream) SetHub(hub Broadcaster) {
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()
}

// Write implements io.Writer for zerolog output. Malformed lines are dropped
// silently; logging must never fail the caller.
func (s *Stream) Write(p []byte) (int, error) {
	entry, err := parseLogEntry(p)
	if err != nil {
		return len(p), nil
	}

	s.mu.Lock()
	s.recent[s.next] = entry
	s.next = (s.next + 1) % s.keepMax
	if s.next == 0 {
		s.filled = true
	}
	hub := s.hub
	s.mu.Unlock()

	if hub != nil {
		hub.Broadcast("logs:entry", entry)
	}
	return len(p), nil
}

// Recent returns the buffered entries, oldest first.
func (s *Stream) Recent() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.filled {
		out := make([]LogEntry, s.next)
		copy(out, s.recent[:s.next])
		return out
	}

	out := make([]LogEntry, 0, s.keepMax)
	out = append(out, s.recent[s.next:]...)
	out = append(out, s.recent[:s.next]...)
	return out
}

func parseLogEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{Fields: make(map[string]any)}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	for k, v := range raw {
		entry.Fields[k] = v
	}
	return entry, nil
}
