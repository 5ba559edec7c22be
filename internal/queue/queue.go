package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	DocumentCreated   EventType = "document.created"
	VersionAppended   EventType = "version.appended"
	PermissionGranted EventType = "permission.granted"
	DocumentDeleted   EventType = "document.deleted"
)

// Event describes a committed change to a document.
type Event struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id,omitempty"`
	VersionID  string    `json:"version_id,omitempty"`
	Label      string    `json:"label,omitempty"`
	Level      string    `json:"level,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher announces committed changes. Events are published after commit
// and a failed publish never undoes the change.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

var _ Publisher = (*LogPublisher)(nil)

// LogPublisher writes events to the log.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (l *LogPublisher) Publish(ctx context.Context, event Event) error {
	logrus.WithFields(logrus.Fields{
		"event":    event.Type,
		"document": event.DocumentID,
		"user":     event.UserID,
		"version":  event.VersionID,
	}).Info("document event")
	return nil
}

func (l *LogPublisher) Close() error {
	return nil
}

var _ Publisher = (*MemoryPublisher)(nil)

// MemoryPublisher keeps events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryPublisher) Close() error {
	return nil
}
