// Package events publishes memory lifecycle events.
//
// Events are fire-and-forget notifications for downstream consumers
// (profile builders, analytics). A failed publish is reported to the caller
// but must never fail the mutation that produced it.
//
// Events are published to subjects:
//   - <prefix>.item.created
//   - <prefix>.item.updated
//   - <prefix>.item.completed
//   - <prefix>.ingest.completed
//   - <prefix>.user.deleted
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	ItemCreated     Type = "item.created"
	ItemUpdated     Type = "item.updated"
	ItemCompleted   Type = "item.completed"
	IngestCompleted Type = "ingest.completed"
	UserDeleted     Type = "user.deleted"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "baseline.events"

// Event is the JSON body of every published message.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	UserID    string    `json:"userId"`
	ItemID    string    `json:"itemId,omitempty"`
	ItemType  string    `json:"itemType,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New returns an event with a fresh id and the current time.
func New(t Type, userID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }
