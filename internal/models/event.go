package models

import (
	"encoding/json"
	"time"
)

// EventType names a committed mutation in the event log.
type EventType string

const (
	EventObjectCreated  EventType = "object.created"
	EventObjectUpdated  EventType = "object.updated"
	EventObjectsMoved   EventType = "objects.moved"
	EventObjectDeleted  EventType = "object.deleted"
	EventObjectsOrdered EventType = "objects.reordered"
	EventUndo           EventType = "history.undo"
	EventRedo           EventType = "history.redo"
)

// Event is an immutable fact describing one committed mutation.
type Event struct {
	ID              string          `json:"id"` // ULID
	RoomID          string          `json:"roomId"`
	Type            EventType       `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	ServerTimestamp int64           `json:"serverTimestamp"` // Unix ms
}

// Snapshot is a durably persisted batch of events for one room.
type Snapshot struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"createdAt"`
}
