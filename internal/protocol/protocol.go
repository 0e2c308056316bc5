// Package protocol defines the message-typed realtime wire format shared by
// the gateway and Go clients. Every frame is a JSON Envelope.
package protocol

import (
	"encoding/json"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

// Client to server message types.
const (
	JoinRoom         = "join-room"
	LeaveRoom        = "leave-room"
	CursorMove       = "cursor-move"
	ObjectCreate     = "object-create"
	ObjectUpdate     = "object-update"
	ObjectMove       = "object-move"
	ObjectsMove      = "objects-move"
	ObjectDelete     = "object-delete"
	ObjectReorder    = "object-reorder"
	Undo             = "undo"
	Redo             = "redo"
	RequestRoomState = "request-room-state"
)

// Server to client message types.
const (
	RoomState     = "room-state"
	ObjectCreated = "object-created"
	ObjectUpdated = "object-updated"
	ObjectMoved   = "object-moved"
	ObjectsMoved  = "objects-moved"
	ObjectDeleted = "object-deleted"
	CursorMoved   = "cursor-moved"
	UserJoined    = "user-joined"
	UserLeft      = "user-left"
	RoomUsers     = "room-users"
	Error         = "error"
)

// Error codes carried by Error messages.
const (
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeConflict    = "conflict"
	CodeRateLimited = "rate_limited"
	CodeNotJoined   = "not_joined"
	CodeInternal    = "internal"
)

// Envelope is a single frame in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame of the given type around data.
func Encode(typ string, data any) ([]byte, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// JoinRoomRequest is the join-room payload.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// CursorMoveRequest is the cursor-move payload.
type CursorMoveRequest struct {
	Position models.Point `json:"position"`
}

// ObjectRequest is the object-create and object-update payload.
type ObjectRequest struct {
	Object models.Object `json:"object"`
}

// ObjectMoveRequest is the object-move payload.
type ObjectMoveRequest struct {
	ObjectID string       `json:"objectId"`
	Delta    models.Delta `json:"delta"`
}

// ObjectsMoveRequest is the objects-move payload.
type ObjectsMoveRequest struct {
	IDs   []string     `json:"ids"`
	Delta models.Delta `json:"delta"`
}

// ObjectDeleteRequest is the object-delete payload.
type ObjectDeleteRequest struct {
	ObjectID string `json:"objectId"`
}

// ReorderRequest is the object-reorder payload. Action is one of
// "front", "back", "forward", "backward".
type ReorderRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
}

// ObjectMovedPayload is sent to the other members after a single-object move.
type ObjectMovedPayload struct {
	Object models.Object `json:"object"`
	Origin string        `json:"socketId"`
}

// ObjectsMovedPayload is sent to the other members after a multi-object move.
// Origin lets the sender recognise the echo of its own move.
type ObjectsMovedPayload struct {
	IDs    []string     `json:"ids"`
	Delta  models.Delta `json:"delta"`
	Origin string       `json:"socketId"`
}

// ObjectDeletedPayload is the object-deleted payload.
type ObjectDeletedPayload struct {
	ObjectID string `json:"objectId"`
}

// CursorMovedPayload is the cursor-moved payload.
type CursorMovedPayload struct {
	SocketID string       `json:"socketId"`
	UserID   string       `json:"userId,omitempty"`
	Position models.Point `json:"position"`
	Color    string       `json:"color"`
}

// UserLeftPayload is the user-left payload.
type UserLeftPayload struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId,omitempty"`
}

// RoomUsersPayload is the presence list.
type RoomUsersPayload struct {
	RoomID string           `json:"roomId"`
	Users  []models.Session `json:"users"`
}

// ErrorPayload is sent only to the connection whose request failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}
