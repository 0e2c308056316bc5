package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/VampKunal/IdeaRoom/internal/gateway"
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

// RoomReader is the read side of the room state store.
type RoomReader interface {
	Ping(ctx context.Context) error
	Load(ctx context.Context, roomID string) (*models.Document, error)
	ListMembers(ctx context.Context, roomID string) ([]models.Session, error)
	ActiveRooms(ctx context.Context) ([]string, error)
}

// LiveStats reports in-process realtime counters.
type LiveStats interface {
	Stats() gateway.Stats
}

// WorkerCounter reports live room workers.
type WorkerCounter interface {
	ActiveRooms() int
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	rooms     RoomReader
	snapshots store.SnapshotStore // nil when no snapshot store is configured
	live      LiveStats
	workers   WorkerCounter
}

// NewHandler creates a new Handler. snapshots, live and workers may be nil.
func NewHandler(rooms RoomReader, snapshots store.SnapshotStore, live LiveStats, workers WorkerCounter) *Handler {
	return &Handler{rooms: rooms, snapshots: snapshots, live: live, workers: workers}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
