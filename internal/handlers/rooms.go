package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/VampKunal/IdeaRoom/internal/gateway"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

// RoomUsersResponse is the presence list of a room.
type RoomUsersResponse struct {
	RoomID string           `json:"roomId"`
	Users  []models.Session `json:"users"`
}

// SnapshotsResponse lists durable snapshots, newest first.
type SnapshotsResponse struct {
	RoomID    string            `json:"roomId"`
	Snapshots []models.Snapshot `json:"snapshots"`
}

func (h *Handler) roomID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !gateway.ValidRoomID(id) {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return "", false
	}
	return id, true
}

// RoomState returns the current objects and background of a room.
func (h *Handler) RoomState(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	doc, err := h.rooms.Load(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "room state unavailable")
		return
	}
	h.JSON(w, http.StatusOK, doc.State())
}

// RoomUsers returns the connections currently joined to a room.
func (h *Handler) RoomUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	users, err := h.rooms.ListMembers(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}
	if users == nil {
		users = []models.Session{}
	}
	h.JSON(w, http.StatusOK, RoomUsersResponse{RoomID: id, Users: users})
}

// RoomSnapshots returns durable snapshots of a room. The limit query
// parameter defaults to 20 and is capped at 200.
func (h *Handler) RoomSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	if h.snapshots == nil {
		h.Error(w, http.StatusNotFound, "snapshot store not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	snaps, err := h.snapshots.ListSnapshots(r.Context(), id, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	h.JSON(w, http.StatusOK, SnapshotsResponse{RoomID: id, Snapshots: snaps})
}
