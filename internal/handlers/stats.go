package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Connections    int            `json:"connections"`
	LocalRooms     int            `json:"local_rooms"`
	Members        map[string]int `json:"members"`
	ActiveRooms    int            `json:"active_rooms"`
	RoomWorkers    int            `json:"room_workers"`
	TotalSnapshots int64          `json:"total_snapshots"`
	SnapshotsHuman string         `json:"snapshots_human,omitempty"`
	LastSnapshot   string         `json:"last_snapshot"`
}

// Stats returns live realtime counts for this instance plus cluster-wide
// presence and snapshot totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatsResponse{Members: map[string]int{}, LastSnapshot: "no snapshots yet"}

	if h.live != nil {
		s := h.live.Stats()
		resp.Connections = s.Connections
		resp.LocalRooms = s.Rooms
		resp.Members = s.Members
	}
	if h.workers != nil {
		resp.RoomWorkers = h.workers.ActiveRooms()
	}

	active, err := h.rooms.ActiveRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "room state unavailable")
		return
	}
	resp.ActiveRooms = len(active)

	if h.snapshots != nil {
		total, err := h.snapshots.CountSnapshots(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count snapshots")
			return
		}
		resp.TotalSnapshots = total
		resp.SnapshotsHuman = humanize.Comma(total)

		last, err := h.snapshots.LatestSnapshotAt(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to get last snapshot")
			return
		}
		if last != nil {
			resp.LastSnapshot = humanize.Time(*last)
		}
	}

	h.JSON(w, http.StatusOK, resp)
}
