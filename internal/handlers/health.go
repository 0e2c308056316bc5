package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint. The room state store is
// required; the snapshot store is checked only when configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check Redis
	if h.rooms != nil {
		checks["redis"] = ping(ctx, h.rooms.Ping)
	} else {
		checks["redis"] = Check{Status: "fail", Message: "not configured"}
	}
	if checks["redis"].Status == "fail" {
		allHealthy = false
	}

	// Check snapshot store
	if h.snapshots != nil {
		checks["snapshots"] = ping(ctx, h.snapshots.Ping)
		if checks["snapshots"].Status == "fail" {
			allHealthy = false
		}
	} else {
		checks["snapshots"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hostname, _ := os.Hostname()
	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  hostname,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

func ping(ctx context.Context, fn func(context.Context) error) Check {
	start := time.Now()
	if err := fn(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Websocket string   `json:"websocket"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "IdeaRoom sync",
		Version:   version,
		Websocket: "/ws",
		Endpoints: []string{
			"GET /health",
			"GET /metrics",
			"GET /stats",
			"GET /rooms/{id}/state",
			"GET /rooms/{id}/users",
			"GET /rooms/{id}/snapshots",
		},
	})
}
