// Package directory answers whether a room exists.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrUnavailable  = errors.New("room directory unavailable")
)

// Directory looks up room metadata.
type Directory interface {
	Lookup(ctx context.Context, roomID string) (*models.Room, error)
}

// HTTPDirectory queries GET {base}/room/{id} on the room service.
type HTTPDirectory struct {
	base   string
	client *http.Client
}

// NewHTTPDirectory returns a directory backed by the service at baseURL.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPDirectory{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Lookup returns ErrRoomNotFound for an unknown room and ErrUnavailable for
// any other failure.
func (d *HTTPDirectory) Lookup(ctx context.Context, roomID string) (*models.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/room/"+url.PathEscape(roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrRoomNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var room models.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	if room.RoomID == "" {
		room.RoomID = roomID
	}
	return &room, nil
}

// Static accepts every room. Used in development when no directory service
// is configured.
type Static struct{}

func (Static) Lookup(ctx context.Context, roomID string) (*models.Room, error) {
	return &models.Room{RoomID: roomID, Title: roomID, Status: "active"}, nil
}
