package models

// Room is the metadata the room directory returns for an existing room.
type Room struct {
	RoomID    string `json:"roomId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}
