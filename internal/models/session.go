package models

import (
	"time"
)

// Identity is the decoded bearer credential of a connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}

// Session is the ephemeral membership record of one connection. It lives in
// the presence set while the connection is joined and is never persisted
// beyond that.
type Session struct {
	ConnectionID string    `json:"socketId"`
	RoomID       string    `json:"roomId"`
	UserID       string    `json:"userId,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	AvatarURL    string    `json:"avatar,omitempty"`
	CursorColor  string    `json:"color"`
	JoinedAt     time.Time `json:"joinedAt"`
}
