// Package roomclient provides a websocket client for IdeaRoom canvas rooms.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/protocol"
)

const writeWait = 10 * time.Second

// ErrClosed is returned once the connection has gone away.
var ErrClosed = errors.New("roomclient: connection closed")

// ServerError is an error frame sent by the server in reply to a request.
type ServerError protocol.ErrorPayload

func (e *ServerError) Error() string {
	if e.Request != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Request, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client is a single realtime connection.
type Client struct {
	conn   *websocket.Conn
	events chan protocol.Envelope
	done   chan struct{}
	once   sync.Once

	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// Dial connects to the websocket endpoint at url. An empty token connects
// anonymously.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan protocol.Envelope, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers every frame the server sends. The channel is closed when
// the connection ends; Err then reports why.
func (c *Client) Events() <-chan protocol.Envelope {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrClosed
			}
			c.setErr(err)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case c.events <- env:
		case <-c.done:
			c.setErr(ErrClosed)
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Wait returns the next frame of type typ, discarding others. An error
// frame arriving first is returned as a *ServerError.
func (c *Client) Wait(ctx context.Context, typ string) (protocol.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		case env, ok := <-c.events:
			if !ok {
				if err := c.Err(); err != nil {
					return protocol.Envelope{}, err
				}
				return protocol.Envelope{}, ErrClosed
			}
			if env.Type == typ {
				return env, nil
			}
			if env.Type == protocol.Error {
				var p protocol.ErrorPayload
				json.Unmarshal(env.Data, &p)
				se := ServerError(p)
				return env, &se
			}
		}
	}
}

func (c *Client) send(typ string, data any) error {
	frame, err := protocol.Encode(typ, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Join enters a room. The server answers with room-state.
func (c *Client) Join(roomID string) error {
	return c.send(protocol.JoinRoom, protocol.JoinRoomRequest{RoomID: roomID})
}

// JoinState joins a room and waits for its state.
func (c *Client) JoinState(ctx context.Context, roomID string) (*models.RoomState, error) {
	if err := c.Join(roomID); err != nil {
		return nil, err
	}
	env, err := c.Wait(ctx, protocol.RoomState)
	if err != nil {
		return nil, err
	}
	var state models.RoomState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		return nil, fmt.Errorf("decode room state: %w", err)
	}
	return &state, nil
}

// Leave exits the current room.
func (c *Client) Leave() error {
	return c.send(protocol.LeaveRoom, nil)
}

// MoveCursor shares the pointer position with the room.
func (c *Client) MoveCursor(p models.Point) error {
	return c.send(protocol.CursorMove, protocol.CursorMoveRequest{Position: p})
}

// Create adds an object to the canvas.
func (c *Client) Create(obj models.Object) error {
	return c.send(protocol.ObjectCreate, protocol.ObjectRequest{Object: obj})
}

// Update replaces an object.
func (c *Client) Update(obj models.Object) error {
	return c.send(protocol.ObjectUpdate, protocol.ObjectRequest{Object: obj})
}

// Move translates one object.
func (c *Client) Move(id string, d models.Delta) error {
	return c.send(protocol.ObjectMove, protocol.ObjectMoveRequest{ObjectID: id, Delta: d})
}

// MoveMany translates several objects as one undoable step.
func (c *Client) MoveMany(ids []string, d models.Delta) error {
	return c.send(protocol.ObjectsMove, protocol.ObjectsMoveRequest{IDs: ids, Delta: d})
}

// Delete removes an object.
func (c *Client) Delete(id string) error {
	return c.send(protocol.ObjectDelete, protocol.ObjectDeleteRequest{ObjectID: id})
}

// Reorder changes stacking order. action is "front", "back", "forward" or
// "backward".
func (c *Client) Reorder(ids []string, action string) error {
	return c.send(protocol.ObjectReorder, protocol.ReorderRequest{IDs: ids, Action: action})
}

func (c *Client) Undo() error { return c.send(protocol.Undo, nil) }

func (c *Client) Redo() error { return c.send(protocol.Redo, nil) }

// RequestState asks for a fresh room-state.
func (c *Client) RequestState() error {
	return c.send(protocol.RequestRoomState, nil)
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
