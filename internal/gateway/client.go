package gateway

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 512 << 10
	sendBuffer     = 256
)

var cursorPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#469990", "#9a6324", "#800000",
}

func cursorColor(connID string) string {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return cursorPalette[h.Sum32()%uint32(len(cursorPalette))]
}

// client is one websocket connection. Only the read loop touches session.
type client struct {
	id       string
	conn     *websocket.Conn
	identity *models.Identity
	color    string
	limiter  *rate.Limiter

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	session *models.Session
}

func newClient(id string, conn *websocket.Conn, ident *models.Identity, limiter *rate.Limiter) *client {
	return &client{
		id:       id,
		conn:     conn,
		identity: ident,
		color:    cursorColor(id),
		limiter:  limiter,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. A full buffer marks the client
// as too slow, closes it and reports false. Frames for a closing client are
// discarded.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.kick()
		return false
	}
}

// kick stops the write loop, which closes the connection and in turn ends
// the read loop.
func (c *client) kick() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *client) room() string {
	if c.session == nil {
		return ""
	}
	return c.session.RoomID
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.kick()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.kick()
				return
			}
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
