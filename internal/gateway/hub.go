package gateway

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/canvas"
	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/processor"
	"github.com/VampKunal/IdeaRoom/internal/protocol"
)

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	Members     map[string]int `json:"members"`
}

type opKind int

const (
	opConnect opKind = iota
	opDisconnect
	opJoin
	opLeave
	opBroadcast
	opUnicast
	opStats
)

// hubOp is one request to the run loop. Every request travels over the same
// channel, so membership changes and frames are applied in the order they
// were issued.
type hubOp struct {
	kind   opKind
	c      *client
	room   string
	except string // connection id skipped for others-only frames
	data   []byte
	done   chan struct{}
	stats  chan Stats
}

// Hub tracks connections and room membership and fans frames out to
// members. All state is owned by the Run loop.
type Hub struct {
	clients map[*client]string          // connection -> joined room
	rooms   map[string]map[*client]bool // room -> members

	ops  chan hubOp
	done chan struct{}

	logger zerolog.Logger
}

// NewHub creates a hub. Run must be started before use.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]string),
		rooms:   make(map[string]map[*client]bool),
		ops:     make(chan hubOp, 256),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// Run owns the hub state until ctx is cancelled. On exit every connection
// is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.kick()
			}
			return
		case op := <-h.ops:
			h.apply(op)
		}
	}
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opConnect:
		h.clients[op.c] = ""
	case opDisconnect:
		h.remove(op.c)
		delete(h.clients, op.c)
	case opJoin:
		h.remove(op.c)
		if _, ok := h.clients[op.c]; ok {
			h.clients[op.c] = op.room
			if h.rooms[op.room] == nil {
				h.rooms[op.room] = make(map[*client]bool)
			}
			h.rooms[op.room][op.c] = true
		}
	case opLeave:
		h.remove(op.c)
	case opBroadcast:
		for c := range h.rooms[op.room] {
			if c.id != op.except {
				h.deliver(c, op.data)
			}
		}
	case opUnicast:
		if _, ok := h.clients[op.c]; ok {
			h.deliver(op.c, op.data)
		}
	case opStats:
		s := Stats{Connections: len(h.clients), Rooms: len(h.rooms), Members: make(map[string]int, len(h.rooms))}
		for room, members := range h.rooms {
			s.Members[room] = len(members)
		}
		op.stats <- s
	}
	if op.done != nil {
		close(op.done)
	}
}

func (h *Hub) deliver(c *client, data []byte) {
	if c.enqueue(data) {
		return
	}
	metrics.WSSlowConsumers.Inc()
	h.logger.Warn().Str("conn_id", c.id).Str("room_id", h.clients[c]).Msg("send buffer full, dropping connection")
	h.remove(c)
}

// remove drops c from its room, keeping the connection registered.
func (h *Hub) remove(c *client) {
	room := h.clients[c]
	if room == "" {
		return
	}
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	h.clients[c] = ""
}

// submit hands op to the run loop. It reports false once the hub stopped.
func (h *Hub) submit(op hubOp) bool {
	select {
	case h.ops <- op:
	case <-h.done:
		return false
	}
	if op.done == nil {
		return true
	}
	select {
	case <-op.done:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) register(c *client) bool {
	return h.submit(hubOp{kind: opConnect, c: c, done: make(chan struct{})})
}

func (h *Hub) unregister(c *client) {
	h.submit(hubOp{kind: opDisconnect, c: c, done: make(chan struct{})})
}

// join moves c into room. Frames issued before the call are not delivered
// to c under the new room.
func (h *Hub) join(c *client, room string) {
	h.submit(hubOp{kind: opJoin, c: c, room: room, done: make(chan struct{})})
}

func (h *Hub) leave(c *client) {
	h.submit(hubOp{kind: opLeave, c: c, done: make(chan struct{})})
}

// unicast queues a frame for c behind every frame issued before it.
func (h *Hub) unicast(c *client, data []byte) {
	h.submit(hubOp{kind: opUnicast, c: c, data: data})
}

// Send fans a frame out to room, skipping the connection except.
func (h *Hub) Send(room, except string, data []byte) {
	h.submit(hubOp{kind: opBroadcast, room: room, except: except, data: data})
}

// Publish encodes b and fans it out according to its scope.
func (h *Hub) Publish(room, origin string, b canvas.Broadcast) {
	if b.Scope == canvas.ScopeNone {
		return
	}
	data, err := protocol.Encode(b.Type, b.Payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", b.Type).Msg("encode broadcast failed")
		return
	}
	except := ""
	if b.Scope == canvas.ScopeOthers {
		except = origin
	}
	h.Send(room, except, data)
}

// Committed relays a processor commit to the room. Installed as the
// processor's commit hook it runs on the room worker, so frames reach the
// hub in commit order.
func (h *Hub) Committed(room string, res *processor.Result) {
	h.Publish(room, res.Origin, res.Broadcast)
}

// Stats returns current counts. It returns zero Stats after Run exits.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	if !h.submit(hubOp{kind: opStats, stats: reply, done: make(chan struct{})}) {
		return Stats{Members: map[string]int{}}
	}
	return <-reply
}
