// Package gateway terminates client websockets. It owns room membership and
// presence, relays cursors and hands every canvas mutation to the mutation
// processor.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/VampKunal/IdeaRoom/internal/canvas"
	"github.com/VampKunal/IdeaRoom/internal/directory"
	"github.com/VampKunal/IdeaRoom/internal/identity"
	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/processor"
	"github.com/VampKunal/IdeaRoom/internal/protocol"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidRoomID reports whether id is usable as a room id.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// RoomStore is the part of the room state store the gateway reads and the
// presence set it maintains.
type RoomStore interface {
	Load(ctx context.Context, roomID string) (*models.Document, error)
	AddMember(ctx context.Context, sess *models.Session) error
	RemoveMember(ctx context.Context, roomID, connID string) error
	ListMembers(ctx context.Context, roomID string) ([]models.Session, error)
}

// Mutator runs work on a room's serialized worker.
type Mutator interface {
	Submit(ctx context.Context, roomID string, op canvas.Op) (*processor.Result, error)
	Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error
}

// Config tunes the gateway.
type Config struct {
	AllowedOrigins []string // "*" or empty allows any origin
	AuthRequired   bool
	MutationRate   float64 // per connection, per second; 0 disables limiting
	MutationBurst  int
	RequestTimeout time.Duration
}

// Gateway serves the realtime endpoint.
type Gateway struct {
	hub      *Hub
	rooms    RoomStore
	proc     Mutator
	dir      directory.Directory
	verifier identity.Verifier
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a gateway. verifier may be nil, in which case every
// connection is anonymous.
func New(hub *Hub, rooms RoomStore, proc Mutator, dir directory.Directory, verifier identity.Verifier, cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MutationRate > 0 && cfg.MutationBurst <= 0 {
		cfg.MutationBurst = 1
	}
	g := &Gateway{
		hub:      hub,
		rooms:    rooms,
		proc:     proc,
		dir:      dir,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeHTTP authenticates the request and upgrades it to a websocket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident, err := g.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	var limiter *rate.Limiter
	if g.cfg.MutationRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.MutationRate), g.cfg.MutationBurst)
	}
	c := newClient(uuid.NewString(), conn, ident, limiter)
	if !g.hub.register(c) {
		conn.Close()
		return
	}
	metrics.WSConnections.Inc()

	log := g.logger.Debug().Str("conn_id", c.id)
	if ident != nil {
		log = log.Str("user_id", ident.UserID)
	}
	log.Msg("connected")

	go c.writePump()
	g.readPump(c)
}

func (g *Gateway) authenticate(r *http.Request) (*models.Identity, error) {
	token := identity.TokenFromRequest(r)
	if token == "" || g.verifier == nil {
		if g.cfg.AuthRequired {
			return nil, identity.ErrNoToken
		}
		return nil, nil
	}
	return g.verifier.Verify(token)
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
		g.leave(ctx, c)
		cancel()
		g.hub.unregister(c)
		c.kick()
		metrics.WSConnections.Dec()
		g.logger.Debug().Str("conn_id", c.id).Msg("disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				g.logger.Debug().Err(err).Str("conn_id", c.id).Msg("read failed")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			g.sendError(c, "", protocol.CodeValidation, "malformed message")
			continue
		}
		g.dispatch(c, env)
	}
}

func (g *Gateway) dispatch(c *client, env protocol.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
	defer cancel()

	label := env.Type
	switch env.Type {
	case protocol.JoinRoom:
		var req protocol.JoinRoomRequest
		if g.decode(c, env, &req) {
			g.join(ctx, c, req.RoomID)
		}
	case protocol.LeaveRoom:
		g.leave(ctx, c)
	case protocol.CursorMove:
		var req protocol.CursorMoveRequest
		if g.decode(c, env, &req) {
			g.cursor(c, req)
		}
	case protocol.RequestRoomState:
		g.sendRoomState(ctx, c)
	case protocol.ObjectCreate, protocol.ObjectUpdate, protocol.ObjectMove, protocol.ObjectsMove,
		protocol.ObjectDelete, protocol.ObjectReorder, protocol.Undo, protocol.Redo:
		if op, ok := g.decodeOp(c, env); ok {
			g.mutate(ctx, c, env.Type, op)
		}
	default:
		label = "unknown"
		g.sendError(c, env.Type, protocol.CodeValidation, "unknown message type")
	}
	metrics.WSMessages.WithLabelValues(label).Inc()
}

// decode unpacks the envelope data into v, answering the client on failure.
func (g *Gateway) decode(c *client, env protocol.Envelope, v any) bool {
	if len(env.Data) == 0 {
		g.sendError(c, env.Type, protocol.CodeValidation, "missing data")
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		g.sendError(c, env.Type, protocol.CodeValidation, err.Error())
		return false
	}
	return true
}

func (g *Gateway) decodeOp(c *client, env protocol.Envelope) (canvas.Op, bool) {
	switch env.Type {
	case protocol.ObjectCreate, protocol.ObjectUpdate:
		var req protocol.ObjectRequest
		if !g.decode(c, env, &req) {
			return canvas.Op{}, false
		}
		kind := canvas.OpCreate
		if env.Type == protocol.ObjectUpdate {
			kind = canvas.OpUpdate
		}
		return canvas.Op{Kind: kind, Object: &req.Object}, true
	case protocol.ObjectMove:
		var req protocol.ObjectMoveRequest
		if !g.decode(c, env, &req) {
			return canvas.Op{}, false
		}
		return canvas.Op{Kind: canvas.OpMove, ID: req.ObjectID, Delta: req.Delta}, true
	case protocol.ObjectsMove:
		var req protocol.ObjectsMoveRequest
		if !g.decode(c, env, &req) {
			return canvas.Op{}, false
		}
		return canvas.Op{Kind: canvas.OpMoveMany, IDs: req.IDs, Delta: req.Delta}, true
	case protocol.ObjectDelete:
		var req protocol.ObjectDeleteRequest
		if !g.decode(c, env, &req) {
			return canvas.Op{}, false
		}
		return canvas.Op{Kind: canvas.OpDelete, ID: req.ObjectID}, true
	case protocol.ObjectReorder:
		var req protocol.ReorderRequest
		if !g.decode(c, env, &req) {
			return canvas.Op{}, false
		}
		return canvas.Op{Kind: canvas.OpReorder, IDs: req.IDs, Action: canvas.ReorderAction(req.Action)}, true
	case protocol.Undo:
		return canvas.Op{Kind: canvas.OpUndo}, true
	default:
		return canvas.Op{Kind: canvas.OpRedo}, true
	}
}

func (g *Gateway) join(ctx context.Context, c *client, roomID string) {
	if !ValidRoomID(roomID) {
		g.sendError(c, protocol.JoinRoom, protocol.CodeValidation, "invalid room id")
		return
	}

	room, err := g.dir.Lookup(ctx, roomID)
	if err != nil {
		code, msg := protocol.CodeUnavailable, "room directory unavailable"
		if errors.Is(err, directory.ErrRoomNotFound) {
			code, msg = protocol.CodeNotFound, "room not found"
		} else {
			g.logger.Warn().Err(err).Str("room_id", roomID).Msg("room lookup failed")
		}
		metrics.RoomJoins.WithLabelValues(code).Inc()
		g.sendError(c, protocol.JoinRoom, code, msg)
		return
	}

	prev := c.session

	sess := &models.Session{
		ConnectionID: c.id,
		RoomID:       room.RoomID,
		CursorColor:  c.color,
		JoinedAt:     time.Now().UTC(),
	}
	if sess.RoomID == "" {
		sess.RoomID = roomID
	}
	if c.identity != nil {
		sess.UserID = c.identity.UserID
		sess.DisplayName = c.identity.DisplayName
		sess.AvatarURL = c.identity.AvatarURL
	}

	if err := g.rooms.AddMember(ctx, sess); err != nil {
		g.joinFailed(c, sess.RoomID, err)
		return
	}

	// Loading the document and entering the room happen on the room worker,
	// so the joiner sees every commit exactly once: either inside room-state
	// or as a later broadcast. The wait is not cut short by ctx so the
	// outcome is known before the previous room is released.
	err = g.proc.Do(context.WithoutCancel(ctx), sess.RoomID, func(wctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := g.rooms.Load(wctx, sess.RoomID)
		if err != nil {
			return err
		}
		frame, err := protocol.Encode(protocol.RoomState, doc.State())
		if err != nil {
			return err
		}
		g.hub.join(c, sess.RoomID)
		g.hub.unicast(c, frame)
		return nil
	})
	if err != nil {
		// The connection stays in its previous room, if any.
		if prev == nil || prev.RoomID != sess.RoomID {
			g.rooms.RemoveMember(context.Background(), sess.RoomID, c.id)
		} else {
			g.rooms.AddMember(context.Background(), prev)
		}
		g.joinFailed(c, sess.RoomID, err)
		return
	}

	c.session = sess
	if prev != nil && prev.RoomID != sess.RoomID {
		g.departed(context.WithoutCancel(ctx), c, prev)
	}
	metrics.RoomJoins.WithLabelValues("ok").Inc()
	g.logger.Info().Str("conn_id", c.id).Str("room_id", sess.RoomID).Str("user_id", sess.UserID).Msg("joined room")

	g.send(sess.RoomID, c.id, protocol.UserJoined, sess)
	g.sendUsers(ctx, sess.RoomID)
}

func (g *Gateway) joinFailed(c *client, roomID string, err error) {
	g.logger.Warn().Err(err).Str("conn_id", c.id).Str("room_id", roomID).Msg("join failed")
	metrics.RoomJoins.WithLabelValues(protocol.CodeUnavailable).Inc()
	g.sendError(c, protocol.JoinRoom, protocol.CodeUnavailable, "room state unavailable")
}

// leave removes c from its room. It is a no-op when c is not joined.
func (g *Gateway) leave(ctx context.Context, c *client) {
	sess := c.session
	if sess == nil {
		return
	}
	c.session = nil
	g.hub.leave(c)
	g.departed(ctx, c, sess)
}

// departed drops c's presence in sess's room and tells the remaining
// members. The hub membership must already be gone.
func (g *Gateway) departed(ctx context.Context, c *client, sess *models.Session) {
	if err := g.rooms.RemoveMember(ctx, sess.RoomID, c.id); err != nil {
		g.logger.Warn().Err(err).Str("conn_id", c.id).Str("room_id", sess.RoomID).Msg("remove presence failed")
	}
	g.logger.Info().Str("conn_id", c.id).Str("room_id", sess.RoomID).Msg("left room")

	g.send(sess.RoomID, "", protocol.UserLeft, protocol.UserLeftPayload{SocketID: c.id, UserID: sess.UserID})
	g.sendUsers(ctx, sess.RoomID)
}

// cursor relays a pointer position to the rest of the room. Positions are
// never stored. Moves from a connection outside any room are dropped.
func (g *Gateway) cursor(c *client, req protocol.CursorMoveRequest) {
	sess := c.session
	if sess == nil {
		return
	}
	g.send(sess.RoomID, c.id, protocol.CursorMoved, protocol.CursorMovedPayload{
		SocketID: c.id,
		UserID:   sess.UserID,
		Position: req.Position,
		Color:    c.color,
	})
}

func (g *Gateway) mutate(ctx context.Context, c *client, typ string, op canvas.Op) {
	roomID := c.room()
	if roomID == "" {
		g.sendError(c, typ, protocol.CodeNotJoined, "join a room first")
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		g.sendError(c, typ, protocol.CodeRateLimited, "too many changes, slow down")
		return
	}

	op.Origin = c.id
	if _, err := g.proc.Submit(ctx, roomID, op); err != nil {
		code, msg := errorCode(err)
		if code == protocol.CodeInternal || code == protocol.CodeUnavailable {
			g.logger.Error().Err(err).Str("conn_id", c.id).Str("room_id", roomID).Str("type", typ).Msg("mutation failed")
		}
		g.sendError(c, typ, code, msg)
	}
}

func (g *Gateway) sendRoomState(ctx context.Context, c *client) {
	roomID := c.room()
	if roomID == "" {
		g.sendError(c, protocol.RequestRoomState, protocol.CodeNotJoined, "join a room first")
		return
	}
	err := g.proc.Do(ctx, roomID, func(wctx context.Context) error {
		doc, err := g.rooms.Load(wctx, roomID)
		if err != nil {
			return err
		}
		frame, err := protocol.Encode(protocol.RoomState, doc.State())
		if err != nil {
			return err
		}
		g.hub.unicast(c, frame)
		return nil
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("conn_id", c.id).Str("room_id", roomID).Msg("room state load failed")
		g.sendError(c, protocol.RequestRoomState, protocol.CodeUnavailable, "room state unavailable")
	}
}

// errorCode maps a mutation failure onto the code sent to the client.
func errorCode(err error) (code, msg string) {
	switch {
	case errors.Is(err, canvas.ErrValidation):
		return protocol.CodeValidation, err.Error()
	case errors.Is(err, store.ErrConflict):
		return protocol.CodeConflict, "room is busy, retry"
	case errors.Is(err, processor.ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, processor.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return protocol.CodeUnavailable, "room state unavailable"
	default:
		return protocol.CodeInternal, "internal error"
	}
}

func (g *Gateway) send(roomID, except, typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		g.logger.Error().Err(err).Str("type", typ).Msg("encode frame failed")
		return
	}
	g.hub.Send(roomID, except, data)
}

func (g *Gateway) sendUsers(ctx context.Context, roomID string) {
	users, err := g.rooms.ListMembers(ctx, roomID)
	if err != nil {
		g.logger.Warn().Err(err).Str("room_id", roomID).Msg("list presence failed")
		return
	}
	g.send(roomID, "", protocol.RoomUsers, protocol.RoomUsersPayload{RoomID: roomID, Users: users})
}

// sendError answers only the connection whose request failed.
func (g *Gateway) sendError(c *client, request, code, msg string) {
	data, err := protocol.Encode(protocol.Error, protocol.ErrorPayload{Code: code, Message: msg, Request: request})
	if err != nil {
		return
	}
	g.hub.unicast(c, data)
}

// Stats reports hub counts.
func (g *Gateway) Stats() Stats {
	return g.hub.Stats()
}
