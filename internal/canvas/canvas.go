// Package canvas implements the pure document transforms behind every room
// mutation: the eight operation kinds, the undo/redo protocol and the
// decision of how each result is broadcast. Nothing here performs I/O.
package canvas

import (
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/protocol"
)

// OpKind names an operation.
type OpKind string

const (
	OpCreate   OpKind = "create"
	OpUpdate   OpKind = "update"
	OpMove     OpKind = "move"
	OpMoveMany OpKind = "move-many"
	OpDelete   OpKind = "delete"
	OpReorder  OpKind = "reorder"
	OpUndo     OpKind = "undo"
	OpRedo     OpKind = "redo"
)

// DefaultHistoryLimit bounds the undo stack when Options leaves it unset.
const DefaultHistoryLimit = 100

// Op is one mutation request against a room document.
type Op struct {
	Kind   OpKind
	Object *models.Object // create, update
	ID     string         // move, delete
	IDs    []string       // move-many, reorder
	Delta  models.Delta   // move, move-many
	Action ReorderAction  // reorder
	Origin string         // connection that issued the op
}

// Scope selects the recipients of a broadcast.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeRoom
	ScopeOthers
)

// Broadcast describes the message to fan out after a change.
type Broadcast struct {
	Scope   Scope
	Type    string
	Payload any
}

// Outcome is the result of applying an operation. When Changed is false the
// document is untouched and nothing must be saved, logged or broadcast.
type Outcome struct {
	Changed   bool
	Doc       *models.Document
	Entry     *models.HistoryEntry
	Event     models.EventType
	Payload   any
	Broadcast Broadcast
}

// Options tunes Apply.
type Options struct {
	Now          int64 // server clock, Unix ms
	HistoryLimit int
}

// Apply validates op and applies it to a copy of doc.
func Apply(doc *models.Document, op Op, opts Options) (*Outcome, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	d := doc.Clone()
	d.Normalize()

	var out *Outcome
	switch op.Kind {
	case OpCreate:
		out = applyCreate(d, op, opts)
	case OpUpdate:
		out = applyUpdate(d, op, opts)
	case OpMove, OpMoveMany:
		out = applyMove(d, op, opts)
	case OpDelete:
		out = applyDelete(d, op, opts)
	case OpReorder:
		out = applyReorder(d, op, opts)
	case OpUndo:
		out = applyUndo(d)
	case OpRedo:
		out = applyRedo(d, opts)
	}
	if !out.Changed {
		return &Outcome{Doc: doc}, nil
	}
	out.Doc = d
	return out, nil
}

func applyCreate(d *models.Document, op Op, opts Options) *Outcome {
	obj := op.Object.Clone()
	if d.IndexOf(obj.ID) >= 0 {
		return &Outcome{}
	}
	obj.CreatedAt = opts.Now
	obj.UpdatedAt = opts.Now
	d.Objects = append(d.Objects, obj)

	after := obj.Clone()
	entry := push(d, models.HistoryEntry{Kind: models.HistoryCreate, After: &after, At: opts.Now}, opts.HistoryLimit)
	return &Outcome{
		Changed:   true,
		Entry:     entry,
		Event:     models.EventObjectCreated,
		Payload:   obj,
		Broadcast: Broadcast{Scope: ScopeRoom, Type: protocol.ObjectCreated, Payload: obj},
	}
}

func applyUpdate(d *models.Document, op Op, opts Options) *Outcome {
	i := d.IndexOf(op.Object.ID)
	if i < 0 {
		return &Outcome{}
	}
	before := d.Objects[i].Clone()
	obj := op.Object.Clone()
	obj.CreatedAt = before.CreatedAt
	obj.UpdatedAt = opts.Now
	d.Objects[i] = obj

	after := obj.Clone()
	entry := push(d, models.HistoryEntry{Kind: models.HistoryUpdate, Before: &before, After: &after, At: opts.Now}, opts.HistoryLimit)
	return &Outcome{
		Changed:   true,
		Entry:     entry,
		Event:     models.EventObjectUpdated,
		Payload:   obj,
		Broadcast: Broadcast{Scope: ScopeOthers, Type: protocol.ObjectUpdated, Payload: obj},
	}
}

func applyMove(d *models.Document, op Op, opts Options) *Outcome {
	ids := op.IDs
	if op.Kind == OpMove {
		ids = []string{op.ID}
	}

	moved := make([]string, 0, len(ids))
	snapshots := make([]models.Object, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := d.IndexOf(id)
		if i < 0 {
			continue
		}
		snapshots = append(snapshots, d.Objects[i].Clone())
		d.Objects[i].Translate(op.Delta)
		d.Objects[i].UpdatedAt = opts.Now
		moved = append(moved, id)
	}
	if len(moved) == 0 {
		return &Outcome{}
	}

	rec := &models.MoveRecord{Before: snapshots, IDs: moved, Delta: op.Delta}
	entry := push(d, models.HistoryEntry{Kind: models.HistoryMove, Move: rec, At: opts.Now}, opts.HistoryLimit)

	payload := protocol.ObjectsMovedPayload{IDs: moved, Delta: op.Delta, Origin: op.Origin}
	b := Broadcast{Scope: ScopeOthers, Type: protocol.ObjectsMoved, Payload: payload}
	if op.Kind == OpMove {
		obj, _ := d.Find(moved[0])
		b = Broadcast{
			Scope:   ScopeOthers,
			Type:    protocol.ObjectMoved,
			Payload: protocol.ObjectMovedPayload{Object: obj.Clone(), Origin: op.Origin},
		}
	}
	return &Outcome{
		Changed:   true,
		Entry:     entry,
		Event:     models.EventObjectsMoved,
		Payload:   payload,
		Broadcast: b,
	}
}

func applyDelete(d *models.Document, op Op, opts Options) *Outcome {
	i := d.IndexOf(op.ID)
	if i < 0 {
		return &Outcome{}
	}
	before := d.Objects[i].Clone()
	d.Objects = append(d.Objects[:i], d.Objects[i+1:]...)

	entry := push(d, models.HistoryEntry{Kind: models.HistoryDelete, Before: &before, Index: i, At: opts.Now}, opts.HistoryLimit)
	payload := protocol.ObjectDeletedPayload{ObjectID: op.ID}
	return &Outcome{
		Changed:   true,
		Entry:     entry,
		Event:     models.EventObjectDeleted,
		Payload:   payload,
		Broadcast: Broadcast{Scope: ScopeRoom, Type: protocol.ObjectDeleted, Payload: payload},
	}
}

type reorderPayload struct {
	IDs    []string      `json:"ids"`
	Action ReorderAction `json:"action"`
	Order  []string      `json:"order"`
}

func applyReorder(d *models.Document, op Op, opts Options) *Outcome {
	targets := make(map[string]bool, len(op.IDs))
	for _, id := range op.IDs {
		if d.IndexOf(id) >= 0 {
			targets[id] = true
		}
	}
	if len(targets) == 0 {
		return &Outcome{}
	}

	before := d.Order()
	d.Objects = reorder(d.Objects, targets, op.Action)
	after := d.Order()
	if sameOrder(before, after) {
		return &Outcome{}
	}

	rec := &models.ReorderRecord{Before: before, After: after}
	entry := push(d, models.HistoryEntry{Kind: models.HistoryReorder, Reorder: rec, At: opts.Now}, opts.HistoryLimit)
	return &Outcome{
		Changed:   true,
		Entry:     entry,
		Event:     models.EventObjectsOrdered,
		Payload:   reorderPayload{IDs: op.IDs, Action: op.Action, Order: after},
		Broadcast: resync(d),
	}
}

func applyUndo(d *models.Document) *Outcome {
	n := len(d.History.Undo)
	if n == 0 {
		return &Outcome{}
	}
	e := d.History.Undo[n-1]
	d.History.Undo = d.History.Undo[:n-1]
	revert(d, e)
	d.History.Redo = append(d.History.Redo, e)

	return &Outcome{
		Changed:   true,
		Entry:     &e,
		Event:     models.EventUndo,
		Payload:   e,
		Broadcast: resync(d),
	}
}

func applyRedo(d *models.Document, opts Options) *Outcome {
	n := len(d.History.Redo)
	if n == 0 {
		return &Outcome{}
	}
	e := d.History.Redo[n-1]
	d.History.Redo = d.History.Redo[:n-1]
	reapply(d, e)
	d.History.Undo = trim(append(d.History.Undo, e), opts.HistoryLimit)

	return &Outcome{
		Changed:   true,
		Entry:     &e,
		Event:     models.EventRedo,
		Payload:   e,
		Broadcast: resync(d),
	}
}

// revert applies the inverse of e.
func revert(d *models.Document, e models.HistoryEntry) {
	switch e.Kind {
	case models.HistoryCreate:
		removeID(d, e.After.ID)
	case models.HistoryDelete:
		insertAt(d, e.Before.Clone(), e.Index)
	case models.HistoryUpdate:
		if i := d.IndexOf(e.Before.ID); i >= 0 {
			d.Objects[i] = e.Before.Clone()
		}
	case models.HistoryMove:
		for _, snap := range e.Move.Before {
			if i := d.IndexOf(snap.ID); i >= 0 {
				restoreGeometry(&d.Objects[i], snap)
			}
		}
	case models.HistoryReorder:
		d.Objects = arrange(d.Objects, e.Reorder.Before)
	}
}

// reapply repeats the forward effect of e.
func reapply(d *models.Document, e models.HistoryEntry) {
	switch e.Kind {
	case models.HistoryCreate:
		if d.IndexOf(e.After.ID) < 0 {
			d.Objects = append(d.Objects, e.After.Clone())
		}
	case models.HistoryDelete:
		removeID(d, e.Before.ID)
	case models.HistoryUpdate:
		if i := d.IndexOf(e.After.ID); i >= 0 {
			d.Objects[i] = e.After.Clone()
		}
	case models.HistoryMove:
		for _, id := range e.Move.IDs {
			if i := d.IndexOf(id); i >= 0 {
				d.Objects[i].Translate(e.Move.Delta)
				d.Objects[i].UpdatedAt = e.At
			}
		}
	case models.HistoryReorder:
		d.Objects = arrange(d.Objects, e.Reorder.After)
	}
}

// restoreGeometry puts back the position captured before a move: the anchor
// for boxed variants, the full point array for strokes.
func restoreGeometry(o *models.Object, snap models.Object) {
	o.X, o.Y = snap.X, snap.Y
	if snap.Points != nil {
		o.Points = make([]models.Point, len(snap.Points))
		copy(o.Points, snap.Points)
	}
	o.UpdatedAt = snap.UpdatedAt
}

func push(d *models.Document, e models.HistoryEntry, limit int) *models.HistoryEntry {
	d.History.Undo = trim(append(d.History.Undo, e), limit)
	d.History.Redo = []models.HistoryEntry{}
	return &e
}

func trim(stack []models.HistoryEntry, limit int) []models.HistoryEntry {
	if limit > 0 && len(stack) > limit {
		return append([]models.HistoryEntry(nil), stack[len(stack)-limit:]...)
	}
	return stack
}

func removeID(d *models.Document, id string) {
	if i := d.IndexOf(id); i >= 0 {
		d.Objects = append(d.Objects[:i], d.Objects[i+1:]...)
	}
}

func insertAt(d *models.Document, o models.Object, i int) {
	if d.IndexOf(o.ID) >= 0 {
		return
	}
	if i < 0 || i > len(d.Objects) {
		i = len(d.Objects)
	}
	d.Objects = append(d.Objects, models.Object{})
	copy(d.Objects[i+1:], d.Objects[i:])
	d.Objects[i] = o
}

func resync(d *models.Document) Broadcast {
	return Broadcast{Scope: ScopeRoom, Type: protocol.RoomState, Payload: d.State()}
}
