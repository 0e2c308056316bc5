package models

// Background holds room-wide canvas settings.
type Background struct {
	Color string `json:"color"`
	Grid  bool   `json:"grid"`
}

// DefaultBackground is applied to freshly created documents.
var DefaultBackground = Background{Color: "#ffffff"}

// Document is the full mutable state of one room.
type Document struct {
	Objects    []Object   `json:"objects"`
	History    History    `json:"history"`
	Background Background `json:"background"`
}

// History holds the undo and redo stacks. The top of each stack is the
// last element.
type History struct {
	Undo []HistoryEntry `json:"undo"`
	Redo []HistoryEntry `json:"redo"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Objects:    []Object{},
		History:    History{Undo: []HistoryEntry{}, Redo: []HistoryEntry{}},
		Background: DefaultBackground,
	}
}

// Normalize replaces nil slices so the JSON form always carries arrays.
func (d *Document) Normalize() {
	if d.Objects == nil {
		d.Objects = []Object{}
	}
	if d.History.Undo == nil {
		d.History.Undo = []HistoryEntry{}
	}
	if d.History.Redo == nil {
		d.History.Redo = []HistoryEntry{}
	}
	if d.Background.Color == "" {
		d.Background.Color = DefaultBackground.Color
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		Objects:    cloneObjects(d.Objects),
		Background: d.Background,
		History: History{
			Undo: make([]HistoryEntry, len(d.History.Undo)),
			Redo: make([]HistoryEntry, len(d.History.Redo)),
		},
	}
	for i, e := range d.History.Undo {
		c.History.Undo[i] = e.Clone()
	}
	for i, e := range d.History.Redo {
		c.History.Redo[i] = e.Clone()
	}
	return c
}

// IndexOf returns the position of the object with the given id, or -1.
func (d *Document) IndexOf(id string) int {
	for i := range d.Objects {
		if d.Objects[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the object with the given id.
func (d *Document) Find(id string) (Object, bool) {
	if i := d.IndexOf(id); i >= 0 {
		return d.Objects[i], true
	}
	return Object{}, false
}

// Order returns the object ids in z-order.
func (d *Document) Order() []string {
	ids := make([]string, len(d.Objects))
	for i, o := range d.Objects {
		ids[i] = o.ID
	}
	return ids
}

// RoomState is the view of a document sent to clients. Undo and redo stacks
// are never replayed.
type RoomState struct {
	Objects    []Object   `json:"objects"`
	Background Background `json:"background"`
}

// State returns the client-facing view of the document.
func (d *Document) State() RoomState {
	return RoomState{Objects: cloneObjects(d.Objects), Background: d.Background}
}

func cloneObjects(objs []Object) []Object {
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = o.Clone()
	}
	return out
}
