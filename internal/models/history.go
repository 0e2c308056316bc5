package models

// HistoryKind tags a HistoryEntry variant.
type HistoryKind string

const (
	HistoryCreate  HistoryKind = "CREATE"
	HistoryUpdate  HistoryKind = "UPDATE"
	HistoryDelete  HistoryKind = "DELETE"
	HistoryMove    HistoryKind = "MOVE"
	HistoryReorder HistoryKind = "REORDER"
)

// HistoryEntry captures enough state to invert one mutation.
//
//	CREATE  After
//	UPDATE  Before, After
//	DELETE  Before, Index
//	MOVE    Move.Before (per-id snapshots), Move.IDs, Move.Delta
//	REORDER Reorder.Before, Reorder.After (id orders)
type HistoryEntry struct {
	Kind    HistoryKind    `json:"kind"`
	Before  *Object        `json:"before,omitempty"`
	After   *Object        `json:"after,omitempty"`
	Index   int            `json:"index,omitempty"`
	Move    *MoveRecord    `json:"move,omitempty"`
	Reorder *ReorderRecord `json:"reorder,omitempty"`
	At      int64          `json:"at"`
}

// MoveRecord is the MOVE variant payload.
type MoveRecord struct {
	Before []Object `json:"before"`
	IDs    []string `json:"ids"`
	Delta  Delta    `json:"delta"`
}

// ReorderRecord is the REORDER variant payload.
type ReorderRecord struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// Clone returns a deep copy of the entry.
func (e HistoryEntry) Clone() HistoryEntry {
	c := e
	if e.Before != nil {
		b := e.Before.Clone()
		c.Before = &b
	}
	if e.After != nil {
		a := e.After.Clone()
		c.After = &a
	}
	if e.Move != nil {
		m := MoveRecord{
			Before: cloneObjects(e.Move.Before),
			IDs:    append([]string(nil), e.Move.IDs...),
			Delta:  e.Move.Delta,
		}
		c.Move = &m
	}
	if e.Reorder != nil {
		r := ReorderRecord{
			Before: append([]string(nil), e.Reorder.Before...),
			After:  append([]string(nil), e.Reorder.After...),
		}
		c.Reorder = &r
	}
	return c
}
