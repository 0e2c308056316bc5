package canvas

import (
	"sort"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

// ReorderAction selects how REORDER moves its targets. The tail of the
// object list is the front of the z-order.
type ReorderAction string

const (
	Front    ReorderAction = "front"
	Back     ReorderAction = "back"
	Forward  ReorderAction = "forward"
	Backward ReorderAction = "backward"
)

// reorder returns a new slice with the targets relocated. front and back
// move the whole target subset to the tail or head, keeping relative order
// within both the subset and the remainder. forward and backward nudge:
// each target that borders a non-target in the move direction swaps with it
// exactly once.
func reorder(objs []models.Object, targets map[string]bool, action ReorderAction) []models.Object {
	out := make([]models.Object, len(objs))
	copy(out, objs)

	switch action {
	case Front, Back:
		picked := make([]models.Object, 0, len(targets))
		rest := make([]models.Object, 0, len(objs))
		for _, o := range objs {
			if targets[o.ID] {
				picked = append(picked, o)
			} else {
				rest = append(rest, o)
			}
		}
		out = out[:0]
		if action == Front {
			out = append(append(out, rest...), picked...)
		} else {
			out = append(append(out, picked...), rest...)
		}
	case Forward:
		for i := len(out) - 2; i >= 0; i-- {
			if targets[out[i].ID] && !targets[out[i+1].ID] {
				out[i], out[i+1] = out[i+1], out[i]
			}
		}
	case Backward:
		for i := 1; i < len(out); i++ {
			if targets[out[i].ID] && !targets[out[i-1].ID] {
				out[i], out[i-1] = out[i-1], out[i]
			}
		}
	}
	return out
}

// arrange sorts objects into the given id order. Objects missing from order
// keep their relative order after the ordered ones.
func arrange(objs []models.Object, order []string) []models.Object {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	out := make([]models.Object, len(objs))
	copy(out, objs)

	rank := func(i int) int {
		if p, ok := pos[out[i].ID]; ok {
			return p
		}
		return len(order)
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(i) < rank(j) })
	return out
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
