package canvas

import (
	"math"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

const (
	maxIDLength     = 128
	maxStrokePoints = 20000
	maxTextLength   = 10000
	maxBatchIDs     = 1000
)

var shapeKinds = map[string]bool{
	"rect":    true,
	"circle":  true,
	"ellipse": true,
	"diamond": true,
}

var strokeStyles = map[string]bool{
	"":       true,
	"solid":  true,
	"dashed": true,
	"dotted": true,
}

// ValidateObject checks an object received from a client and normalizes the
// fields that do not apply to its variant.
func ValidateObject(o *models.Object) error {
	if err := validateID("object.id", o.ID); err != nil {
		return err
	}

	if o.Type == models.TypeStroke {
		if len(o.Points) == 0 {
			return invalid("object.points", "stroke needs at least one point")
		}
		if len(o.Points) > maxStrokePoints {
			return invalid("object.points", "stroke has more than %d points", maxStrokePoints)
		}
		for _, p := range o.Points {
			if !finite(p.X) || !finite(p.Y) {
				return invalid("object.points", "coordinates must be finite")
			}
		}
		o.X, o.Y = 0, 0
		o.Data = nil
	} else {
		if !finite(o.X) || !finite(o.Y) {
			return invalid("object", "coordinates must be finite")
		}
		o.Points = nil
		if err := validatePayload(o.Type, o.Data); err != nil {
			return err
		}
	}

	if o.Style != nil {
		if o.Style.Opacity != nil && (*o.Style.Opacity < 0 || *o.Style.Opacity > 1) {
			return invalid("object.style.opacity", "must be between 0 and 1")
		}
		if o.Style.StrokeWidth < 0 || !finite(o.Style.StrokeWidth) {
			return invalid("object.style.strokeWidth", "must be a non-negative number")
		}
		if !strokeStyles[o.Style.StrokeStyle] {
			return invalid("object.style.strokeStyle", "unknown stroke style %q", o.Style.StrokeStyle)
		}
	}
	return nil
}

func validatePayload(typ models.ObjectType, data models.Payload) error {
	if data == nil {
		return invalid("object.data", "%s requires data", typ)
	}
	if data.Kind() != typ {
		return invalid("object.data", "payload %s does not match type %s", data.Kind(), typ)
	}

	switch d := data.(type) {
	case models.TextData:
		if len(d.Text) > maxTextLength {
			return invalid("object.data.text", "longer than %d bytes", maxTextLength)
		}
		return nonNegative("object.data", d.Width, d.Height, d.FontSize)
	case models.NodeData:
		if len(d.Label) > maxTextLength {
			return invalid("object.data.label", "longer than %d bytes", maxTextLength)
		}
		return nonNegative("object.data", d.Width, d.Height)
	case models.ShapeData:
		if !shapeKinds[d.Shape] {
			return invalid("object.data.shape", "unknown shape %q", d.Shape)
		}
		return nonNegative("object.data", d.Width, d.Height, d.Radius)
	case models.EdgeData:
		if d.From == "" || d.To == "" {
			return invalid("object.data", "edge needs both from and to")
		}
		return nil
	case models.ImageData:
		if d.URL == "" {
			return invalid("object.data.url", "required")
		}
		return nonNegative("object.data", d.Width, d.Height)
	}
	return invalid("object.type", "unknown type %q", typ)
}

// Validate checks an operation before it is applied.
func (op Op) Validate() error {
	switch op.Kind {
	case OpCreate, OpUpdate:
		if op.Object == nil {
			return invalid("object", "required")
		}
		return ValidateObject(op.Object)
	case OpMove:
		if err := validateID("objectId", op.ID); err != nil {
			return err
		}
		return validateDelta(op.Delta)
	case OpMoveMany:
		if err := validateIDs(op.IDs); err != nil {
			return err
		}
		return validateDelta(op.Delta)
	case OpDelete:
		return validateID("objectId", op.ID)
	case OpReorder:
		if err := validateIDs(op.IDs); err != nil {
			return err
		}
		switch op.Action {
		case Front, Back, Forward, Backward:
			return nil
		}
		return invalid("action", "unknown reorder action %q", op.Action)
	case OpUndo, OpRedo:
		return nil
	}
	return invalid("kind", "unknown operation %q", op.Kind)
}

func validateID(field, id string) error {
	if id == "" {
		return invalid(field, "required")
	}
	if len(id) > maxIDLength {
		return invalid(field, "longer than %d characters", maxIDLength)
	}
	return nil
}

func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return invalid("ids", "at least one id required")
	}
	if len(ids) > maxBatchIDs {
		return invalid("ids", "more than %d ids", maxBatchIDs)
	}
	for _, id := range ids {
		if err := validateID("ids", id); err != nil {
			return err
		}
	}
	return nil
}

func validateDelta(d models.Delta) error {
	if !finite(d.DX) || !finite(d.DY) {
		return invalid("delta", "must be finite")
	}
	return nil
}

func nonNegative(field string, vals ...float64) error {
	for _, v := range vals {
		if v < 0 || !finite(v) {
			return invalid(field, "dimensions must be non-negative numbers")
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
