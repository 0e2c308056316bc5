package models

import (
	"encoding/json"
	"fmt"
)

// ObjectType tags the CanvasObject variant.
type ObjectType string

const (
	TypeText   ObjectType = "TEXT"
	TypeNode   ObjectType = "NODE"
	TypeShape  ObjectType = "SHAPE"
	TypeStroke ObjectType = "STROKE"
	TypeEdge   ObjectType = "EDGE"
	TypeImage  ObjectType = "IMAGE"
)

// Point is a single vertex of a stroke.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Delta is a translation applied by a move.
type Delta struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Negate returns the inverse translation.
func (d Delta) Negate() Delta {
	return Delta{DX: -d.DX, DY: -d.DY}
}

// Style holds optional presentation attributes shared by all variants.
type Style struct {
	Color       string   `json:"color,omitempty"`
	StrokeStyle string   `json:"strokeStyle,omitempty"` // "solid", "dashed", "dotted"
	StrokeWidth float64  `json:"strokeWidth,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
}

// Payload is the type-specific part of an object. Exactly one concrete
// payload type exists per ObjectType, except STROKE which carries points.
type Payload interface {
	Kind() ObjectType
}

// TextData is the payload of a TEXT object.
type TextData struct {
	Text     string  `json:"text"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize,omitempty"`
}

func (TextData) Kind() ObjectType { return TypeText }

// NodeData is the payload of a NODE object (a mind-map node).
type NodeData struct {
	Label  string  `json:"label"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func (NodeData) Kind() ObjectType { return TypeNode }

// ShapeData is the payload of a SHAPE object.
type ShapeData struct {
	Shape  string  `json:"shape"` // "rect", "circle", "ellipse", "diamond"
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Color  string  `json:"color,omitempty"`
}

func (ShapeData) Kind() ObjectType { return TypeShape }

// EdgeData connects two NODE objects by id. The reference is soft: an edge
// whose endpoints are gone simply does not render.
type EdgeData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (EdgeData) Kind() ObjectType { return TypeEdge }

// ImageData is the payload of an IMAGE object.
type ImageData struct {
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (ImageData) Kind() ObjectType { return TypeImage }

// Object is a drawable item on the canvas.
type Object struct {
	ID        string     `json:"id"`
	Type      ObjectType `json:"type"`
	X         float64    `json:"x,omitempty"`
	Y         float64    `json:"y,omitempty"`
	Points    []Point    `json:"points,omitempty"`
	Data      Payload    `json:"data,omitempty"`
	Style     *Style     `json:"style,omitempty"`
	CreatedAt int64      `json:"createdAt,omitempty"` // Unix ms, server clock
	UpdatedAt int64      `json:"updatedAt,omitempty"` // Unix ms, server clock
}

// wireObject mirrors Object with the payload left undecoded.
type wireObject struct {
	ID        string          `json:"id"`
	Type      ObjectType      `json:"type"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Points    []Point         `json:"points"`
	Data      json.RawMessage `json:"data"`
	Style     *Style          `json:"style"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`

	// Older clients put stroke colour and width at the top level.
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// UnmarshalJSON decodes the variant payload according to the type tag.
func (o *Object) UnmarshalJSON(b []byte) error {
	var w wireObject
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*o = Object{
		ID:        w.ID,
		Type:      w.Type,
		X:         w.X,
		Y:         w.Y,
		Points:    w.Points,
		Style:     w.Style,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}

	// A missing payload stays nil so validation can reject it.
	hasData := len(w.Data) > 0 && string(w.Data) != "null"

	var data Payload
	switch w.Type {
	case TypeText:
		data = &TextData{}
	case TypeNode:
		data = &NodeData{}
	case TypeShape:
		data = &ShapeData{}
	case TypeEdge:
		data = &EdgeData{}
	case TypeImage:
		data = &ImageData{}
	case TypeStroke:
		if w.Color != "" || w.Width != 0 {
			if o.Style == nil {
				o.Style = &Style{}
			}
			if o.Style.Color == "" {
				o.Style.Color = w.Color
			}
			if o.Style.StrokeWidth == 0 {
				o.Style.StrokeWidth = w.Width
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown object type %q", w.Type)
	}
	if !hasData {
		return nil
	}

	if err := json.Unmarshal(w.Data, data); err != nil {
		return fmt.Errorf("decode %s data: %w", w.Type, err)
	}
	switch d := data.(type) {
	case *TextData:
		o.Data = *d
	case *NodeData:
		o.Data = *d
	case *ShapeData:
		o.Data = *d
	case *EdgeData:
		o.Data = *d
	case *ImageData:
		o.Data = *d
	}
	return nil
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	c := o
	if o.Points != nil {
		c.Points = make([]Point, len(o.Points))
		copy(c.Points, o.Points)
	}
	if o.Style != nil {
		s := *o.Style
		if o.Style.Opacity != nil {
			op := *o.Style.Opacity
			s.Opacity = &op
		}
		c.Style = &s
	}
	// Payload variants are plain values.
	return c
}

// Translate shifts the object by d. Strokes move every point; all other
// variants move their anchor.
func (o *Object) Translate(d Delta) {
	if o.Type == TypeStroke {
		for i := range o.Points {
			o.Points[i].X += d.DX
			o.Points[i].Y += d.DY
		}
		return
	}
	o.X += d.DX
	o.Y += d.DY
}
