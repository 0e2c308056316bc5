package models

import (
	"encoding/json"
	"testing"
)

func TestObjectUnmarshalVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Payload
	}{
		{"text", `{"id":"t","type":"TEXT","x":1,"y":2,"data":{"text":"hi","width":100,"height":30}}`, TextData{Text: "hi", Width: 100, Height: 30}},
		{"node", `{"id":"n","type":"NODE","data":{"label":"root"}}`, NodeData{Label: "root"}},
		{"rect", `{"id":"r","type":"SHAPE","data":{"shape":"rect","width":10,"height":5,"color":"#f00"}}`, ShapeData{Shape: "rect", Width: 10, Height: 5, Color: "#f00"}},
		{"circle", `{"id":"c","type":"SHAPE","data":{"shape":"circle","radius":4}}`, ShapeData{Shape: "circle", Radius: 4}},
		{"edge", `{"id":"e","type":"EDGE","data":{"from":"a","to":"b"}}`, EdgeData{From: "a", To: "b"}},
		{"image", `{"id":"i","type":"IMAGE","data":{"url":"u","width":1,"height":2}}`, ImageData{URL: "u", Width: 1, Height: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Object
			if err := json.Unmarshal([]byte(tt.in), &o); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if o.Data != tt.want {
				t.Errorf("Data = %#v, want %#v", o.Data, tt.want)
			}
		})
	}
}

func TestObjectUnmarshalLegacyStroke(t *testing.T) {
	var o Object
	in := `{"id":"s","type":"STROKE","points":[{"x":1,"y":2},{"x":3,"y":4}],"color":"#123","width":3}`
	if err := json.Unmarshal([]byte(in), &o); err != nil {
		t.Fatal(err)
	}
	if len(o.Points) != 2 || o.Points[1].X != 3 {
		t.Errorf("points = %+v", o.Points)
	}
	if o.Style == nil || o.Style.Color != "#123" || o.Style.StrokeWidth != 3 {
		t.Errorf("style = %+v", o.Style)
	}
	if o.Data != nil {
		t.Errorf("stroke carries data %#v", o.Data)
	}
}

func TestObjectUnmarshalMissingData(t *testing.T) {
	for _, in := range []string{
		`{"id":"t","type":"TEXT"}`,
		`{"id":"n","type":"NODE","data":null}`,
		`{"id":"i","type":"IMAGE"}`,
	} {
		var o Object
		if err := json.Unmarshal([]byte(in), &o); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in, err)
		}
		if o.Data != nil {
			t.Errorf("Unmarshal(%s) Data = %#v, want nil", in, o.Data)
		}
	}
}

func TestObjectUnmarshalUnknownType(t *testing.T) {
	var o Object
	if err := json.Unmarshal([]byte(`{"id":"x","type":"BLOB"}`), &o); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestDocumentRoundTripKeepsHistory(t *testing.T) {
	doc := NewDocument()
	obj := Object{ID: "a", Type: TypeNode, Data: NodeData{Label: "x"}}
	doc.Objects = append(doc.Objects, obj)
	doc.History.Undo = append(doc.History.Undo, HistoryEntry{Kind: HistoryCreate, After: &obj, At: 5})

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var back Document
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.History.Undo) != 1 || back.History.Undo[0].After.Data != (NodeData{Label: "x"}) {
		t.Errorf("history lost payload: %+v", back.History.Undo)
	}
	if back.Background.Color != "#ffffff" {
		t.Errorf("background = %+v", back.Background)
	}
}

func TestTranslate(t *testing.T) {
	s := Object{Type: TypeStroke, Points: []Point{{X: 1, Y: 1}}}
	s.Translate(Delta{DX: 2, DY: -1})
	if s.Points[0] != (Point{X: 3, Y: 0}) || s.X != 0 {
		t.Errorf("stroke = %+v", s)
	}

	n := Object{Type: TypeNode, X: 1, Y: 1}
	n.Translate(Delta{DX: 2, DY: -1})
	if n.X != 3 || n.Y != 0 {
		t.Errorf("node = %+v", n)
	}
}
