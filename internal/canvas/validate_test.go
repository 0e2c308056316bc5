package canvas

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

func TestValidateObject(t *testing.T) {
	half := 0.5
	tooOpaque := 1.5

	tests := []struct {
		name    string
		obj     models.Object
		wantErr bool
	}{
		{"text", models.Object{ID: "t", Type: models.TypeText, Data: models.TextData{Text: "hi"}}, false},
		{"node", models.Object{ID: "n", Type: models.TypeNode, Data: models.NodeData{Label: "root"}}, false},
		{"rect", models.Object{ID: "r", Type: models.TypeShape, Data: models.ShapeData{Shape: "rect", Width: 10, Height: 5}}, false},
		{"circle", models.Object{ID: "c", Type: models.TypeShape, Data: models.ShapeData{Shape: "circle", Radius: 4}}, false},
		{"edge", models.Object{ID: "e", Type: models.TypeEdge, Data: models.EdgeData{From: "a", To: "b"}}, false},
		{"image", models.Object{ID: "i", Type: models.TypeImage, Data: models.ImageData{URL: "https://x/y.png"}}, false},
		{"stroke", models.Object{ID: "s", Type: models.TypeStroke, Points: []models.Point{{X: 1, Y: 1}}}, false},
		{"styled", models.Object{ID: "t", Type: models.TypeText, Data: models.TextData{}, Style: &models.Style{Opacity: &half, StrokeStyle: "dashed"}}, false},

		{"missing id", models.Object{Type: models.TypeText, Data: models.TextData{}}, true},
		{"long id", models.Object{ID: string(make([]byte, maxIDLength+1)), Type: models.TypeText, Data: models.TextData{}}, true},
		{"no data", models.Object{ID: "t", Type: models.TypeText}, true},
		{"mismatched data", models.Object{ID: "t", Type: models.TypeText, Data: models.NodeData{}}, true},
		{"unknown shape", models.Object{ID: "r", Type: models.TypeShape, Data: models.ShapeData{Shape: "star"}}, true},
		{"negative width", models.Object{ID: "r", Type: models.TypeShape, Data: models.ShapeData{Shape: "rect", Width: -1}}, true},
		{"edge without target", models.Object{ID: "e", Type: models.TypeEdge, Data: models.EdgeData{From: "a"}}, true},
		{"image without url", models.Object{ID: "i", Type: models.TypeImage, Data: models.ImageData{}}, true},
		{"empty stroke", models.Object{ID: "s", Type: models.TypeStroke}, true},
		{"nan point", models.Object{ID: "s", Type: models.TypeStroke, Points: []models.Point{{X: math.NaN()}}}, true},
		{"infinite anchor", models.Object{ID: "t", Type: models.TypeText, X: math.Inf(1), Data: models.TextData{}}, true},
		{"opacity range", models.Object{ID: "t", Type: models.TypeText, Data: models.TextData{}, Style: &models.Style{Opacity: &tooOpaque}}, true},
		{"stroke style", models.Object{ID: "t", Type: models.TypeText, Data: models.TextData{}, Style: &models.Style{StrokeStyle: "wavy"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := tt.obj
			err := ValidateObject(&obj)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not match ErrValidation", err)
			}
		})
	}
}

func TestValidateDecodedObjectRequiresPayload(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"text without data", `{"id":"t","type":"TEXT","x":1,"y":2}`, true},
		{"node with null data", `{"id":"n","type":"NODE","data":null}`, true},
		{"node with empty data", `{"id":"n","type":"NODE","data":{}}`, false},
		{"stroke without data", `{"id":"s","type":"STROKE","points":[{"x":1,"y":1}]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obj models.Object
			if err := json.Unmarshal([]byte(tt.in), &obj); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if err := ValidateObject(&obj); (err != nil) != tt.wantErr {
				t.Errorf("ValidateObject() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateObjectNormalizesVariant(t *testing.T) {
	stroke := models.Object{
		ID:     "s",
		Type:   models.TypeStroke,
		X:      5,
		Y:      5,
		Points: []models.Point{{X: 1, Y: 2}},
		Data:   models.TextData{},
	}
	if err := ValidateObject(&stroke); err != nil {
		t.Fatal(err)
	}
	if stroke.X != 0 || stroke.Y != 0 || stroke.Data != nil {
		t.Errorf("stroke not normalized: %+v", stroke)
	}

	text := models.Object{ID: "t", Type: models.TypeText, Points: []models.Point{{}}, Data: models.TextData{}}
	if err := ValidateObject(&text); err != nil {
		t.Fatal(err)
	}
	if text.Points != nil {
		t.Error("text kept stroke points")
	}
}

func TestOpValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Op
		wantErr bool
	}{
		{"undo", Op{Kind: OpUndo}, false},
		{"redo", Op{Kind: OpRedo}, false},
		{"delete", Op{Kind: OpDelete, ID: "a"}, false},
		{"reorder", Op{Kind: OpReorder, IDs: []string{"a"}, Action: Backward}, false},
		{"create nil object", Op{Kind: OpCreate}, true},
		{"move nan delta", Op{Kind: OpMove, ID: "a", Delta: models.Delta{DX: math.NaN()}}, true},
		{"move-many empty", Op{Kind: OpMoveMany, Delta: models.Delta{DX: 1}}, true},
		{"reorder bad action", Op{Kind: OpReorder, IDs: []string{"a"}, Action: "sideways"}, true},
		{"reorder empty id", Op{Kind: OpReorder, IDs: []string{""}, Action: Front}, true},
		{"unknown kind", Op{Kind: "explode"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
