package scene

import (
	"encoding/json"
	"time"
)

type ElementType string

const (
	TypeRect    ElementType = "rect"
	TypeCircle  ElementType = "circle"
	TypeText    ElementType = "text"
	TypeImage   ElementType = "image"
	TypeDrawing ElementType = "drawing"
	TypeLine    ElementType = "line"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is a single visual object on the canvas.
// Version starts at 1 and is bumped on every mutation; ZIndex, not slice
// position, is authoritative for paint order.
type Element struct {
	ID           string      `json:"id"`
	Type         ElementType `json:"type"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Width        float64     `json:"width,omitempty"`
	Height       float64     `json:"height,omitempty"`
	Radius       float64     `json:"radius,omitempty"`
	Points       []Point     `json:"points,omitempty"` // drawing/line path data
	Text         string      `json:"text,omitempty"`
	ImageURL     string      `json:"imageUrl,omitempty"`
	Fill         string      `json:"fill,omitempty"`
	Stroke       string      `json:"stroke,omitempty"`
	StrokeWidth  float64     `json:"strokeWidth,omitempty"`
	Opacity      float64     `json:"opacity"`
	Rotation     float64     `json:"rotation"`
	ScaleX       float64     `json:"scaleX"`
	ScaleY       float64     `json:"scaleY"`
	ZIndex       int         `json:"zIndex"`
	Visible      bool        `json:"visible"`
	Locked       bool        `json:"locked"`
	Version      int64       `json:"version"`
	LastModified time.Time   `json:"lastModified"`
}

func (e *Element) Clone() *Element {
	c := *e
	if e.Points != nil {
		c.Points = make([]Point, len(e.Points))
		copy(c.Points, e.Points)
	}
	return &c
}

// Patch merge-patches a partial attribute map onto the element. The map is
// what arrives on the wire in an element_updated / element_transformed
// operation, so it is applied through the same JSON rules used to decode a
// full element. Identity is not patchable: an "id" key in the map is
// discarded, since rewriting it could collide with another element.
func (e *Element) Patch(updates map[string]any) error {
	if _, ok := updates["id"]; ok {
		clean := make(map[string]any, len(updates))
		for k, v := range updates {
			if k != "id" {
				clean[k] = v
			}
		}
		updates = clean
	}
	b, err := json.Marshal(updates)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, e)
}

// Scene is the full element collection for one design. SelectedID is owned by
// the local client only and is never part of the authoritative scene.
type Scene struct {
	Elements     []*Element `json:"elements"`
	SelectedID   string     `json:"-"`
	CanvasWidth  float64    `json:"canvasWidth"`
	CanvasHeight float64    `json:"canvasHeight"`
}

func NewScene(width, height float64) *Scene {
	return &Scene{
		Elements:     []*Element{},
		CanvasWidth:  width,
		CanvasHeight: height,
	}
}

func (s *Scene) Clone() *Scene {
	c := &Scene{
		SelectedID:   s.SelectedID,
		CanvasWidth:  s.CanvasWidth,
		CanvasHeight: s.CanvasHeight,
		Elements:     make([]*Element, len(s.Elements)),
	}
	for i, el := range s.Elements {
		c.Elements[i] = el.Clone()
	}
	return c
}

// Find returns the element with the given id, or nil.
func (s *Scene) Find(id string) *Element {
	for _, el := range s.Elements {
		if el.ID == id {
			return el
		}
	}
	return nil
}

func (s *Scene) remove(id string) bool {
	for i, el := range s.Elements {
		if el.ID == id {
			s.Elements = append(s.Elements[:i], s.Elements[i+1:]...)
			if s.SelectedID == id {
				s.SelectedID = ""
			}
			return true
		}
	}
	return false
}

func (s *Scene) maxZ() int {
	max := 0
	for i, el := range s.Elements {
		if i == 0 || el.ZIndex > max {
			max = el.ZIndex
		}
	}
	return max
}

func (s *Scene) minZ() int {
	min := 0
	for i, el := range s.Elements {
		if i == 0 || el.ZIndex < min {
			min = el.ZIndex
		}
	}
	return min
}
