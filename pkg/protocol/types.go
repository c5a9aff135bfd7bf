package protocol

import (
	"math"
	"time"
)

// Point is a canvas-local coordinate, already normalized for device pixel ratio.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Style is the ink a stroke is drawn with.
type Style struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

func (s Style) Valid() bool {
	return s.Color != "" && s.Width > 0 && !math.IsInf(s.Width, 0) && !math.IsNaN(s.Width)
}

// Stroke is one pointer-down to pointer-up motion.
type Stroke struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Points    []Point   `json:"points"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no memory with s.
func (s Stroke) Clone() Stroke {
	c := s
	c.Points = make([]Point, len(s.Points))
	copy(c.Points, s.Points)
	return c
}

// Last returns the final point of the stroke.
func (s Stroke) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// CloneStrokes deep-copies a stroke sequence.
func CloneStrokes(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	for i, s := range strokes {
		out[i] = s.Clone()
	}
	return out
}

// Member is a connected author's public identity within a room.
type Member struct {
	AuthorID    string `json:"authorId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}
