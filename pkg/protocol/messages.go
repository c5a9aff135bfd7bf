package protocol

import "fmt"

// Payloads shared by both directions carry RoomID only on the inbound leg.

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

func (m JoinRoom) Validate() error {
	if m.RoomID == "" {
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	}
	return nil
}

// RoomCommand is the payload of undo, redo, clear_canvas and leave_room.
type RoomCommand struct {
	RoomID string `json:"roomId,omitempty"`
}

func (m RoomCommand) Validate() error {
	if m.RoomID == "" {
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	}
	return nil
}

type StrokeStart struct {
	RoomID   string `json:"roomId"`
	StrokeID string `json:"strokeId"`
	Point    *Point `json:"point"`
	Style    *Style `json:"style"`
}

func (m StrokeStart) Validate() error {
	switch {
	case m.RoomID == "":
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	case m.StrokeID == "":
		return fmt.Errorf("%w: missing strokeId", ErrMalformed)
	case m.Point == nil || !m.Point.Valid():
		return fmt.Errorf("%w: missing or invalid point", ErrMalformed)
	case m.Style == nil || !m.Style.Valid():
		return fmt.Errorf("%w: missing or invalid style", ErrMalformed)
	}
	return nil
}

type StrokeAdd struct {
	RoomID   string `json:"roomId,omitempty"`
	StrokeID string `json:"strokeId"`
	Point    *Point `json:"point"`
}

func (m StrokeAdd) Validate() error {
	switch {
	case m.RoomID == "":
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	case m.StrokeID == "":
		return fmt.Errorf("%w: missing strokeId", ErrMalformed)
	case m.Point == nil || !m.Point.Valid():
		return fmt.Errorf("%w: missing or invalid point", ErrMalformed)
	}
	return nil
}

type StrokeBatch struct {
	RoomID   string  `json:"roomId,omitempty"`
	StrokeID string  `json:"strokeId"`
	Points   []Point `json:"points"`
}

func (m StrokeBatch) Validate() error {
	switch {
	case m.RoomID == "":
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	case m.StrokeID == "":
		return fmt.Errorf("%w: missing strokeId", ErrMalformed)
	case len(m.Points) == 0:
		return fmt.Errorf("%w: empty points", ErrMalformed)
	}
	for i, p := range m.Points {
		if !p.Valid() {
			return fmt.Errorf("%w: invalid point at %d", ErrMalformed, i)
		}
	}
	return nil
}

type StrokeEnd struct {
	RoomID   string `json:"roomId,omitempty"`
	StrokeID string `json:"strokeId"`
}

func (m StrokeEnd) Validate() error {
	switch {
	case m.RoomID == "":
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	case m.StrokeID == "":
		return fmt.Errorf("%w: missing strokeId", ErrMalformed)
	}
	return nil
}

// CursorMove is sent with RoomID by clients and relayed with the sender's
// identity filled in.
type CursorMove struct {
	RoomID      string   `json:"roomId,omitempty"`
	AuthorID    string   `json:"authorId,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Color       string   `json:"color,omitempty"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
}

func (m CursorMove) Validate() error {
	switch {
	case m.RoomID == "":
		return fmt.Errorf("%w: missing roomId", ErrMalformed)
	case m.X == nil || m.Y == nil:
		return fmt.Errorf("%w: missing coordinates", ErrMalformed)
	case !(Point{X: *m.X, Y: *m.Y}).Valid():
		return fmt.Errorf("%w: invalid coordinates", ErrMalformed)
	}
	return nil
}

// Outbound payloads

type RoomJoined struct {
	RoomID string `json:"roomId"`
}

type RoomState struct {
	RoomID  string   `json:"roomId"`
	Strokes []Stroke `json:"strokes"`
}

type CanvasCleared struct {
	RoomID string `json:"roomId"`
}

type CursorLeave struct {
	AuthorID string `json:"authorId"`
}

type RoomUsers struct {
	RoomID string   `json:"roomId"`
	Users  []Member `json:"users"`
}

type UserLeft struct {
	AuthorID string `json:"authorId"`
}
