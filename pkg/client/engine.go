// Package client mirrors a room's canvas on the client side. It applies the
// server's snapshots and deltas to a Painter incrementally and batches the
// points of local strokes for sending.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// maxPendingPoints bounds the points buffered for a remote stroke whose
// stroke_start has not arrived. Later points are dropped.
const maxPendingPoints = 10000

// ErrStrokeDropped is returned for a local stroke the server no longer holds.
var ErrStrokeDropped = errors.New("stroke dropped by server")

// Painter is the rendering surface the engine draws on.
type Painter interface {
	DrawSegment(from, to protocol.Point, style protocol.Style)
	Clear()
}

// Cursor is a remote member's last reported pointer position.
type Cursor struct {
	protocol.Member
	X, Y float64
}

// remoteStroke tracks a stroke being drawn by someone else. style is nil
// until its stroke_start arrives; points seen before that wait in pending.
type remoteStroke struct {
	tail    *protocol.Point
	style   *protocol.Style
	pending []protocol.Point
	ended   bool
}

// localStroke is an own stroke still being drawn. points holds everything
// painted so far; seen is how many of them the last snapshot carried.
type localStroke struct {
	points  []protocol.Point
	style   protocol.Style
	seen    int
	dropped bool
}

// Engine reconciles server events with what has been painted. It is safe
// for concurrent use; the painter is only called with the engine locked.
type Engine struct {
	mu      sync.Mutex
	painter Painter
	batcher *Batcher

	roomID  string
	profile *protocol.Member
	members []protocol.Member
	cursors map[string]Cursor

	remote     map[string]*remoteStroke
	local      map[string]*localStroke
	localOrder []string
}

func NewEngine(painter Painter) *Engine {
	return &Engine{
		painter: painter,
		batcher: NewBatcher(),
		cursors: make(map[string]Cursor),
		remote:  make(map[string]*remoteStroke),
		local:   make(map[string]*localStroke),
	}
}

// Handle applies one inbound frame. Event types the engine does not track
// are ignored.
func (e *Engine) Handle(data []byte) (protocol.EventType, error) {
	env, err := protocol.Decode(data)
	if err != nil {
		return "", err
	}

	switch env.Type {
	case protocol.EventRoomJoined:
		var p protocol.RoomJoined
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.setRoom(p.RoomID)

	case protocol.EventRoomState:
		var p protocol.RoomState
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.ApplySnapshot(p.Strokes)

	case protocol.EventStrokeStart:
		var s protocol.Stroke
		if err := env.Payload(&s); err != nil {
			return env.Type, err
		}
		return env.Type, e.ApplyStrokeStart(s)

	case protocol.EventStrokeAdd:
		var p protocol.StrokeAdd
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		if p.Point == nil {
			return env.Type, fmt.Errorf("%w: stroke_add without point", protocol.ErrMalformed)
		}
		e.ApplyPoints(p.StrokeID, []protocol.Point{*p.Point})

	case protocol.EventStrokeBatch:
		var p protocol.StrokeBatch
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.ApplyPoints(p.StrokeID, p.Points)

	case protocol.EventStrokeEnd:
		var p protocol.StrokeEnd
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.ApplyStrokeEnd(p.StrokeID)

	case protocol.EventClearCanvas:
		e.ApplyClear()

	case protocol.EventUserProfile:
		var m protocol.Member
		if err := env.Payload(&m); err != nil {
			return env.Type, err
		}
		e.mu.Lock()
		e.profile = &m
		e.mu.Unlock()

	case protocol.EventRoomUsers:
		var p protocol.RoomUsers
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.mu.Lock()
		e.members = append([]protocol.Member(nil), p.Users...)
		e.mu.Unlock()

	case protocol.EventUserJoined:
		var m protocol.Member
		if err := env.Payload(&m); err != nil {
			return env.Type, err
		}
		e.addMember(m)

	case protocol.EventUserLeft:
		var p protocol.UserLeft
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.removeMember(p.AuthorID)

	case protocol.EventCursorMove:
		var p protocol.CursorMove
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		if p.X == nil || p.Y == nil {
			return env.Type, fmt.Errorf("%w: cursor_move without coordinates", protocol.ErrMalformed)
		}
		e.mu.Lock()
		e.cursors[p.AuthorID] = Cursor{
			Member: protocol.Member{AuthorID: p.AuthorID, DisplayName: p.DisplayName, Color: p.Color},
			X:      *p.X,
			Y:      *p.Y,
		}
		e.mu.Unlock()

	case protocol.EventCursorLeave:
		var p protocol.CursorLeave
		if err := env.Payload(&p); err != nil {
			return env.Type, err
		}
		e.mu.Lock()
		delete(e.cursors, p.AuthorID)
		e.mu.Unlock()
	}

	return env.Type, nil
}

func (e *Engine) setRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.roomID == roomID {
		return
	}
	e.roomID = roomID
	e.members = nil
	e.cursors = make(map[string]Cursor)
	e.remote = make(map[string]*remoteStroke)
	e.local = make(map[string]*localStroke)
	e.localOrder = nil
	e.batcher.Reset()
}

// ApplySnapshot repaints the canvas from a full stroke log, dropping all
// partial remote state. Own strokes still being drawn are painted on top:
// the points the server has not applied yet, or the whole stroke when the
// server has not seen its start. An own stroke that an earlier snapshot
// carried and this one lacks was removed by the server and is dropped.
func (e *Engine) ApplySnapshot(strokes []protocol.Stroke) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.remote = make(map[string]*remoteStroke, len(strokes))
	e.painter.Clear()

	held := make(map[string]int)
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		style := s.Style
		e.paintRun(s.Points, style)

		if _, mine := e.local[s.ID]; mine {
			held[s.ID] = len(s.Points)
			continue
		}
		last := s.Points[len(s.Points)-1]
		e.remote[s.ID] = &remoteStroke{tail: &last, style: &style}
	}

	for _, id := range e.localOrder {
		ls := e.local[id]
		if ls.dropped {
			continue
		}
		n, ok := held[id]
		switch {
		case ok:
			ls.seen = n
			for i := n; i < len(ls.points); i++ {
				e.painter.DrawSegment(ls.points[i-1], ls.points[i], ls.style)
			}
		case ls.seen > 0:
			e.dropLocal(ls, id)
		default:
			e.paintRun(ls.points, ls.style)
		}
	}
}

// ApplyStrokeStart paints the first point of a remote stroke and any points
// that arrived ahead of it.
func (e *Engine) ApplyStrokeStart(s protocol.Stroke) error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: stroke_start without points", protocol.ErrMalformed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.remote[s.ID]
	if ok && rs.style != nil {
		// Already known, usually from a snapshot taken after the start.
		return nil
	}
	if !ok {
		rs = &remoteStroke{}
		e.remote[s.ID] = rs
	}

	style := s.Style
	rs.style = &style
	e.paintRun(s.Points, style)
	tail := s.Points[len(s.Points)-1]
	rs.tail = &tail

	if len(rs.pending) > 0 {
		e.extend(rs, rs.pending)
		rs.pending = nil
	}
	if rs.ended {
		delete(e.remote, s.ID)
	}
	return nil
}

// ApplyPoints paints one segment per point from the stroke's tail, or buffers
// the points when the stroke's start has not been seen.
func (e *Engine) ApplyPoints(strokeID string, pts []protocol.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.remote[strokeID]
	if !ok {
		rs = &remoteStroke{}
		e.remote[strokeID] = rs
	}
	if rs.style == nil {
		if free := maxPendingPoints - len(rs.pending); len(pts) > free {
			pts = pts[:free]
		}
		rs.pending = append(rs.pending, pts...)
		return
	}
	e.extend(rs, pts)
}

func (e *Engine) ApplyStrokeEnd(strokeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.remote[strokeID]
	if !ok {
		return
	}
	if rs.style == nil {
		rs.ended = true
		return
	}
	delete(e.remote, strokeID)
}

// ApplyClear wipes the canvas. The server follows it with a snapshot.
func (e *Engine) ApplyClear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote = make(map[string]*remoteStroke)
	e.painter.Clear()
}

func (e *Engine) extend(rs *remoteStroke, pts []protocol.Point) {
	for _, pt := range pts {
		e.painter.DrawSegment(*rs.tail, pt, *rs.style)
		p := pt
		rs.tail = &p
	}
}

// paintRun draws a dot at the first point and then one segment per
// following point.
func (e *Engine) paintRun(pts []protocol.Point, style protocol.Style) {
	e.painter.DrawSegment(pts[0], pts[0], style)
	for i := 1; i < len(pts); i++ {
		e.painter.DrawSegment(pts[i-1], pts[i], style)
	}
}

// Local strokes

// BeginLocal paints the first point of an own stroke right away.
func (e *Engine) BeginLocal(strokeID string, pt protocol.Point, style protocol.Style) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.local[strokeID]; !ok {
		e.localOrder = append(e.localOrder, strokeID)
	}
	e.local[strokeID] = &localStroke{points: []protocol.Point{pt}, style: style}
	e.painter.DrawSegment(pt, pt, style)
}

// ExtendLocal paints a segment and queues the point for the next frame.
func (e *Engine) ExtendLocal(strokeID string, pt protocol.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.local[strokeID]
	if !ok {
		return fmt.Errorf("unknown local stroke %s", strokeID)
	}
	if ls.dropped {
		return fmt.Errorf("extend %s: %w", strokeID, ErrStrokeDropped)
	}
	e.painter.DrawSegment(ls.points[len(ls.points)-1], pt, ls.style)
	ls.points = append(ls.points, pt)
	e.batcher.Add(strokeID, pt)
	return nil
}

// EndLocal forgets the stroke and returns its still-queued points.
func (e *Engine) EndLocal(strokeID string) ([]protocol.Point, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.local[strokeID]
	if !ok {
		return nil, fmt.Errorf("unknown local stroke %s", strokeID)
	}
	e.forgetLocal(strokeID)
	if ls.dropped {
		return nil, fmt.Errorf("end %s: %w", strokeID, ErrStrokeDropped)
	}
	return e.batcher.Take(strokeID), nil
}

// DropLocal marks every own stroke in progress as removed, as after an own
// undo or clear. Their queued points are discarded.
func (e *Engine) DropLocal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.localOrder {
		e.dropLocal(e.local[id], id)
	}
}

func (e *Engine) dropLocal(ls *localStroke, strokeID string) {
	ls.dropped = true
	e.batcher.Take(strokeID)
}

func (e *Engine) forgetLocal(strokeID string) {
	delete(e.local, strokeID)
	for i, id := range e.localOrder {
		if id == strokeID {
			e.localOrder = append(e.localOrder[:i], e.localOrder[i+1:]...)
			return
		}
	}
}

// Batcher holds the points of local strokes awaiting the next frame.
func (e *Engine) Batcher() *Batcher {
	return e.batcher
}

// State accessors

func (e *Engine) RoomID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomID
}

// Profile returns this connection's identity once the server has sent it.
func (e *Engine) Profile() (protocol.Member, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return protocol.Member{}, false
	}
	return *e.profile, true
}

func (e *Engine) Members() []protocol.Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Member(nil), e.members...)
}

func (e *Engine) Cursors() map[string]Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Cursor, len(e.cursors))
	for k, v := range e.cursors {
		out[k] = v
	}
	return out
}

// TrackedRemote reports how many remote strokes have a tail or buffered
// points. Strokes from the last snapshot count until the next one.
func (e *Engine) TrackedRemote() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.remote)
}

func (e *Engine) addMember(m protocol.Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.members {
		if existing.AuthorID == m.AuthorID {
			e.members[i] = m
			return
		}
	}
	e.members = append(e.members, m)
}

func (e *Engine) removeMember(authorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cursors, authorID)
	for i, m := range e.members {
		if m.AuthorID == authorID {
			e.members = append(e.members[:i], e.members[i+1:]...)
			return
		}
	}
}
