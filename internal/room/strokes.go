package room

import (
	"fmt"
	"time"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Begin appends a new stroke holding its first point to the end of the log.
// Ids are unique for the lifetime of a stroke, including time spent on a redo
// stack, so a replayed stroke_start is rejected with ErrDuplicateStroke.
func (r *Room) Begin(strokeID, authorID string, pt protocol.Point, style protocol.Style) (protocol.Stroke, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin(strokeID, authorID, pt, style)
}

// StartStroke clears the author's redo stack and begins a stroke in one step.
// A duplicate id leaves the redo stack untouched.
func (r *Room) StartStroke(strokeID, authorID string, pt protocol.Point, style protocol.Style) (protocol.Stroke, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[strokeID]; ok {
		return protocol.Stroke{}, fmt.Errorf("begin %s: %w", strokeID, ErrDuplicateStroke)
	}
	r.clearRedo(authorID)
	return r.begin(strokeID, authorID, pt, style)
}

func (r *Room) begin(strokeID, authorID string, pt protocol.Point, style protocol.Style) (protocol.Stroke, error) {
	if _, ok := r.ids[strokeID]; ok {
		return protocol.Stroke{}, fmt.Errorf("begin %s: %w", strokeID, ErrDuplicateStroke)
	}

	e := &strokeEntry{
		stroke: protocol.Stroke{
			ID:        strokeID,
			AuthorID:  authorID,
			Points:    []protocol.Point{pt},
			Style:     style,
			CreatedAt: time.Now().UTC(),
		},
		inLog: true,
	}
	r.ids[strokeID] = e
	r.strokes = append(r.strokes, e)
	r.points++
	r.touch()
	r.evict(e)

	return e.stroke.Clone(), nil
}

// AppendPoint adds one point to an active stroke owned by authorID.
func (r *Room) AppendPoint(strokeID, authorID string, pt protocol.Point) error {
	return r.AppendPoints(strokeID, authorID, []protocol.Point{pt})
}

// AppendPoints adds points, in order, to an active stroke owned by authorID.
// Nothing is appended when any check fails.
func (r *Room) AppendPoints(strokeID, authorID string, pts []protocol.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.writable(strokeID, authorID)
	if err != nil {
		return err
	}
	if len(e.stroke.Points)+len(pts) > r.opts.MaxPoints {
		return fmt.Errorf("append %s: stroke would hold %d points: %w",
			strokeID, len(e.stroke.Points)+len(pts), ErrCapacity)
	}

	e.stroke.Points = append(e.stroke.Points, pts...)
	r.points += len(pts)
	r.touch()
	r.evict(e)
	return nil
}

// End marks a stroke inactive. Later appends fail with ErrStrokeEnded.
func (r *Room) End(strokeID, authorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.writable(strokeID, authorID)
	if err != nil {
		return err
	}
	e.ended = true
	return nil
}

func (r *Room) writable(strokeID, authorID string) (*strokeEntry, error) {
	e, ok := r.ids[strokeID]
	if !ok || !e.inLog {
		return nil, fmt.Errorf("stroke %s: %w", strokeID, ErrUnknownStroke)
	}
	if e.stroke.AuthorID != authorID {
		return nil, fmt.Errorf("stroke %s: %w", strokeID, ErrNotOwner)
	}
	if e.ended {
		return nil, fmt.Errorf("stroke %s: %w", strokeID, ErrStrokeEnded)
	}
	return e, nil
}

// Remove takes a stroke out of the log and forgets it.
func (r *Room) Remove(strokeID string) (protocol.Stroke, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.ids[strokeID]
	if !ok || !e.inLog {
		return protocol.Stroke{}, false
	}
	r.unlink(e)
	delete(r.ids, strokeID)
	r.touch()
	return e.stroke.Clone(), true
}

// Stroke returns a copy of a stroke currently in the log.
func (r *Room) Stroke(strokeID string) (protocol.Stroke, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ids[strokeID]
	if !ok || !e.inLog {
		return protocol.Stroke{}, false
	}
	return e.stroke.Clone(), true
}

// Returns a deep copy of the log in draw order for late joiners
func (r *Room) Snapshot() []protocol.Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Stroke, len(r.strokes))
	for i, e := range r.strokes {
		out[i] = e.stroke.Clone()
	}
	return out
}

// Len is the number of strokes in the log.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strokes)
}

// PointCount is the number of points held by the log.
func (r *Room) PointCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.points
}

// Replace swaps the whole log for strokes and drops every redo stack.
// Restored strokes are treated as ended.
func (r *Room) Replace(strokes []protocol.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		if _, dup := r.ids[s.ID]; dup {
			continue
		}
		e := &strokeEntry{stroke: s.Clone(), ended: true, inLog: true}
		r.ids[s.ID] = e
		r.strokes = append(r.strokes, e)
		r.points += len(s.Points)
	}
	r.touch()
	r.evict(nil)
}

func (r *Room) unlink(e *strokeEntry) {
	for i, cur := range r.strokes {
		if cur == e {
			r.strokes = append(r.strokes[:i], r.strokes[i+1:]...)
			break
		}
	}
	r.points -= len(e.stroke.Points)
	e.inLog = false
}

// evict drops the oldest strokes, never keep, until the point cap holds.
func (r *Room) evict(keep *strokeEntry) {
	i := 0
	for r.points > r.opts.MaxPoints && i < len(r.strokes) {
		e := r.strokes[i]
		if e == keep {
			i++
			continue
		}
		r.strokes = append(r.strokes[:i], r.strokes[i+1:]...)
		r.points -= len(e.stroke.Points)
		e.inLog = false
		delete(r.ids, e.stroke.ID)
		r.evictions++
	}
}

func (r *Room) reset() {
	for _, e := range r.strokes {
		e.inLog = false
	}
	r.strokes = nil
	r.ids = make(map[string]*strokeEntry)
	r.redo = make(map[string][]*strokeEntry)
	r.points = 0
}
