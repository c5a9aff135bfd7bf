package room

import "github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"

// Undo moves the author's most recent stroke still in the log onto their
// redo stack. The log is scanned rather than indexed so it stays the single
// source of truth while other authors add and remove strokes around it.
func (r *Room) Undo(authorID string) (protocol.Stroke, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.strokes) - 1; i >= 0; i-- {
		e := r.strokes[i]
		if e.stroke.AuthorID != authorID {
			continue
		}
		r.strokes = append(r.strokes[:i], r.strokes[i+1:]...)
		r.points -= len(e.stroke.Points)
		e.inLog = false
		// An undone stroke can no longer receive points, even if its end never arrived.
		e.ended = true
		r.pushRedo(authorID, e)
		r.touch()
		return e.stroke.Clone(), true
	}
	return protocol.Stroke{}, false
}

// Redo re-appends the author's most recently undone stroke at the tail of the
// log, not at its original position.
func (r *Room) Redo(authorID string) (protocol.Stroke, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.redo[authorID]
	if len(stack) == 0 {
		return protocol.Stroke{}, false
	}
	e := stack[len(stack)-1]
	stack[len(stack)-1] = nil
	if len(stack) == 1 {
		delete(r.redo, authorID)
	} else {
		r.redo[authorID] = stack[:len(stack)-1]
	}

	e.inLog = true
	r.strokes = append(r.strokes, e)
	r.points += len(e.stroke.Points)
	r.touch()
	r.evict(e)
	return e.stroke.Clone(), true
}

// ClearRedoStack discards everything the author could redo.
func (r *Room) ClearRedoStack(authorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearRedo(authorID)
}

// RedoDepth is the size of the author's redo stack.
func (r *Room) RedoDepth(authorID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.redo[authorID])
}

// Clear wipes the log and every redo stack. It returns the number of strokes
// that were in the log.
func (r *Room) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.strokes)
	r.reset()
	r.touch()
	return n
}

func (r *Room) clearRedo(authorID string) {
	stack, ok := r.redo[authorID]
	if !ok {
		return
	}
	for _, e := range stack {
		delete(r.ids, e.stroke.ID)
	}
	delete(r.redo, authorID)
	r.touch()
}

func (r *Room) pushRedo(authorID string, e *strokeEntry) {
	stack := append(r.redo[authorID], e)
	if depth := r.opts.MaxRedoDepth; depth > 0 && len(stack) > depth {
		for _, dropped := range stack[:len(stack)-depth] {
			delete(r.ids, dropped.stroke.ID)
		}
		stack = append([]*strokeEntry(nil), stack[len(stack)-depth:]...)
	}
	r.redo[authorID] = stack
}
