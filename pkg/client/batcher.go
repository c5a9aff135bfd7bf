package client

import (
	"sync"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Batch is the queued points of one stroke.
type Batch struct {
	StrokeID string
	Points   []protocol.Point
}

// Frame encodes the batch: stroke_add for a single point, stroke_batch
// otherwise.
func (b Batch) Frame(roomID string) []byte {
	if len(b.Points) == 1 {
		pt := b.Points[0]
		return protocol.MustEncode(protocol.EventStrokeAdd, protocol.StrokeAdd{
			RoomID:   roomID,
			StrokeID: b.StrokeID,
			Point:    &pt,
		})
	}
	return protocol.MustEncode(protocol.EventStrokeBatch, protocol.StrokeBatch{
		RoomID:   roomID,
		StrokeID: b.StrokeID,
		Points:   b.Points,
	})
}

// Batcher coalesces the points of local strokes so each stroke sends at most
// one message per frame.
type Batcher struct {
	mu     sync.Mutex
	order  []string
	queued map[string][]protocol.Point
}

func NewBatcher() *Batcher {
	return &Batcher{queued: make(map[string][]protocol.Point)}
}

func (b *Batcher) Add(strokeID string, pt protocol.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queued[strokeID]; !ok {
		b.order = append(b.order, strokeID)
	}
	b.queued[strokeID] = append(b.queued[strokeID], pt)
}

// Take removes and returns the points queued for one stroke.
func (b *Batcher) Take(strokeID string) []protocol.Point {
	b.mu.Lock()
	defer b.mu.Unlock()

	pts, ok := b.queued[strokeID]
	if !ok {
		return nil
	}
	delete(b.queued, strokeID)
	for i, id := range b.order {
		if id == strokeID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return pts
}

// Drain empties the queue, one batch per stroke in first-queued order.
func (b *Batcher) Drain() []Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return nil
	}
	out := make([]Batch, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, Batch{StrokeID: id, Points: b.queued[id]})
	}
	b.order = nil
	b.queued = make(map[string][]protocol.Point)
	return out
}

func (b *Batcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.queued = make(map[string][]protocol.Point)
}

// Len returns the number of queued points across strokes.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, pts := range b.queued {
		n += len(pts)
	}
	return n
}
