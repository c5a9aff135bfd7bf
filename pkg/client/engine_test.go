package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

type segment struct {
	from, to protocol.Point
	style    protocol.Style
}

type recordingPainter struct {
	mu       sync.Mutex
	segments []segment
	clears   int
}

func (p *recordingPainter) DrawSegment(from, to protocol.Point, style protocol.Style) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = append(p.segments, segment{from, to, style})
}

func (p *recordingPainter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	p.segments = nil
}

func (p *recordingPainter) snapshot() ([]segment, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]segment(nil), p.segments...), p.clears
}

var (
	red  = protocol.Style{Color: "#ff0000", Width: 2}
	blue = protocol.Style{Color: "#0000ff", Width: 4}
)

func pt(x, y float64) protocol.Point { return protocol.Point{X: x, Y: y} }

func stroke(id, author string, style protocol.Style, pts ...protocol.Point) protocol.Stroke {
	return protocol.Stroke{ID: id, AuthorID: author, Points: pts, Style: style, CreatedAt: time.Now()}
}

func TestApplySnapshotPaintsInLogOrder(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.ApplySnapshot([]protocol.Stroke{
		stroke("s1", "a", red, pt(0, 0), pt(1, 0), pt(2, 0)),
		stroke("s2", "b", blue, pt(5, 5)),
	})

	segs, clears := p.snapshot()
	assert.Equal(t, 1, clears)
	require.Len(t, segs, 4)
	assert.Equal(t, segment{pt(0, 0), pt(0, 0), red}, segs[0])
	assert.Equal(t, segment{pt(0, 0), pt(1, 0), red}, segs[1])
	assert.Equal(t, segment{pt(1, 0), pt(2, 0), red}, segs[2])
	assert.Equal(t, segment{pt(5, 5), pt(5, 5), blue}, segs[3])
}

func TestDeltasPaintOneSegmentPerPoint(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))
	e.ApplyPoints("s1", []protocol.Point{pt(1, 1)})
	e.ApplyPoints("s1", []protocol.Point{pt(2, 2), pt(3, 3), pt(4, 4)})
	e.ApplyStrokeEnd("s1")

	segs, clears := p.snapshot()
	assert.Zero(t, clears, "deltas must never clear")
	require.Len(t, segs, 5)
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].to, segs[i].from, "segment %d must start at the previous tail", i)
	}
	assert.Equal(t, pt(4, 4), segs[4].to)
	assert.Zero(t, e.TrackedRemote())
}

func TestEarlyDeltasAreBuffered(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.ApplyPoints("s1", []protocol.Point{pt(1, 0)})
	e.ApplyPoints("s1", []protocol.Point{pt(2, 0), pt(3, 0)})

	segs, _ := p.snapshot()
	assert.Empty(t, segs, "nothing is painted before the stroke header")

	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", blue, pt(0, 0))))

	segs, _ = p.snapshot()
	require.Len(t, segs, 4)
	assert.Equal(t, segment{pt(0, 0), pt(1, 0), blue}, segs[1])
	assert.Equal(t, segment{pt(1, 0), pt(2, 0), blue}, segs[2])
	assert.Equal(t, segment{pt(2, 0), pt(3, 0), blue}, segs[3])
}

func TestEndBeforeStartIsHonored(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.ApplyPoints("s1", []protocol.Point{pt(1, 0)})
	e.ApplyStrokeEnd("s1")
	assert.Equal(t, 1, e.TrackedRemote())

	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))
	assert.Zero(t, e.TrackedRemote())

	segs, _ := p.snapshot()
	assert.Len(t, segs, 2)
}

func TestSnapshotRebuildsTails(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))
	e.ApplyPoints("s1", []protocol.Point{pt(1, 0)})

	// The server's view has advanced further than the deltas seen so far.
	e.ApplySnapshot([]protocol.Stroke{stroke("s1", "a", red, pt(0, 0), pt(1, 0), pt(2, 0))})
	e.ApplyPoints("s1", []protocol.Point{pt(3, 0)})

	segs, clears := p.snapshot()
	assert.Equal(t, 1, clears)
	require.Len(t, segs, 4)
	assert.Equal(t, segment{pt(2, 0), pt(3, 0), red}, segs[3])
}

func TestDuplicateStartAfterSnapshotIsIgnored(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.ApplySnapshot([]protocol.Stroke{stroke("s1", "a", red, pt(0, 0), pt(1, 0))})
	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))

	segs, _ := p.snapshot()
	assert.Len(t, segs, 2)
}

func TestApplyStrokeStartWithoutPoints(t *testing.T) {
	e := NewEngine(&recordingPainter{})
	err := e.ApplyStrokeStart(protocol.Stroke{ID: "s1", Style: red})
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestApplyClear(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))
	e.ApplyClear()

	segs, clears := p.snapshot()
	assert.Empty(t, segs)
	assert.Equal(t, 1, clears)
	assert.Zero(t, e.TrackedRemote())
}

func TestLocalStrokes(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.BeginLocal("mine", pt(0, 0), blue)
	require.NoError(t, e.ExtendLocal("mine", pt(1, 1)))
	require.NoError(t, e.ExtendLocal("mine", pt(2, 2)))

	segs, _ := p.snapshot()
	require.Len(t, segs, 3, "local points are painted immediately")
	assert.Equal(t, segment{pt(1, 1), pt(2, 2), blue}, segs[2])
	assert.Equal(t, 2, e.Batcher().Len())

	queued, err := e.EndLocal("mine")
	require.NoError(t, err)
	assert.Equal(t, []protocol.Point{pt(1, 1), pt(2, 2)}, queued)
	assert.Zero(t, e.Batcher().Len())

	assert.Error(t, e.ExtendLocal("mine", pt(3, 3)))
	_, err = e.EndLocal("mine")
	assert.Error(t, err)
}

func TestSnapshotDoesNotTrackOwnStrokes(t *testing.T) {
	e := NewEngine(&recordingPainter{})
	e.BeginLocal("mine", pt(0, 0), blue)

	e.ApplySnapshot([]protocol.Stroke{
		stroke("mine", "me", blue, pt(0, 0)),
		stroke("theirs", "them", red, pt(1, 1)),
	})
	assert.Equal(t, 1, e.TrackedRemote())
	assert.NoError(t, e.ExtendLocal("mine", pt(2, 2)))
}

func TestHandlePresence(t *testing.T) {
	e := NewEngine(&recordingPainter{})
	alice := protocol.Member{AuthorID: "a", DisplayName: "User-1", Color: "#e6194b"}
	bob := protocol.Member{AuthorID: "b", DisplayName: "User-2", Color: "#3cb44b"}

	handle := func(event protocol.EventType, payload any) {
		t.Helper()
		got, err := e.Handle(protocol.MustEncode(event, payload))
		require.NoError(t, err)
		require.Equal(t, event, got)
	}

	handle(protocol.EventRoomJoined, protocol.RoomJoined{RoomID: "r1"})
	handle(protocol.EventUserProfile, alice)
	handle(protocol.EventRoomUsers, protocol.RoomUsers{RoomID: "r1", Users: []protocol.Member{alice}})
	handle(protocol.EventUserJoined, bob)

	assert.Equal(t, "r1", e.RoomID())
	profile, ok := e.Profile()
	require.True(t, ok)
	assert.Equal(t, alice, profile)
	assert.Equal(t, []protocol.Member{alice, bob}, e.Members())

	x, y := 10.0, 20.0
	handle(protocol.EventCursorMove, protocol.CursorMove{AuthorID: "b", DisplayName: "User-2", Color: "#3cb44b", X: &x, Y: &y})
	cursors := e.Cursors()
	require.Contains(t, cursors, "b")
	assert.Equal(t, Cursor{Member: bob, X: 10, Y: 20}, cursors["b"])

	handle(protocol.EventCursorLeave, protocol.CursorLeave{AuthorID: "b"})
	assert.Empty(t, e.Cursors())

	handle(protocol.EventCursorMove, protocol.CursorMove{AuthorID: "b", X: &x, Y: &y})
	handle(protocol.EventUserLeft, protocol.UserLeft{AuthorID: "b"})
	assert.Equal(t, []protocol.Member{alice}, e.Members())
	assert.Empty(t, e.Cursors(), "leaving drops the member's cursor")
}

func TestHandleStrokeEvents(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	frames := [][]byte{
		protocol.MustEncode(protocol.EventStrokeStart, stroke("s1", "b", red, pt(0, 0))),
		protocol.MustEncode(protocol.EventStrokeAdd, protocol.StrokeAdd{StrokeID: "s1", Point: &protocol.Point{X: 1, Y: 0}}),
		protocol.MustEncode(protocol.EventStrokeBatch, protocol.StrokeBatch{StrokeID: "s1", Points: []protocol.Point{pt(2, 0), pt(3, 0)}}),
		protocol.MustEncode(protocol.EventStrokeEnd, protocol.StrokeEnd{StrokeID: "s1"}),
	}
	for _, f := range frames {
		_, err := e.Handle(f)
		require.NoError(t, err)
	}

	segs, _ := p.snapshot()
	assert.Len(t, segs, 4)

	_, err := e.Handle(protocol.MustEncode(protocol.EventRoomState, protocol.RoomState{RoomID: "r1"}))
	require.NoError(t, err)
	segs, clears := p.snapshot()
	assert.Empty(t, segs)
	assert.Equal(t, 1, clears)
}

func TestHandleMalformed(t *testing.T) {
	e := NewEngine(&recordingPainter{})

	_, err := e.Handle([]byte("not json"))
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	_, err = e.Handle([]byte(`{"type":"stroke_add","data":{"strokeId":"s1"}}`))
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	_, err = e.Handle([]byte(`{"type":"room_state"}`))
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestSnapshotRepaintsOwnStrokeInProgress(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.BeginLocal("mine", pt(0, 0), blue)
	require.NoError(t, e.ExtendLocal("mine", pt(10, 0)))
	require.NoError(t, e.ExtendLocal("mine", pt(20, 0)))

	// The server has only applied the first point.
	e.ApplySnapshot([]protocol.Stroke{stroke("mine", "me", blue, pt(0, 0))})
	require.NoError(t, e.ExtendLocal("mine", pt(30, 0)))

	segs, clears := p.snapshot()
	assert.Equal(t, 1, clears)
	assert.Equal(t, []segment{
		{pt(0, 0), pt(0, 0), blue},
		{pt(0, 0), pt(10, 0), blue},
		{pt(10, 0), pt(20, 0), blue},
		{pt(20, 0), pt(30, 0), blue},
	}, segs)
	assert.Equal(t, 3, e.Batcher().Len())
}

func TestSnapshotRepaintsOwnStrokeServerHasNotSeen(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.BeginLocal("mine", pt(0, 0), blue)
	require.NoError(t, e.ExtendLocal("mine", pt(1, 1)))

	e.ApplySnapshot([]protocol.Stroke{stroke("theirs", "them", red, pt(5, 5))})

	segs, _ := p.snapshot()
	assert.Equal(t, []segment{
		{pt(5, 5), pt(5, 5), red},
		{pt(0, 0), pt(0, 0), blue},
		{pt(0, 0), pt(1, 1), blue},
	}, segs)

	e.ApplySnapshot(nil)
	segs, _ = p.snapshot()
	assert.Len(t, segs, 2, "own ink survives an empty snapshot")
}

func TestSnapshotDropsOwnStrokeRemovedByServer(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.BeginLocal("mine", pt(0, 0), blue)
	e.ApplySnapshot([]protocol.Stroke{stroke("mine", "me", blue, pt(0, 0))})
	require.NoError(t, e.ExtendLocal("mine", pt(1, 1)))

	// Cleared by someone else after the server had the stroke.
	e.ApplySnapshot(nil)

	segs, _ := p.snapshot()
	assert.Empty(t, segs)
	assert.Zero(t, e.Batcher().Len())
	assert.ErrorIs(t, e.ExtendLocal("mine", pt(2, 2)), ErrStrokeDropped)

	_, err := e.EndLocal("mine")
	assert.ErrorIs(t, err, ErrStrokeDropped)
	_, err = e.EndLocal("mine")
	assert.NotErrorIs(t, err, ErrStrokeDropped, "ended strokes are forgotten")
}

func TestDropLocal(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.BeginLocal("mine", pt(0, 0), blue)
	require.NoError(t, e.ExtendLocal("mine", pt(1, 1)))
	e.DropLocal()

	assert.Zero(t, e.Batcher().Len())
	assert.ErrorIs(t, e.ExtendLocal("mine", pt(2, 2)), ErrStrokeDropped)

	e.ApplySnapshot(nil)
	segs, _ := p.snapshot()
	assert.Empty(t, segs)
}

func TestPendingPointsAreCapped(t *testing.T) {
	p := &recordingPainter{}
	e := NewEngine(p)

	e.ApplyPoints("s1", make([]protocol.Point, maxPendingPoints-1))
	e.ApplyPoints("s1", make([]protocol.Point, 10))
	require.NoError(t, e.ApplyStrokeStart(stroke("s1", "a", red, pt(0, 0))))

	segs, _ := p.snapshot()
	assert.Len(t, segs, 1+maxPendingPoints)
}
