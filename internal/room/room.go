package room

import (
	"sync"
	"time"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// DefaultPalette is the set of member colors handed out before falling back
// to random picks.
var DefaultPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#bfef45",
}

type Options struct {
	// MaxPoints caps the total number of points held in a room's log.
	// Oldest strokes are evicted once it is exceeded. Values below one fall
	// back to DefaultMaxPoints; the cap cannot be turned off.
	MaxPoints int

	// MaxRedoDepth caps each author's redo stack. Zero disables the cap.
	MaxRedoDepth int

	Palette []string
}

const DefaultMaxPoints = 50000

func DefaultOptions() Options {
	return Options{
		MaxPoints:    DefaultMaxPoints,
		MaxRedoDepth: 100,
		Palette:      DefaultPalette,
	}
}

type strokeEntry struct {
	stroke protocol.Stroke
	ended  bool
	inLog  bool
}

type memberEntry struct {
	member protocol.Member
	seq    uint64
}

// A shared drawing session: stroke log, redo stacks and presence
type Room struct {
	ID   string
	opts Options

	// serial orders whole event handlings; mu guards the data below.
	serial sync.Mutex
	mu     sync.RWMutex

	strokes []*strokeEntry
	ids     map[string]*strokeEntry
	redo    map[string][]*strokeEntry
	points  int

	members map[string]*memberEntry
	joins   uint64

	version   uint64
	evictions uint64
	idleSince time.Time
	createdAt time.Time
}

// Creates a new room with the given ID
func NewRoom(id string, opts Options) *Room {
	if len(opts.Palette) == 0 {
		opts.Palette = DefaultPalette
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	now := time.Now()
	return &Room{
		ID:        id,
		opts:      opts,
		ids:       make(map[string]*strokeEntry),
		redo:      make(map[string][]*strokeEntry),
		members:   make(map[string]*memberEntry),
		idleSince: now,
		createdAt: now,
	}
}

// Serialize runs fn while holding the room's event lock, so that a mutation
// and the messages it produces are ordered against every other event of the
// room. fn must not block on network I/O.
func (r *Room) Serialize(fn func()) {
	r.serial.Lock()
	defer r.serial.Unlock()
	fn()
}

// Version increases on every mutation of the stroke log or redo stacks.
func (r *Room) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Evictions counts strokes dropped to honor MaxPoints.
func (r *Room) Evictions() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evictions
}

// IsEmpty reports whether the room has neither strokes nor members.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strokes) == 0 && len(r.members) == 0
}

// IdleFor returns how long the room has had no members, or zero if it has any.
func (r *Room) IdleFor(now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.members) > 0 {
		return 0
	}
	return now.Sub(r.idleSince)
}

func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

func (r *Room) touch() {
	r.version++
}
