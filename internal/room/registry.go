package room

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Loader restores a room's stroke log when the room is first created.
type Loader interface {
	LoadStrokes(ctx context.Context, roomID string) ([]protocol.Stroke, error)
}

// Registry owns every live room, keyed by room id.
type Registry struct {
	opts   Options
	loader Loader
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry. loader may be nil.
func NewRegistry(opts Options, loader Loader, logger *zap.Logger) *Registry {
	return &Registry{
		opts:   opts,
		loader: loader,
		logger: logger.Named("rooms"),
		rooms:  make(map[string]*Room),
	}
}

func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// GetOrCreate returns the room, creating it lazily. A newly created room is
// seeded from the loader when one is configured; load failures leave it empty.
func (r *Registry) GetOrCreate(ctx context.Context, id string) *Room {
	if room, ok := r.Get(id); ok {
		return room
	}

	var seed []protocol.Stroke
	if r.loader != nil {
		strokes, err := r.loader.LoadStrokes(ctx, id)
		if err != nil {
			r.logger.Warn("Failed to load room state", zap.String("room_id", id), zap.Error(err))
		}
		seed = strokes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok {
		return room
	}
	room := NewRoom(id, r.opts)
	if len(seed) > 0 {
		room.Replace(seed)
		r.logger.Info("Room restored", zap.String("room_id", id), zap.Int("strokes", room.Len()))
	}
	r.rooms[id] = room
	return room
}

// Join adds authorID to the room, creating the room if needed. Membership is
// recorded while the registry is read-locked, so a concurrent RemoveIf can
// never retire the room underneath a joining member.
func (r *Registry) Join(ctx context.Context, id, authorID string) (*Room, protocol.Member) {
	for {
		room := r.GetOrCreate(ctx, id)

		r.mu.RLock()
		if current, ok := r.rooms[id]; ok && current == room {
			m := room.Join(authorID)
			r.mu.RUnlock()
			return room, m
		}
		r.mu.RUnlock()
	}
}

// RemoveIf drops the room when pred holds, evaluated under the registry lock.
func (r *Registry) RemoveIf(id string, pred func(*Room) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok || !pred(room) {
		return false
	}
	delete(r.rooms, id)
	return true
}

// Rooms returns the live rooms ordered by id.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
