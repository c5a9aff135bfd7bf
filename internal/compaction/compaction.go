package compaction

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/metrics"
	"github.com/Aviral1511/Collaborative-Canvas/internal/room"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Store persists room snapshots. *db.Database satisfies it.
type Store interface {
	SaveSnapshot(ctx context.Context, roomID string, strokes []protocol.Stroke, version uint64) error
}

type Config struct {
	Interval time.Duration
	// IdleTTL is how long a room may sit without members before it is
	// unloaded. Only applies when a Store is configured.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		IdleTTL:  30 * time.Minute,
	}
}

// Service periodically saves changed rooms and unloads the ones nobody uses.
type Service struct {
	rooms   *room.Registry
	store   Store
	metrics *metrics.Metrics
	config  Config
	logger  *zap.Logger

	// saved is the last persisted version per room; only touched by the run loop and Stop.
	saved map[string]uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates the service. store may be nil, in which case rooms are only
// unloaded once they hold neither strokes nor members.
func New(rooms *room.Registry, store Store, m *metrics.Metrics, config Config, logger *zap.Logger) *Service {
	return &Service{
		rooms:   rooms,
		store:   store,
		metrics: m,
		config:  config,
		logger:  logger.Named("compaction"),
		saved:   make(map[string]uint64),
		stop:    make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("🗜️ Compaction service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("idle_ttl", s.config.IdleTTL),
		zap.Bool("persistent", s.store != nil))
}

// Stop waits for the loop to exit, then saves every changed room one last time.
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.flush(ctx)
	s.logger.Info("🗜️ Compaction service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunOnce(context.Background(), time.Now())
		}
	}
}

// RunOnce flushes changed rooms and unloads idle ones as of now.
func (s *Service) RunOnce(ctx context.Context, now time.Time) {
	s.flush(ctx)
	s.collect(now)
	s.metrics.SetRooms(s.rooms.Count())
}

func (s *Service) flush(ctx context.Context) {
	if s.store == nil {
		return
	}

	flushed := 0
	for _, r := range s.rooms.Rooms() {
		// Read the version first; a racing write only causes one extra save later.
		version := r.Version()
		if last, ok := s.saved[r.ID]; ok && last == version {
			continue
		}
		if err := s.store.SaveSnapshot(ctx, r.ID, r.Snapshot(), version); err != nil {
			s.logger.Warn("Failed to save room", zap.String("room_id", r.ID), zap.Error(err))
			continue
		}
		s.saved[r.ID] = version
		flushed++
	}

	if flushed > 0 {
		s.logger.Debug("Rooms saved", zap.Int("count", flushed))
	}
}

func (s *Service) collect(now time.Time) {
	removed := 0
	for _, r := range s.rooms.Rooms() {
		if s.rooms.RemoveIf(r.ID, func(r *room.Room) bool { return s.collectable(r, now) }) {
			delete(s.saved, r.ID)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("🗜️ Unloaded idle rooms", zap.Int("count", removed), zap.Int("remaining", s.rooms.Count()))
	}
}

func (s *Service) collectable(r *room.Room, now time.Time) bool {
	if s.store == nil {
		return r.IsEmpty()
	}
	if r.MemberCount() > 0 {
		return false
	}
	if last, ok := s.saved[r.ID]; !ok || last != r.Version() {
		return false
	}
	return r.IsEmpty() || r.IdleFor(now) >= s.config.IdleTTL
}
