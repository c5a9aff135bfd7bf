// Package session routes decoded client events to room state and fans the
// resulting messages out through the connection gateway.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/metrics"
	"github.com/Aviral1511/Collaborative-Canvas/internal/room"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

const tracerName = "github.com/Aviral1511/Collaborative-Canvas/internal/session"

// Gateway is the connection side the coordinator drives. Send and Broadcast
// must not block.
type Gateway interface {
	Join(connID, roomID string) (string, error)
	Leave(connID string) string
	CurrentRoom(connID string) (string, bool)
	Send(connID string, data []byte) bool
	Broadcast(roomID string, data []byte, except string)
}

// Coordinator applies inbound events to rooms. Every event touching a room is
// handled inside that room's Serialize, including the hand-off of its
// outbound messages, so all members observe one order per room.
type Coordinator struct {
	rooms   *room.Registry
	gateway Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewCoordinator(rooms *room.Registry, gateway Gateway, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		rooms:   rooms,
		gateway: gateway,
		logger:  logger.Named("coordinator"),
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

// Dispatch decodes and handles one inbound frame. Failures are logged and
// counted, never reported to the sender.
func (c *Coordinator) Dispatch(ctx context.Context, connID string, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.drop("unknown", connID, err)
		return
	}

	ctx, span := c.tracer.Start(ctx, "canvas."+string(env.Type),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("canvas.event", string(env.Type)),
			attribute.String("canvas.conn_id", connID),
		),
	)
	defer span.End()

	if err := c.handle(ctx, connID, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.drop(string(env.Type), connID, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	c.metrics.EventProcessed(string(env.Type))
}

func (c *Coordinator) handle(ctx context.Context, connID string, env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoom
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.join(ctx, connID, p.RoomID)

	case protocol.EventLeaveRoom:
		var p protocol.RoomCommand
		if err := decode(env, &p); err != nil {
			return err
		}
		if _, err := c.memberRoom(connID, p.RoomID); err != nil {
			return err
		}
		c.leave(connID, p.RoomID)
		return nil

	case protocol.EventStrokeStart:
		var p protocol.StrokeStart
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.strokeStart(connID, p)

	case protocol.EventStrokeAdd:
		var p protocol.StrokeAdd
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.strokeAppend(connID, p.RoomID, p.StrokeID, []protocol.Point{*p.Point}, func() []byte {
			return protocol.MustEncode(protocol.EventStrokeAdd, protocol.StrokeAdd{StrokeID: p.StrokeID, Point: p.Point})
		})

	case protocol.EventStrokeBatch:
		var p protocol.StrokeBatch
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.strokeAppend(connID, p.RoomID, p.StrokeID, p.Points, func() []byte {
			return protocol.MustEncode(protocol.EventStrokeBatch, protocol.StrokeBatch{StrokeID: p.StrokeID, Points: p.Points})
		})

	case protocol.EventStrokeEnd:
		var p protocol.StrokeEnd
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.strokeEnd(connID, p)

	case protocol.EventUndo, protocol.EventRedo, protocol.EventClearCanvas:
		var p protocol.RoomCommand
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.history(connID, env.Type, p.RoomID)

	case protocol.EventCursorMove:
		var p protocol.CursorMove
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.cursorMove(connID, p)

	default:
		return fmt.Errorf("%w: unexpected event %q", protocol.ErrMalformed, env.Type)
	}
}

type validator interface {
	Validate() error
}

func decode(env protocol.Envelope, v validator) error {
	if err := env.Payload(v); err != nil {
		return err
	}
	return v.Validate()
}

// memberRoom resolves roomID for connID, failing unless it is the
// connection's current room.
func (c *Coordinator) memberRoom(connID, roomID string) (*room.Room, error) {
	current, ok := c.gateway.CurrentRoom(connID)
	if !ok || current != roomID {
		return nil, fmt.Errorf("room %s: %w", roomID, room.ErrNotMember)
	}
	r, ok := c.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, room.ErrNotMember)
	}
	return r, nil
}

func (c *Coordinator) join(ctx context.Context, connID, roomID string) error {
	current, inRoom := c.gateway.CurrentRoom(connID)
	if inRoom && current != roomID {
		c.leave(connID, current)
	}
	rejoin := inRoom && current == roomID

	r, member := c.rooms.Join(ctx, roomID, connID)

	var err error
	r.Serialize(func() {
		if _, err = c.gateway.Join(connID, roomID); err != nil {
			r.Leave(connID)
			return
		}
		c.gateway.Send(connID, protocol.MustEncode(protocol.EventRoomJoined, protocol.RoomJoined{RoomID: roomID}))
		c.gateway.Send(connID, protocol.MustEncode(protocol.EventUserProfile, member))
		c.gateway.Send(connID, c.roomState(r))
		if rejoin {
			c.gateway.Send(connID, roomUsers(r))
			return
		}
		c.gateway.Broadcast(roomID, protocol.MustEncode(protocol.EventUserJoined, member), connID)
		c.gateway.Broadcast(roomID, roomUsers(r), "")
	})
	if err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	if rejoin {
		return nil
	}

	c.logger.Info("👤 Member joined",
		zap.String("room_id", roomID),
		zap.String("conn_id", connID),
		zap.String("display_name", member.DisplayName))
	return nil
}

// leave drops connID from roomID and tells the remaining members.
func (c *Coordinator) leave(connID, roomID string) {
	r, ok := c.rooms.Get(roomID)
	if !ok {
		c.gateway.Leave(connID)
		return
	}

	var member protocol.Member
	var wasMember bool
	r.Serialize(func() {
		c.gateway.Leave(connID)
		member, wasMember = r.Leave(connID)
		if !wasMember {
			return
		}
		c.gateway.Broadcast(roomID, protocol.MustEncode(protocol.EventCursorLeave, protocol.CursorLeave{AuthorID: connID}), "")
		c.gateway.Broadcast(roomID, protocol.MustEncode(protocol.EventUserLeft, protocol.UserLeft{AuthorID: connID}), "")
		c.gateway.Broadcast(roomID, roomUsers(r), "")
	})

	if wasMember {
		c.logger.Info("👋 Member left",
			zap.String("room_id", roomID),
			zap.String("conn_id", connID),
			zap.String("display_name", member.DisplayName))
	}
}

// Disconnect is an implicit leave_room. Strokes the connection left open stay
// open.
func (c *Coordinator) Disconnect(connID string) {
	if roomID, ok := c.gateway.CurrentRoom(connID); ok {
		c.leave(connID, roomID)
	}
}

func (c *Coordinator) strokeStart(connID string, p protocol.StrokeStart) error {
	r, err := c.memberRoom(connID, p.RoomID)
	if err != nil {
		return err
	}

	r.Serialize(func() {
		evicted := r.Evictions()
		var stroke protocol.Stroke
		if stroke, err = r.StartStroke(p.StrokeID, connID, *p.Point, *p.Style); err != nil {
			return
		}
		c.gateway.Broadcast(p.RoomID, protocol.MustEncode(protocol.EventStrokeStart, stroke), connID)
		c.afterEviction(r, evicted)
	})
	return err
}

func (c *Coordinator) strokeAppend(connID, roomID, strokeID string, pts []protocol.Point, delta func() []byte) error {
	r, err := c.memberRoom(connID, roomID)
	if err != nil {
		return err
	}

	r.Serialize(func() {
		evicted := r.Evictions()
		if err = r.AppendPoints(strokeID, connID, pts); err != nil {
			return
		}
		c.gateway.Broadcast(roomID, delta(), connID)
		c.afterEviction(r, evicted)
	})
	return err
}

func (c *Coordinator) strokeEnd(connID string, p protocol.StrokeEnd) error {
	r, err := c.memberRoom(connID, p.RoomID)
	if err != nil {
		return err
	}

	r.Serialize(func() {
		if err = r.End(p.StrokeID, connID); err != nil {
			return
		}
		c.gateway.Broadcast(p.RoomID, protocol.MustEncode(protocol.EventStrokeEnd, protocol.StrokeEnd{StrokeID: p.StrokeID}), connID)
	})
	return err
}

func (c *Coordinator) history(connID string, event protocol.EventType, roomID string) error {
	r, err := c.memberRoom(connID, roomID)
	if err != nil {
		return err
	}

	r.Serialize(func() {
		switch event {
		case protocol.EventUndo:
			if _, ok := r.Undo(connID); ok {
				c.broadcastState(r)
			}
		case protocol.EventRedo:
			evicted := r.Evictions()
			if _, ok := r.Redo(connID); ok {
				c.metrics.StrokesEvicted(r.Evictions() - evicted)
				c.broadcastState(r)
			}
		case protocol.EventClearCanvas:
			n := r.Clear()
			c.gateway.Broadcast(roomID, protocol.MustEncode(protocol.EventClearCanvas, protocol.CanvasCleared{RoomID: roomID}), "")
			c.broadcastState(r)
			c.logger.Info("🧹 Canvas cleared",
				zap.String("room_id", roomID), zap.String("conn_id", connID), zap.Int("strokes", n))
		}
	})
	return nil
}

func (c *Coordinator) cursorMove(connID string, p protocol.CursorMove) error {
	r, err := c.memberRoom(connID, p.RoomID)
	if err != nil {
		return err
	}

	r.Serialize(func() {
		member, ok := r.Member(connID)
		if !ok {
			err = fmt.Errorf("cursor %s: %w", connID, room.ErrNotMember)
			return
		}
		c.gateway.Broadcast(p.RoomID, protocol.MustEncode(protocol.EventCursorMove, protocol.CursorMove{
			AuthorID:    member.AuthorID,
			DisplayName: member.DisplayName,
			Color:       member.Color,
			X:           p.X,
			Y:           p.Y,
		}), connID)
	})
	return err
}

// Restore replaces the room's stroke log with strokes, as when a checkpoint is
// loaded, and pushes the new state to every member.
func (c *Coordinator) Restore(ctx context.Context, roomID string, strokes []protocol.Stroke) {
	r := c.rooms.GetOrCreate(ctx, roomID)
	r.Serialize(func() {
		evicted := r.Evictions()
		r.Replace(strokes)
		c.metrics.StrokesEvicted(r.Evictions() - evicted)
		c.broadcastState(r)
	})
	c.logger.Info("⏪ Room restored", zap.String("room_id", roomID), zap.Int("strokes", len(strokes)))
}

// afterEviction follows a delta with a full snapshot when the write pushed
// older strokes out of the log.
func (c *Coordinator) afterEviction(r *room.Room, before uint64) {
	evicted := r.Evictions() - before
	if evicted == 0 {
		return
	}
	c.metrics.StrokesEvicted(evicted)
	c.broadcastState(r)
	c.logger.Debug("Strokes evicted", zap.String("room_id", r.ID), zap.Uint64("count", evicted))
}

func (c *Coordinator) broadcastState(r *room.Room) {
	c.gateway.Broadcast(r.ID, c.roomState(r), "")
}

func (c *Coordinator) roomState(r *room.Room) []byte {
	c.metrics.SnapshotSent()
	return protocol.MustEncode(protocol.EventRoomState, protocol.RoomState{RoomID: r.ID, Strokes: r.Snapshot()})
}

func roomUsers(r *room.Room) []byte {
	return protocol.MustEncode(protocol.EventRoomUsers, protocol.RoomUsers{RoomID: r.ID, Users: r.Members()})
}

func (c *Coordinator) drop(event, connID string, err error) {
	kind := room.KindOf(err)
	c.metrics.EventDropped(event, string(kind))

	fields := []zap.Field{
		zap.String("event", event),
		zap.String("conn_id", connID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if kind == room.KindInternal || errors.Is(err, room.ErrNotOwner) {
		c.logger.Warn("Event dropped", fields...)
		return
	}
	c.logger.Debug("Event dropped", fields...)
}
