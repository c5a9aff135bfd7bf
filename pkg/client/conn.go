package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

const (
	// Default frame rate for flushing queued stroke points
	defaultFrameRate = 60

	writeWait = 10 * time.Second
)

var ErrClosed = errors.New("connection closed")

type Options struct {
	// FrameRate is how many times per second queued points are sent.
	FrameRate int
	Logger    *zap.Logger
	// OnEvent is called from the read loop after the engine applied a frame.
	OnEvent func(protocol.EventType)
}

// Conn is a canvas client connection driving an Engine. Writes are
// synchronous and serialized by wmu, so a stroke's points never overtake its
// stroke_start.
type Conn struct {
	ws     *websocket.Conn
	engine *Engine
	logger *zap.Logger
	frame  time.Duration
	notify func(protocol.EventType)

	mu     sync.Mutex
	roomID string

	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to a canvas server at url and starts the read and frame
// loops. Inbound frames are applied to engine.
func Dial(ctx context.Context, url string, engine *Engine, opts Options) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Conn{
		ws:     ws,
		engine: engine,
		logger: opts.Logger.Named("client"),
		frame:  time.Second / time.Duration(opts.FrameRate),
		notify: opts.OnEvent,
		done:   make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.frameLoop()
	return c, nil
}

func (c *Conn) Engine() *Engine {
	return c.engine
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := c.engine.Handle(data)
		if err != nil {
			c.logger.Debug("Ignoring bad frame", zap.String("event", string(event)), zap.Error(err))
			continue
		}
		if c.notify != nil {
			c.notify(event)
		}
	}
}

// frameLoop sends the queued points of every local stroke once per frame.
func (c *Conn) frameLoop() {
	ticker := time.NewTicker(c.frame)
	defer func() {
		ticker.Stop()
		c.wg.Done()
	}()

	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Flush sends queued points now instead of waiting for the next frame.
func (c *Conn) Flush() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	roomID := c.room()
	for _, b := range c.engine.Batcher().Drain() {
		if err := c.writeLocked(b.Frame(roomID)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) writeLocked(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *Conn) write(msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(msg)
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Close sends a close frame, stops both loops and closes the socket.
func (c *Conn) Close() error {
	c.wmu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()

	c.shutdown()
	// Unblock the read loop
	c.ws.SetReadDeadline(time.Now())
	c.wg.Wait()
	return c.ws.Close()
}

func (c *Conn) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// JoinRoom switches to roomID. Strokes queued for the previous room are
// dropped.
func (c *Conn) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	c.engine.Batcher().Reset()
	return c.write(protocol.MustEncode(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: roomID}))
}

func (c *Conn) LeaveRoom() error {
	return c.command(protocol.EventLeaveRoom)
}

// Undo removes this connection's newest stroke. A stroke still being drawn
// is the newest, so it is dropped locally as well.
func (c *Conn) Undo() error {
	return c.dropAndCommand(protocol.EventUndo)
}

func (c *Conn) Redo() error {
	return c.command(protocol.EventRedo)
}

func (c *Conn) ClearCanvas() error {
	return c.dropAndCommand(protocol.EventClearCanvas)
}

func (c *Conn) command(event protocol.EventType) error {
	return c.write(protocol.MustEncode(event, protocol.RoomCommand{RoomID: c.room()}))
}

func (c *Conn) dropAndCommand(event protocol.EventType) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.engine.DropLocal()
	return c.writeLocked(protocol.MustEncode(event, protocol.RoomCommand{RoomID: c.room()}))
}

func (c *Conn) MoveCursor(x, y float64) error {
	return c.write(protocol.MustEncode(protocol.EventCursorMove, protocol.CursorMove{
		RoomID: c.room(),
		X:      &x,
		Y:      &y,
	}))
}

// BeginStroke paints and announces a new stroke, returning its id.
func (c *Conn) BeginStroke(pt protocol.Point, style protocol.Style) (string, error) {
	strokeID := uuid.NewString()
	c.engine.BeginLocal(strokeID, pt, style)

	err := c.write(protocol.MustEncode(protocol.EventStrokeStart, protocol.StrokeStart{
		RoomID:   c.room(),
		StrokeID: strokeID,
		Point:    &pt,
		Style:    &style,
	}))
	return strokeID, err
}

// ExtendStroke paints pt now and sends it with the next frame.
func (c *Conn) ExtendStroke(strokeID string, pt protocol.Point) error {
	return c.engine.ExtendLocal(strokeID, pt)
}

// EndStroke sends any queued points of the stroke ahead of its stroke_end.
// Ending a stroke the server already removed sends nothing.
func (c *Conn) EndStroke(strokeID string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	pts, err := c.engine.EndLocal(strokeID)
	if errors.Is(err, ErrStrokeDropped) {
		return nil
	}
	if err != nil {
		return err
	}

	roomID := c.room()
	if len(pts) > 0 {
		if err := c.writeLocked(Batch{StrokeID: strokeID, Points: pts}.Frame(roomID)); err != nil {
			return err
		}
	}
	return c.writeLocked(protocol.MustEncode(protocol.EventStrokeEnd, protocol.StrokeEnd{
		RoomID:   roomID,
		StrokeID: strokeID,
	}))
}
