// Command drawbot is a headless canvas client. It joins a room, draws a
// figure and writes everything it saw to a PDF.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/discovery"
	"github.com/Aviral1511/Collaborative-Canvas/internal/export"
	"github.com/Aviral1511/Collaborative-Canvas/internal/logging"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/client"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

type options struct {
	server   string
	discover bool
	roomID   string
	shape    string
	points   int
	color    string
	width    float64
	linger   time.Duration
	output   string
	logLevel string
}

func main() {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:           "drawbot",
		Short:         "Draw a figure into a canvas room and save what the room looks like",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.server, "server", "s", "ws://localhost:8000/ws", "Server websocket URL")
	flags.BoolVar(&opts.discover, "discover", false, "Find a server on the local network over mDNS")
	flags.StringVarP(&opts.roomID, "room", "r", "default", "Room to join")
	flags.StringVar(&opts.shape, "shape", "spiral", "Figure to draw: spiral, star or wave")
	flags.IntVar(&opts.points, "points", 120, "Points per figure")
	flags.StringVar(&opts.color, "color", "#4363d8", "Stroke color")
	flags.Float64Var(&opts.width, "width", 3, "Stroke width")
	flags.DurationVar(&opts.linger, "linger", 2*time.Second, "How long to keep watching the room after drawing")
	flags.StringVarP(&opts.output, "output", "o", "drawbot.pdf", "PDF output path")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger, err := logging.NewLogger(logging.Config{Level: opts.logLevel, Format: "text"})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	figure, err := shape(opts.shape, opts.points)
	if err != nil {
		return err
	}

	url := opts.server
	if opts.discover {
		found, err := discovery.Browse(3 * time.Second)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("no canvas server answered on the local network")
		}
		url = found[0]
		logger.Info("📡 Discovered server", zap.String("url", url), zap.Int("candidates", len(found)))
	}

	painter := export.NewPDFPainter()
	joined := make(chan struct{}, 1)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := client.Dial(dialCtx, url, client.NewEngine(painter), client.Options{
		Logger: logger,
		OnEvent: func(e protocol.EventType) {
			if e == protocol.EventRoomState {
				select {
				case joined <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.JoinRoom(opts.roomID); err != nil {
		return err
	}
	select {
	case <-joined:
	case <-conn.Done():
		return client.ErrClosed
	case <-time.After(5 * time.Second):
		return errors.New("timed out waiting for room state")
	}

	if profile, ok := conn.Engine().Profile(); ok {
		logger.Info("🎨 Joined room",
			zap.String("room_id", opts.roomID),
			zap.String("as", profile.DisplayName),
			zap.Int("members", len(conn.Engine().Members())))
	}

	style := protocol.Style{Color: opts.color, Width: opts.width}
	if err := draw(conn, figure, style); err != nil {
		return err
	}
	logger.Info("Figure drawn", zap.String("shape", opts.shape), zap.Int("points", len(figure)))

	select {
	case <-time.After(opts.linger):
	case <-conn.Done():
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := painter.WriteTo(f, export.Options{Title: "Room " + opts.roomID}); err != nil {
		return err
	}

	logger.Info("📁 Wrote canvas", zap.String("path", opts.output), zap.Int("segments", painter.Segments()))
	return nil
}

// draw sends the figure as one stroke, paced so points spread over frames
// the way a hand-drawn stroke would.
func draw(conn *client.Conn, figure []protocol.Point, style protocol.Style) error {
	strokeID, err := conn.BeginStroke(figure[0], style)
	if err != nil {
		return err
	}
	for _, p := range figure[1:] {
		err := conn.ExtendStroke(strokeID, p)
		if errors.Is(err, client.ErrStrokeDropped) {
			break
		}
		if err != nil {
			return err
		}
		time.Sleep(4 * time.Millisecond)
	}
	return conn.EndStroke(strokeID)
}

func shape(name string, n int) ([]protocol.Point, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 points, got %d", n)
	}
	const cx, cy = 400.0, 300.0

	pts := make([]protocol.Point, n)
	for i := range pts {
		t := float64(i) / float64(n-1)
		switch name {
		case "spiral":
			angle := t * 6 * math.Pi
			r := 10 + t*200
			pts[i] = protocol.Point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
		case "star":
			angle := t * 4 * math.Pi
			r := 200.0
			if i%2 == 1 {
				r = 80
			}
			pts[i] = protocol.Point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
		case "wave":
			pts[i] = protocol.Point{X: 50 + t*700, Y: cy + 100*math.Sin(t*4*math.Pi)}
		default:
			return nil, fmt.Errorf("unknown shape %q", name)
		}
	}
	return pts, nil
}
