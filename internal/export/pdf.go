// Package export renders stroke logs to PDF.
package export

import (
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/jung-kurt/gofpdf"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

const (
	pageWidth  = 297.0 // A4 landscape, mm
	pageHeight = 210.0
	margin     = 10.0
	pxToMM     = 25.4 / 96
)

type Options struct {
	Title string
}

// Render writes strokes, in log order, as a single-page PDF. The drawing is
// translated to the page margin and scaled down to fit when larger than the page.
func Render(w io.Writer, strokes []protocol.Stroke, opts Options) error {
	p := newDocument(opts.Title)
	t := fit(strokes)

	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		setStyle(p, s.Style, t.scale)

		if len(s.Points) == 1 {
			x, y := t.apply(s.Points[0])
			p.Circle(x, y, math.Max(s.Style.Width*t.scale/2, 0.1), "F")
			continue
		}

		x, y := t.apply(s.Points[0])
		p.MoveTo(x, y)
		for _, pt := range s.Points[1:] {
			x, y = t.apply(pt)
			p.LineTo(x, y)
		}
		p.DrawPath("D")
	}

	return p.Output(w)
}

func newDocument(title string) *gofpdf.Fpdf {
	p := gofpdf.New("L", "mm", "A4", "")
	if title != "" {
		p.SetTitle(title, true)
	}
	p.SetCreator("collaborative-canvas", true)
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")
	p.AddPage()
	return p
}

type transform struct {
	minX, minY float64
	scale      float64
}

func (t transform) apply(pt protocol.Point) (float64, float64) {
	return margin + (pt.X-t.minX)*t.scale, margin + (pt.Y-t.minY)*t.scale
}

func fit(strokes []protocol.Stroke) transform {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range strokes {
		for _, pt := range s.Points {
			minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return transform{scale: pxToMM}
	}

	scale := pxToMM
	if w := (maxX - minX) * scale; w > pageWidth-2*margin {
		scale = (pageWidth - 2*margin) / (maxX - minX)
	}
	if h := (maxY - minY) * scale; h > pageHeight-2*margin {
		scale = (pageHeight - 2*margin) / (maxY - minY)
	}
	return transform{minX: minX, minY: minY, scale: scale}
}

func setStyle(p *gofpdf.Fpdf, style protocol.Style, scale float64) {
	r, g, b := parseColor(style.Color)
	p.SetDrawColor(r, g, b)
	p.SetFillColor(r, g, b)
	p.SetLineWidth(math.Max(style.Width*scale, 0.1))
}

// parseColor reads #rgb and #rrggbb, falling back to black.
func parseColor(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

type segment struct {
	from, to protocol.Point
	style    protocol.Style
}

// PDFPainter records painted segments and writes them out as a PDF. It
// satisfies the client engine's Painter and is safe for concurrent use.
type PDFPainter struct {
	mu       sync.Mutex
	segments []segment
}

func NewPDFPainter() *PDFPainter {
	return &PDFPainter{}
}

func (p *PDFPainter) DrawSegment(from, to protocol.Point, style protocol.Style) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = append(p.segments, segment{from: from, to: to, style: style})
}

func (p *PDFPainter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = nil
}

func (p *PDFPainter) Segments() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.segments)
}

var ErrNothingPainted = errors.New("nothing painted")

// WriteTo renders the recorded segments at their canvas coordinates.
func (p *PDFPainter) WriteTo(w io.Writer, opts Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.segments) == 0 {
		return ErrNothingPainted
	}
	doc := newDocument(opts.Title)

	strokes := make([]protocol.Stroke, len(p.segments))
	for i, s := range p.segments {
		strokes[i] = protocol.Stroke{Points: []protocol.Point{s.from, s.to}}
	}
	t := fit(strokes)

	for _, s := range p.segments {
		setStyle(doc, s.style, t.scale)
		x1, y1 := t.apply(s.from)
		x2, y2 := t.apply(s.to)
		doc.Line(x1, y1, x2, y2)
	}
	return doc.Output(w)
}
