package export

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// SVGOptions controls RenderSVG.
type SVGOptions struct {
	// NodeWidth and NodeHeight are used for nodes the renderer never measured
	NodeWidth  float64
	NodeHeight float64

	// Margin around the board
	Margin float64

	// Title is drawn in the top-left corner when set
	Title string
}

// DefaultSVGOptions returns the sizes the card renderer uses.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{NodeWidth: 220, NodeHeight: 80, Margin: 40}
}

// Card palette
const (
	cardFill   = "#ffffff"
	cardStroke = "#d1d5db"
	titleColor = "#111827"
	tagColor   = "#6b7280"
)

type box struct {
	x, y, w, h float64
}

// anchor returns the midpoint of side.
func (b box) anchor(side schema.HandlePosition) (float64, float64) {
	switch side {
	case schema.HandleLeft:
		return b.x, b.y + b.h/2
	case schema.HandleRight:
		return b.x + b.w, b.y + b.h/2
	case schema.HandleTop:
		return b.x + b.w/2, b.y
	default:
		return b.x + b.w/2, b.y + b.h
	}
}

// RenderSVG draws the board: the background pattern, edges styled from
// their derived style, and one card per node.
func RenderSVG(w io.Writer, nodes []schema.Node, edges []schema.Edge, s settings.BoardSettings, opts SVGOptions) error {
	def := DefaultSVGOptions()
	if opts.NodeWidth <= 0 {
		opts.NodeWidth = def.NodeWidth
	}
	if opts.NodeHeight <= 0 {
		opts.NodeHeight = def.NodeHeight
	}
	if opts.Margin < 0 {
		opts.Margin = def.Margin
	}

	boxes := make(map[string]box, len(nodes))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		b := box{x: n.Position.X, y: n.Position.Y, w: n.Width, h: n.Height}
		if b.w <= 0 {
			b.w = opts.NodeWidth
		}
		if b.h <= 0 {
			b.h = opts.NodeHeight
		}
		boxes[n.ID] = b
		minX, minY = math.Min(minX, b.x), math.Min(minY, b.y)
		maxX, maxY = math.Max(maxX, b.x+b.w), math.Max(maxY, b.y+b.h)
	}
	if len(nodes) == 0 {
		minX, minY, maxX, maxY = 0, 0, opts.NodeWidth, opts.NodeHeight
	}

	// Shift everything so the top-left node sits at the margin.
	dx, dy := opts.Margin-minX, opts.Margin-minY
	width := px(maxX - minX + 2*opts.Margin)
	height := px(maxY - minY + 2*opts.Margin)

	canvas := svg.New(w)
	canvas.Start(width, height)
	if opts.Title != "" {
		canvas.Title(opts.Title)
	}

	canvas.Def()
	background(canvas, s.Background)
	if s.MarkerEnd != settings.MarkerNone {
		m := px(math.Max(s.MarkerSize/2, 4))
		canvas.Marker("arrow", m, m/2, m, m, `orient="auto"`, `markerUnits="userSpaceOnUse"`)
		tip := []int{0, m, 0}
		if s.MarkerEnd == settings.MarkerArrowClosed {
			canvas.Polygon(tip, []int{0, m / 2, m}, "fill:"+s.EdgeColor)
		} else {
			canvas.Polyline(tip, []int{0, m / 2, m}, "fill:none;stroke-width:1.5;stroke:"+s.EdgeColor)
		}
		canvas.MarkerEnd()
	}
	canvas.DefEnd()

	canvas.Rect(0, 0, width, height, "fill:url(#bg)")

	for _, e := range edges {
		src, ok1 := boxes[e.Source]
		dst, ok2 := boxes[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		srcNode, dstNode := nodeByID(nodes, e.Source), nodeByID(nodes, e.Target)
		x1, y1 := src.anchor(srcNode.SourcePosition)
		x2, y2 := dst.anchor(dstNode.TargetPosition)

		stroke := e.Style.Stroke
		if stroke == "" {
			stroke = s.EdgeColor
		}
		strokeWidth := e.Style.StrokeWidth
		if strokeWidth <= 0 {
			strokeWidth = s.StrokeWidth
		}
		style := fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g", stroke, strokeWidth)
		if e.Animated {
			style += ";stroke-dasharray:5 5"
		}
		if e.MarkerEnd != nil {
			style += ";marker-end:url(#arrow)"
		}
		canvas.Path(edgePath(x1+dx, y1+dy, x2+dx, y2+dy, e.Type), style)
	}

	for _, n := range nodes {
		b := boxes[n.ID]
		x, y := px(b.x+dx), px(b.y+dy)
		canvas.Roundrect(x, y, px(b.w), px(b.h), 8, 8,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", cardFill, cardStroke))

		title := n.Data.Title
		if title == "" {
			title = n.ID
		}
		canvas.Text(x+12, y+26, truncate(title, 28),
			fmt.Sprintf("fill:%s;font-size:14px;font-family:system-ui,sans-serif;font-weight:600", titleColor))
		if len(n.Data.Tags) > 0 {
			tags := ""
			for i, t := range n.Data.Tags {
				if i > 0 {
					tags += " "
				}
				tags += "#" + t
			}
			canvas.Text(x+12, y+px(b.h)-14, truncate(tags, 34),
				fmt.Sprintf("fill:%s;font-size:11px;font-family:system-ui,sans-serif", tagColor))
		}
	}

	canvas.End()
	return nil
}

func background(canvas *svg.SVG, bg settings.Background) {
	gap := px(bg.Gap)
	if gap <= 0 {
		gap = 16
	}
	size := math.Max(bg.Size, 0.5)

	canvas.Pattern("bg", 0, 0, gap, gap, "user")
	canvas.Rect(0, 0, gap, gap, "fill:#ffffff")
	switch bg.Variant {
	case "lines":
		canvas.Path(fmt.Sprintf("M %d 0 L 0 0 0 %d", gap, gap),
			fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g", bg.Color, size))
	case "cross":
		c := gap / 2
		arm := px(size * 3)
		canvas.Path(fmt.Sprintf("M %d %d L %d %d M %d %d L %d %d", c-arm, c, c+arm, c, c, c-arm, c, c+arm),
			fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g", bg.Color, size))
	default:
		canvas.Circle(gap/2, gap/2, px(math.Max(size, 1)), "fill:"+bg.Color)
	}
	canvas.PatternEnd()
}

// edgePath draws straight and step connections literally and everything
// else as a cubic curve.
func edgePath(x1, y1, x2, y2 float64, kind string) string {
	switch kind {
	case "straight":
		return fmt.Sprintf("M %.1f %.1f L %.1f %.1f", x1, y1, x2, y2)
	case "step", "smoothstep":
		mx := (x1 + x2) / 2
		if math.Abs(x2-x1) < math.Abs(y2-y1) {
			my := (y1 + y2) / 2
			return fmt.Sprintf("M %.1f %.1f L %.1f %.1f L %.1f %.1f L %.1f %.1f", x1, y1, x1, my, x2, my, x2, y2)
		}
		return fmt.Sprintf("M %.1f %.1f L %.1f %.1f L %.1f %.1f L %.1f %.1f", x1, y1, mx, y1, mx, y2, x2, y2)
	default:
		mx := (x1 + x2) / 2
		return fmt.Sprintf("M %.1f %.1f C %.1f %.1f %.1f %.1f %.1f %.1f", x1, y1, mx, y1, mx, y2, x2, y2)
	}
}

func nodeByID(nodes []schema.Node, id string) schema.Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return schema.Node{}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func px(v float64) int {
	return int(math.Round(v))
}
