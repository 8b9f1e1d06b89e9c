package canvas

import (
	"math"

	"github.com/dukex/agentflow/pkg/models"
)

// Node geometry in canvas units. Position is the top-left corner.
const (
	NodeWidth  = 200.0
	NodeHeight = 80.0
	PortRadius = 10.0
)

type HitKind int

const (
	HitNone HitKind = iota
	HitNode
	HitInputPort
	HitOutputPort
)

// Hit is what lies under a pointer.
type Hit struct {
	Kind   HitKind
	NodeID string
}

// InputPort is the mid-left port position of a node at position.
func InputPort(position models.Position) Point {
	return Point{X: position.X, Y: position.Y + NodeHeight/2}
}

// OutputPort is the mid-right port position of a node at position.
func OutputPort(position models.Position) Point {
	return Point{X: position.X + NodeWidth, Y: position.Y + NodeHeight/2}
}

func withinPort(p, port Point) bool {
	return math.Hypot(p.X-port.X, p.Y-port.Y) <= PortRadius
}

func withinBody(p Point, position models.Position) bool {
	return p.X >= position.X && p.X <= position.X+NodeWidth &&
		p.Y >= position.Y && p.Y <= position.Y+NodeHeight
}

// Bezier is a cubic curve from Start to End. Connections leave output ports
// horizontally and enter input ports horizontally.
type Bezier struct {
	Start Point `json:"start"`
	C1    Point `json:"c1"`
	C2    Point `json:"c2"`
	End   Point `json:"end"`
}

// Curve builds the connection curve between two canvas points.
func Curve(start, end Point) Bezier {
	offset := math.Max(50, math.Abs(end.X-start.X)/2)

	return Bezier{
		Start: start,
		C1:    Point{X: start.X + offset, Y: start.Y},
		C2:    Point{X: end.X - offset, Y: end.Y},
		End:   end,
	}
}

// At evaluates the curve at t in [0,1].
func (b Bezier) At(t float64) Point {
	u := 1 - t

	return Point{
		X: u*u*u*b.Start.X + 3*u*u*t*b.C1.X + 3*u*t*t*b.C2.X + t*t*t*b.End.X,
		Y: u*u*u*b.Start.Y + 3*u*u*t*b.C1.Y + 3*u*t*t*b.C2.Y + t*t*t*b.End.Y,
	}
}
