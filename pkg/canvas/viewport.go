package canvas

import "math"

// Zoom bounds and step.
const (
	MinZoom     = 0.25
	MaxZoom     = 2.0
	ZoomStep    = 0.1
	DefaultZoom = 1.0
)

// Point is a 2D coordinate, in screen or canvas space depending on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Viewport is the affine transform screen = canvas*Zoom + Pan.
type Viewport struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`
}

func DefaultViewport() Viewport {
	return Viewport{Zoom: DefaultZoom}
}

// ToCanvas inverts the transform for a pointer position.
func (v Viewport) ToCanvas(screen Point) Point {
	return Point{
		X: (screen.X - v.PanX) / v.Zoom,
		Y: (screen.Y - v.PanY) / v.Zoom,
	}
}

func (v Viewport) ToScreen(canvas Point) Point {
	return Point{
		X: canvas.X*v.Zoom + v.PanX,
		Y: canvas.Y*v.Zoom + v.PanY,
	}
}

// ZoomedAt returns the viewport at zoom with the canvas point under anchor
// kept in place.
func (v Viewport) ZoomedAt(anchor Point, zoom float64) Viewport {
	zoom = ClampZoom(zoom)
	fixed := v.ToCanvas(anchor)

	return Viewport{
		Zoom: zoom,
		PanX: anchor.X - fixed.X*zoom,
		PanY: anchor.Y - fixed.Y*zoom,
	}
}

// ClampZoom bounds zoom to [MinZoom, MaxZoom] and rounds it to the step grid
// so repeated steps do not accumulate float error.
func ClampZoom(zoom float64) float64 {
	zoom = math.Round(zoom*100) / 100

	return math.Max(MinZoom, math.Min(MaxZoom, zoom))
}
