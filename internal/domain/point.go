package domain

// Point is a position in canvas logical coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Clamp bounds each axis into [0, max]. A negative max collapses to 0.
func (p Point) Clamp(maxX, maxY float64) Point {
	return Point{X: clamp(p.X, maxX), Y: clamp(p.Y, maxY)}
}

func clamp(v, upper float64) float64 {
	if v > upper {
		v = upper
	}
	if v < 0 {
		v = 0
	}
	return v
}
