// Package geom holds the small amount of 2D geometry the game needs:
// points in playfield coordinates, the playfield size and the target circle.
package geom

import "math"

// Point is a location in playfield coordinates (origin top-left, Y grows down).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// IsFinite reports whether both coordinates are finite.
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Size is the playfield extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) Center() Point {
	return Point{X: s.Width * 0.5, Y: s.Height * 0.5}
}

func (s Size) Valid() bool {
	return isFinite(s.Width) && isFinite(s.Height) && s.Width > 0 && s.Height > 0
}

// Circle is a target region. Radius is integral so the squared radius used by
// the hit-test is exact.
type Circle struct {
	Center Point `json:"center"`
	Radius int   `json:"radius"`
}

// ContainsTruncated truncates the squared distance to an integer before the
// strict comparison against Radius². A point exactly on the edge is outside.
func (c Circle) ContainsTruncated(p Point) bool {
	d2 := SquaredDistance(p, c.Center)
	r2 := int64(c.Radius) * int64(c.Radius)
	// d2 must be below r2 before the conversion; larger values can overflow int64.
	if !isFinite(d2) || d2 >= float64(r2) {
		return false
	}
	return int64(d2) < r2
}

// Clamp restricts v to [lo, hi]. If lo > hi the result is lo.
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func SquaredDistance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
