package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		name      string
		v, lo, hi float64
		want      float64
	}{
		{name: "Inside", v: 5, lo: 0, hi: 10, want: 5},
		{name: "Below", v: -3, lo: 0, hi: 10, want: 0},
		{name: "Above", v: 12, lo: 0, hi: 10, want: 10},
		{name: "OnEdge", v: 10, lo: 0, hi: 10, want: 10},
		{name: "InvertedRangePrefersLo", v: 5, lo: 8, hi: 2, want: 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Clamp(tc.v, tc.lo, tc.hi))
		})
	}
}

func TestSquaredDistance(t *testing.T) {
	require.Equal(t, 25.0, SquaredDistance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4}))
	require.Equal(t, 0.0, SquaredDistance(Point{X: 7, Y: -2}, Point{X: 7, Y: -2}))
}

func TestSizeCenter(t *testing.T) {
	require.Equal(t, Point{X: 150, Y: 300}, Size{Width: 300, Height: 600}.Center())
}

func TestSizeValid(t *testing.T) {
	require.True(t, Size{Width: 1, Height: 1}.Valid())
	require.False(t, Size{Width: 0, Height: 1}.Valid())
	require.False(t, Size{Width: math.Inf(1), Height: 1}.Valid())
	require.False(t, Size{Width: 10, Height: math.NaN()}.Valid())
}

func TestCircleContainsTruncated(t *testing.T) {
	c := Circle{Center: Point{X: 150, Y: 300}, Radius: 70}

	require.True(t, c.ContainsTruncated(c.Center), "center is inside")
	require.False(t, c.ContainsTruncated(Point{X: 220, Y: 300}), "exactly on the radius is outside")
	require.True(t, c.ContainsTruncated(Point{X: 219, Y: 300}))
	require.False(t, c.ContainsTruncated(Point{X: math.NaN(), Y: 300}))
}

func TestCircleTruncationShiftsBoundary(t *testing.T) {
	c := Circle{Center: Point{}, Radius: 2}
	// d² = 3.5 -> truncates to 3 < 4, and exact test agrees.
	p := Point{X: math.Sqrt(3.5)}
	require.True(t, c.ContainsTruncated(p))

	// d² just under 4: exact says inside, truncated still says inside (3 < 4).
	p = Point{X: math.Sqrt(3.99)}
	require.True(t, c.ContainsTruncated(p))

	// d² just above 4 truncates to 4 which is not < 4.
	p = Point{X: math.Sqrt(4.5)}
	require.False(t, c.ContainsTruncated(p))
}

func TestCircleContainsTruncated_FarPointIsOutside(t *testing.T) {
	c := Circle{Center: Point{X: 5e9, Y: 5e9}, Radius: 70}
	// d² is far beyond the int64 range.
	require.False(t, c.ContainsTruncated(Point{X: 1e10, Y: 25}))
	require.False(t, c.ContainsTruncated(Point{X: 1e300, Y: -1e300}))
	require.False(t, c.ContainsTruncated(Point{X: math.MaxFloat64, Y: 0}))
}

func TestPointAddAndFinite(t *testing.T) {
	require.Equal(t, Point{X: 155, Y: 297}, Point{X: 150, Y: 300}.Add(Point{X: 5, Y: -3}))
	require.True(t, Point{X: 1, Y: 2}.IsFinite())
	require.False(t, Point{X: math.Inf(-1), Y: 2}.IsFinite())
}
