// Package layout is the geometry shared by drawing and hit testing.
//
// Every position the renderer draws and every pointer the hit tester resolves
// goes through these functions. Nothing else in the module computes planet or
// cell coordinates.
package layout

import (
	"math"

	"github.com/daviddao/cosmoview/internal/universe"
)

const (
	// PlanetSpacing is the distance between neighbouring planet centers.
	PlanetSpacing = 250.0
	// OverviewTop is the y coordinate of the first planet row.
	OverviewTop = 120.0
	// PlanetRadius is both the drawn radius and the hit radius of a planet.
	PlanetRadius = 80.0
	// DetailExtent is the side of the square a planet's grid is scaled into.
	DetailExtent = 100.0

	cellRadiusFactor  = 0.8
	minCellDrawRadius = 1.0
	minCellHitRadius  = 3.0
)

// Point is a canvas coordinate.
type Point struct {
	X float64
	Y float64
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// PlanetsPerRow returns the overview grid width for n planets.
func PlanetsPerRow(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// PlanetCenter returns the overview center of planet i out of n on a canvas
// canvasWidth units wide.
func PlanetCenter(i, n int, canvasWidth float64) Point {
	perRow := PlanetsPerRow(n)
	if perRow == 0 {
		return Point{}
	}
	startX := (canvasWidth - float64(perRow-1)*PlanetSpacing) / 2
	row := i / perRow
	col := i % perRow
	return Point{
		X: startX + float64(col)*PlanetSpacing,
		Y: OverviewTop + float64(row)*PlanetSpacing,
	}
}

// PlanetCenters returns the centers of all n planets in iteration order.
func PlanetCenters(n int, canvasWidth float64) []Point {
	centers := make([]Point, n)
	for i := range centers {
		centers[i] = PlanetCenter(i, n, canvasWidth)
	}
	return centers
}

// InPlanet reports whether pt lies within a planet's radius of center.
func InPlanet(pt, center Point) bool {
	return pt.Dist(center) <= PlanetRadius
}

// OverviewHeight is the canvas height needed to show n planets with their
// labels.
func OverviewHeight(n int) float64 {
	perRow := PlanetsPerRow(n)
	if perRow == 0 {
		return 0
	}
	rows := (n + perRow - 1) / perRow
	return OverviewTop + float64(rows-1)*PlanetSpacing + PlanetRadius + 40
}

// Surface maps a planet's local grid onto the canvas around its center.
type Surface struct {
	Center Point
	Scale  float64
}

// NewSurface builds the local-to-canvas mapping for a planet drawn at center.
func NewSurface(center Point, size universe.Size) Surface {
	return Surface{Center: center, Scale: CellScale(size)}
}

// CellScale returns canvas units per local grid unit. A degenerate size maps
// every cell onto the grid origin.
func CellScale(size universe.Size) float64 {
	m := math.Max(size.Width, size.Height)
	if m <= 0 {
		return 0
	}
	return DetailExtent / m
}

// CellCenter maps a local grid position to the canvas.
func (s Surface) CellCenter(pos universe.Vec) Point {
	half := DetailExtent / 2
	return Point{
		X: s.Center.X - half + pos.X*s.Scale,
		Y: s.Center.Y - half + pos.Y*s.Scale,
	}
}

// CellDrawRadius is the radius cells are drawn with.
func (s Surface) CellDrawRadius() float64 {
	return math.Max(minCellDrawRadius, s.Scale*cellRadiusFactor)
}

// CellHitRadius is the radius cells are hit tested with. It is never smaller
// than the drawn radius.
func (s Surface) CellHitRadius() float64 {
	return math.Max(minCellHitRadius, s.Scale*cellRadiusFactor)
}
