package scene

import (
	"fmt"
	"math"

	"github.com/daviddao/cosmoview/internal/layout"
	"github.com/daviddao/cosmoview/internal/universe"
)

// Placeholder is the frame text shown before any planets are known.
const Placeholder = "Loading Universe..."

// Overview decoration limits: at most this many population dots per ring.
const (
	maxHerbivoreDots = 20
	maxCarnivoreDots = 10

	herbivoreRing = 60.0
	carnivoreRing = 45.0
)

// Role says what a circle depicts.
type Role int

const (
	RolePlanet Role = iota
	RoleCell
	RoleHerbivoreDot
	RoleCarnivoreDot
)

// Circle is one filled disc in canvas units. Tone is the category used to
// pick a color: the planet type for planets, the cell type for cells.
type Circle struct {
	Center    layout.Point
	Radius    float64
	Role      Role
	Tone      string
	Highlight bool

	PlanetID string
	CellID   int // RoleCell only
}

// LabelRole says what a label shows.
type LabelRole int

const (
	LabelName LabelRole = iota
	LabelTemperature
	LabelPopulation
	LabelDiscoveries
	LabelPlaceholder
)

// Label is text centered on a canvas point.
type Label struct {
	At   layout.Point
	Text string
	Role LabelRole
	Tone string
}

// Canvas is the drawing surface size in canvas units.
type Canvas struct {
	Width  float64
	Height float64
}

// Frame is everything to draw for one snapshot and view state, back to front.
type Frame struct {
	Canvas  Canvas
	Circles []Circle
	Labels  []Label

	// Empty is set when there is nothing but the placeholder to show.
	Empty bool

	// Focus is the center of the zoomed planet in Detail.
	Focus    layout.Point
	HasFocus bool
}

// Render lays out snap for the view state v. A nil snapshot or one without
// planets yields a placeholder frame.
func Render(snap *universe.Snapshot, v ViewState, canvas Canvas) Frame {
	f := Frame{Canvas: canvas}
	if snap == nil || len(snap.Planets) == 0 {
		f.Empty = true
		f.Labels = append(f.Labels, Label{
			At:   layout.Point{X: canvas.Width / 2, Y: canvas.Height / 2},
			Text: Placeholder,
			Role: LabelPlaceholder,
		})
		return f
	}

	n := len(snap.Planets)
	for i := range snap.Planets {
		p := &snap.Planets[i]
		center := layout.PlanetCenter(i, n, canvas.Width)
		zoomed := v.Zoomed(p.ID)

		f.Circles = append(f.Circles, Circle{
			Center:    center,
			Radius:    layout.PlanetRadius,
			Role:      RolePlanet,
			Tone:      p.Type,
			Highlight: zoomed,
			PlanetID:  p.ID,
		})
		f.Labels = append(f.Labels, planetLabels(p, center)...)

		if zoomed {
			f.Focus = center
			f.HasFocus = true
			f.Circles = append(f.Circles, cellCircles(p, center, v)...)
		} else {
			f.Circles = append(f.Circles, populationDots(p, center)...)
		}
	}
	return f
}

func planetLabels(p *universe.Planet, center layout.Point) []Label {
	labels := []Label{
		{At: offset(center, -110), Text: p.Name, Role: LabelName},
		{
			At:   offset(center, -95),
			Text: fmt.Sprintf("%.0f°C", p.Conditions.Temperature),
			Role: LabelTemperature,
			Tone: TemperatureTone(p.Conditions.Temperature),
		},
		{At: offset(center, 100), Text: fmt.Sprintf("Pop: %d", p.CellCounts.Total()), Role: LabelPopulation},
	}
	if p.TotalDiscoveries > 0 {
		labels = append(labels, Label{
			At:   offset(center, 112),
			Text: fmt.Sprintf("%d discoveries", p.TotalDiscoveries),
			Role: LabelDiscoveries,
		})
	}
	return labels
}

// TemperatureTone buckets a temperature for coloring.
func TemperatureTone(celsius float64) string {
	switch {
	case celsius > 30:
		return "hot"
	case celsius < 0:
		return "cold"
	}
	return "mild"
}

func cellCircles(p *universe.Planet, center layout.Point, v ViewState) []Circle {
	surface := layout.NewSurface(center, p.Size)
	radius := surface.CellDrawRadius()
	circles := make([]Circle, 0, len(p.Cells))
	for _, c := range p.Cells {
		circles = append(circles, Circle{
			Center:    surface.CellCenter(c.Position),
			Radius:    radius,
			Role:      RoleCell,
			Tone:      c.Type.String(),
			Highlight: c.Notable() || (v.HasCell && v.CellID == c.ID),
			PlanetID:  p.ID,
			CellID:    c.ID,
		})
	}
	return circles
}

func populationDots(p *universe.Planet, center layout.Point) []Circle {
	herbivores := min(p.CellCounts.Herbivores, maxHerbivoreDots)
	carnivores := min(p.CellCounts.Carnivores, maxCarnivoreDots)
	dots := make([]Circle, 0, herbivores+carnivores)
	for i := 0; i < herbivores; i++ {
		angle := float64(i) / maxHerbivoreDots * 2 * math.Pi
		dots = append(dots, Circle{
			Center:   ring(center, herbivoreRing, angle),
			Radius:   2,
			Role:     RoleHerbivoreDot,
			Tone:     universe.CellHerbivore.String(),
			PlanetID: p.ID,
		})
	}
	for i := 0; i < carnivores; i++ {
		angle := float64(i)/maxCarnivoreDots*2*math.Pi + math.Pi/10
		dots = append(dots, Circle{
			Center:   ring(center, carnivoreRing, angle),
			Radius:   2.5,
			Role:     RoleCarnivoreDot,
			Tone:     universe.CellCarnivore.String(),
			PlanetID: p.ID,
		})
	}
	return dots
}

func ring(center layout.Point, r, angle float64) layout.Point {
	return layout.Point{X: center.X + math.Cos(angle)*r, Y: center.Y + math.Sin(angle)*r}
}

func offset(p layout.Point, dy float64) layout.Point {
	return layout.Point{X: p.X, Y: p.Y + dy}
}
