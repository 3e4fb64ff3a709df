// Package scene turns a universe snapshot into a drawable frame and turns
// pointer positions back into planets and cells.
//
// Drawing (Render) and hit testing (Resolve) share the geometry in package
// layout, so whatever is drawn at a point is what a click at that point
// resolves to. Both are pure functions of the snapshot, the view state and
// the canvas width.
package scene

import (
	"github.com/daviddao/cosmoview/internal/layout"
	"github.com/daviddao/cosmoview/internal/universe"
)

// Zoom is the level of the view state machine.
type Zoom int

const (
	// Overview shows every planet.
	Overview Zoom = iota
	// Detail shows the cells of one planet.
	Detail
)

func (z Zoom) String() string {
	switch z {
	case Overview:
		return "Overview"
	case Detail:
		return "Detail"
	}
	return "?"
}

// ViewState is the client-local view: zoom level, the zoomed planet and the
// inspected cell. It outlives snapshots and changes only through Apply,
// Reconcile and the explicit helpers below.
type ViewState struct {
	Zoom     Zoom
	PlanetID string // set only in Detail

	CellID  int
	HasCell bool
}

// DetailOf returns the view zoomed on planet id with no cell selected.
func DetailOf(id string) ViewState {
	return ViewState{Zoom: Detail, PlanetID: id}
}

// Zoomed reports whether the view is in Detail on planet id.
func (v ViewState) Zoomed(id string) bool {
	return v.Zoom == Detail && v.PlanetID == id
}

// WithCell returns v with cell id selected.
func (v ViewState) WithCell(id int) ViewState {
	v.CellID = id
	v.HasCell = true
	return v
}

// WithoutCell returns v with no cell selected.
func (v ViewState) WithoutCell() ViewState {
	v.CellID = 0
	v.HasCell = false
	return v
}

// HitKind classifies what a pointer landed on.
type HitKind int

const (
	HitNone HitKind = iota
	HitPlanet
	HitCell
)

// Hit is the result of resolving a pointer against a snapshot.
type Hit struct {
	Kind     HitKind
	PlanetID string
	CellID   int
}

// Resolve maps a canvas point to the entity under it.
//
// Planets are tested in snapshot order against their overview circle and the
// first match wins. Only when the matched planet is the one currently zoomed
// are its cells tested, again in order, first match wins. A point outside
// every planet resolves to HitNone, even if it falls inside a cell's hit
// radius that pokes out of the planet circle.
func Resolve(pt layout.Point, snap *universe.Snapshot, v ViewState, canvasWidth float64) Hit {
	if snap == nil {
		return Hit{}
	}
	n := len(snap.Planets)
	for i := range snap.Planets {
		p := &snap.Planets[i]
		center := layout.PlanetCenter(i, n, canvasWidth)
		if !layout.InPlanet(pt, center) {
			continue
		}
		if v.Zoomed(p.ID) {
			surface := layout.NewSurface(center, p.Size)
			radius := surface.CellHitRadius()
			for _, c := range p.Cells {
				if pt.Dist(surface.CellCenter(c.Position)) <= radius {
					return Hit{Kind: HitCell, PlanetID: p.ID, CellID: c.ID}
				}
			}
		}
		return Hit{Kind: HitPlanet, PlanetID: p.ID}
	}
	return Hit{}
}

// EffectKind is the observable outcome of applying a hit.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectZoomIn
	EffectZoomOut
	EffectInspect
)

// Effect reports what Apply changed. CellID is set for EffectInspect.
type Effect struct {
	Kind     EffectKind
	PlanetID string
	CellID   int
}

// Apply advances the zoom state machine with a resolved hit.
//
//   - HitNone zooms out to Overview and clears the selection.
//   - HitPlanet on a planet other than the zoomed one zooms in on it.
//   - HitPlanet on the zoomed planet changes nothing.
//   - HitCell selects the cell and asks for it to be inspected.
func Apply(v ViewState, h Hit) (ViewState, Effect) {
	switch h.Kind {
	case HitPlanet:
		if v.Zoomed(h.PlanetID) {
			return v, Effect{}
		}
		return DetailOf(h.PlanetID), Effect{Kind: EffectZoomIn, PlanetID: h.PlanetID}
	case HitCell:
		return v.WithCell(h.CellID), Effect{Kind: EffectInspect, PlanetID: h.PlanetID, CellID: h.CellID}
	}
	if v.Zoom == Overview && !v.HasCell {
		return v, Effect{}
	}
	return ViewState{}, Effect{Kind: EffectZoomOut}
}

// Click resolves pt against snap and applies the result.
func Click(pt layout.Point, snap *universe.Snapshot, v ViewState, canvasWidth float64) (ViewState, Effect) {
	return Apply(v, Resolve(pt, snap, v, canvasWidth))
}

// Reconcile adjusts v after snap became current. A zoomed planet that is no
// longer present drops the view back to Overview; a selected cell that left
// the zoomed planet is cleared. The boolean reports whether v changed.
func Reconcile(v ViewState, snap *universe.Snapshot) (ViewState, bool) {
	if snap == nil || v.Zoom != Detail {
		return v, false
	}
	p, _, ok := snap.Planet(v.PlanetID)
	if !ok {
		return ViewState{}, true
	}
	if v.HasCell {
		if _, ok := p.Cell(v.CellID); !ok {
			return v.WithoutCell(), true
		}
	}
	return v, false
}

// StepCell moves the cell selection of a zoomed view by delta positions in the
// planet's cell order, wrapping around. It returns EffectInspect for the
// newly selected cell, or EffectNone when there is nothing to select.
func StepCell(v ViewState, snap *universe.Snapshot, delta int) (ViewState, Effect) {
	if v.Zoom != Detail {
		return v, Effect{}
	}
	p, _, ok := snap.Planet(v.PlanetID)
	if !ok || len(p.Cells) == 0 {
		return v, Effect{}
	}
	idx := -1
	if v.HasCell {
		for i, c := range p.Cells {
			if c.ID == v.CellID {
				idx = i
				break
			}
		}
	}
	n := len(p.Cells)
	switch {
	case idx < 0 && delta >= 0:
		idx = 0
	case idx < 0:
		idx = n - 1
	default:
		idx = ((idx+delta)%n + n) % n
	}
	id := p.Cells[idx].ID
	return v.WithCell(id), Effect{Kind: EffectInspect, PlanetID: p.ID, CellID: id}
}
