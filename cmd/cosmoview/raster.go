package main

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/cosmoview/internal/layout"
	"github.com/daviddao/cosmoview/internal/scene"
	"github.com/daviddao/cosmoview/internal/universe"
)

// Canvas units covered by one terminal cell.
const (
	overviewUnitsPerCol = 10.0
	overviewUnitsPerRow = 20.0

	detailUnitsPerCol = 2.0
	detailUnitsPerRow = 4.0

	// detailFitHeight is the canvas height a Detail view tries to keep
	// visible: the planet disc with its labels.
	detailFitHeight = 240.0
)

// canvasWidth is the layout width for a map area cols terminal cells wide. It
// is the same in both zoom levels so planet centers never move.
func canvasWidth(cols int) float64 {
	return float64(cols) * overviewUnitsPerCol
}

// viewport places a map area of cols x rows terminal cells over the canvas.
type viewport struct {
	cols, rows int
	originX    float64 // canvas x of the left edge of column 0
	originY    float64 // canvas y of the top edge of row 0
	upc, upr   float64 // canvas units per column and per row
}

// newViewport returns the Overview viewport scrolled down by scroll rows, or a
// Detail camera centered on the frame's focus.
func newViewport(f scene.Frame, cols, rows, scroll int) viewport {
	vp := viewport{cols: cols, rows: rows}
	if !f.HasFocus {
		vp.upc, vp.upr = overviewUnitsPerCol, overviewUnitsPerRow
		vp.originY = float64(scroll) * vp.upr
		return vp
	}
	vp.upr = detailUnitsPerRow
	if rows > 0 {
		vp.upr = math.Max(detailUnitsPerRow, detailFitHeight/float64(rows))
	}
	vp.upc = vp.upr * detailUnitsPerCol / detailUnitsPerRow
	vp.originX = f.Focus.X - float64(cols)*vp.upc/2
	vp.originY = f.Focus.Y - float64(rows)*vp.upr/2
	return vp
}

// center returns the canvas point at the middle of terminal cell (col, row).
func (vp viewport) center(col, row int) layout.Point {
	return layout.Point{
		X: vp.originX + (float64(col)+0.5)*vp.upc,
		Y: vp.originY + (float64(row)+0.5)*vp.upr,
	}
}

// cellAt returns the terminal cell containing canvas point pt. The result may
// lie outside the map area.
func (vp viewport) cellAt(pt layout.Point) (col, row int) {
	return int(math.Floor((pt.X - vp.originX) / vp.upc)), int(math.Floor((pt.Y - vp.originY) / vp.upr))
}

func (vp viewport) contains(col, row int) bool {
	return col >= 0 && col < vp.cols && row >= 0 && row < vp.rows
}

// overviewRows is how many terminal rows the whole overview of n planets needs.
func overviewRows(n int) int {
	return int(math.Ceil(layout.OverviewHeight(n) / overviewUnitsPerRow))
}

// --- Rasterizer ---

type paint int

const (
	paintNone paint = iota
	paintPlanet
	paintPlanetRim
	paintCell
	paintDot
	paintLabel
)

type rasterCell struct {
	glyph rune
	paint paint
	style lipgloss.Style

	// anchor is the exact canvas center of the entity stamped here, used
	// instead of the cell center when a pointer lands on this cell.
	anchor    layout.Point
	hasAnchor bool
}

// raster is a frame drawn onto a grid of terminal cells.
type raster struct {
	vp    viewport
	cells [][]rasterCell
}

func rasterize(f scene.Frame, vp viewport) *raster {
	r := &raster{vp: vp, cells: make([][]rasterCell, max(vp.rows, 0))}
	for i := range r.cells {
		r.cells[i] = make([]rasterCell, max(vp.cols, 0))
		for j := range r.cells[i] {
			r.cells[i][j] = rasterCell{glyph: ' ', style: mapStyle}
		}
	}
	for _, c := range f.Circles {
		r.circle(c)
	}
	for _, l := range f.Labels {
		r.label(l)
	}
	return r
}

// circle fills every terminal cell whose center lies inside c, and always the
// cell containing c's center so that small circles stay visible.
func (r *raster) circle(c scene.Circle) {
	vp := r.vp
	c0, r0 := vp.cellAt(layout.Point{X: c.Center.X - c.Radius, Y: c.Center.Y - c.Radius})
	c1, r1 := vp.cellAt(layout.Point{X: c.Center.X + c.Radius, Y: c.Center.Y + c.Radius})
	rim := math.Max(vp.upc, vp.upr)
	for row := max(r0, 0); row <= min(r1, vp.rows-1); row++ {
		for col := max(c0, 0); col <= min(c1, vp.cols-1); col++ {
			d := vp.center(col, row).Dist(c.Center)
			if d > c.Radius {
				continue
			}
			r.stamp(col, row, c, c.Role == scene.RolePlanet && c.Radius-d < rim)
		}
	}
	if col, row := vp.cellAt(c.Center); vp.contains(col, row) {
		r.stamp(col, row, c, false)
		if c.Role == scene.RoleCell {
			r.cells[row][col].anchor = c.Center
			r.cells[row][col].hasAnchor = true
		}
	}
}

func (r *raster) stamp(col, row int, c scene.Circle, rim bool) {
	cell := &r.cells[row][col]
	switch c.Role {
	case scene.RolePlanet:
		if cell.paint > paintPlanetRim {
			return
		}
		if rim {
			cell.glyph, cell.paint = '░', paintPlanetRim
			if c.Highlight {
				cell.glyph = '▓'
			}
		} else if cell.paint != paintPlanetRim {
			cell.glyph, cell.paint = '·', paintPlanet
		}
		cell.style = planetStyle(c.Tone, c.Highlight)
	case scene.RoleCell:
		cell.glyph, cell.paint = '●', paintCell
		if c.Highlight {
			cell.glyph = '◉'
		}
		cell.style = cellStyle(c.Tone, c.Highlight)
	default:
		if cell.paint == paintCell {
			return
		}
		cell.glyph, cell.paint = '•', paintDot
		cell.style = cellStyle(c.Tone, false)
	}
}

// maxLabelShift is how many rows below its anchor a label may move.
const maxLabelShift = 2

// label writes l centered on its anchor row. A label that would overlap an
// earlier one moves down, at most maxLabelShift rows; when every candidate row
// clashes the label is dropped and the earlier one stays intact.
func (r *raster) label(l scene.Label) {
	text := []rune(l.Text)
	if len(text) == 0 {
		return
	}
	col, anchor := r.vp.cellAt(l.At)
	start := col - len(text)/2
	row, placed := anchor, false
	for shift := 0; shift <= maxLabelShift; shift++ {
		if !r.labelClash(start, anchor+shift, len(text)) {
			row, placed = anchor+shift, true
			break
		}
	}
	if !placed || row < 0 || row >= r.vp.rows {
		return
	}
	style := labelStyle(l)
	for i, ch := range text {
		c := start + i
		if c < 0 || c >= r.vp.cols {
			continue
		}
		r.cells[row][c] = rasterCell{glyph: ch, paint: paintLabel, style: style}
	}
}

func (r *raster) labelClash(start, row, n int) bool {
	if row < 0 || row >= r.vp.rows {
		return false
	}
	for c := max(start, 0); c < min(start+n, r.vp.cols); c++ {
		if r.cells[row][c].paint == paintLabel {
			return true
		}
	}
	return false
}

// point returns the canvas point a pointer on terminal cell (col, row) stands
// for: the center of the cell drawn there, or else the cell's own center.
func (r *raster) point(col, row int) layout.Point {
	if r.vp.contains(col, row) && r.cells[row][col].hasAnchor {
		return r.cells[row][col].anchor
	}
	return r.vp.center(col, row)
}

// plain returns the raster's glyphs without styling.
func (r *raster) plain() []string {
	lines := make([]string, len(r.cells))
	for i, row := range r.cells {
		var b strings.Builder
		for _, c := range row {
			b.WriteRune(c.glyph)
		}
		lines[i] = b.String()
	}
	return lines
}

// String renders the raster, styling runs of equally painted cells together.
func (r *raster) String() string {
	var b strings.Builder
	for i, row := range r.cells {
		if i > 0 {
			b.WriteRune('\n')
		}
		var run strings.Builder
		var cur lipgloss.Style
		flush := func() {
			if run.Len() > 0 {
				b.WriteString(cur.Render(run.String()))
				run.Reset()
			}
		}
		for j, c := range row {
			if j == 0 || !sameStyle(c.style, cur) {
				flush()
				cur = c.style
			}
			run.WriteRune(c.glyph)
		}
		flush()
	}
	return b.String()
}

func sameStyle(a, b lipgloss.Style) bool {
	return a.GetForeground() == b.GetForeground() && a.GetBold() == b.GetBold() && a.GetReverse() == b.GetReverse()
}

// --- Palette ---

var (
	mapStyle = lipgloss.NewStyle()

	planetPalette = []lipgloss.Color{"#74C7EC", "#CBA6F7", "#F9E2AF", "#94E2D5", "#F5C2E7", "#B4BEFE"}

	cellColors = map[string]lipgloss.Color{
		universe.CellProducer.String():  "#A6E3A1",
		universe.CellHerbivore.String(): "#89B4FA",
		universe.CellCarnivore.String(): "#F38BA8",
	}

	toneColors = map[string]lipgloss.Color{
		"hot":  "#FAB387",
		"cold": "#89DCEB",
		"mild": "#CDD6F4",
	}
)

// planetColor picks a stable color for a planet type.
func planetColor(kind string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(kind))
	return planetPalette[h.Sum32()%uint32(len(planetPalette))]
}

func planetStyle(kind string, highlight bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(planetColor(kind)).Bold(highlight)
}

func cellStyle(tone string, highlight bool) lipgloss.Style {
	color, ok := cellColors[tone]
	if !ok {
		color = "#6C7086"
	}
	return lipgloss.NewStyle().Foreground(color).Bold(highlight)
}

func labelStyle(l scene.Label) lipgloss.Style {
	switch l.Role {
	case scene.LabelName:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4")).Bold(true)
	case scene.LabelTemperature:
		return lipgloss.NewStyle().Foreground(toneColors[l.Tone])
	case scene.LabelPlaceholder:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
}
