package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/cosmoview/internal/scene"
	"github.com/daviddao/cosmoview/internal/transport"
	"github.com/daviddao/cosmoview/internal/universe"
)

const (
	// mapTop is the screen row the map area starts on (below the title bar).
	mapTop = 1
	// chromeLines are the rows not available to the map: title and status.
	chromeLines = 2

	paneSeparator = " │ "

	minPanelWidth   = 30
	maxPanelWidth   = 44
	minWidthForPane = 80

	waitingText = "Waiting for connection..."
	loadingText = "Loading universe data..."
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1")).
			Bold(true)

	connectingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9E2AF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')

	cols, rows := m.mapSize()
	content := m.raster(cols, rows).String()
	if w := m.panelWidth(); w > 0 {
		content = renderSplitPane(content, m.renderPanel(w), cols, w, rows)
	}
	b.WriteString(truncateLines(content, m.width))

	// Pad to fill screen.
	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-1 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

// panelWidth is the side panel width, or 0 when the terminal is too narrow.
func (m uiModel) panelWidth() int {
	if m.width < minWidthForPane {
		return 0
	}
	return min(maxPanelWidth, max(minPanelWidth, m.width/3))
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("cosmoview")
	var info string
	if m.snap != nil {
		info = fmt.Sprintf("step %d | %d planets | pop %d | ",
			m.snap.Step, len(m.snap.Planets), m.snap.Population())
	}
	stats := dimStyle.Render(info) + statusText(m.conn)
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-1))
	return title + gap + stats
}

func statusText(st transport.State) string {
	switch st.Status {
	case transport.StatusConnected:
		return connectedStyle.Render("● " + st.Status.String())
	case transport.StatusConnecting:
		return connectingStyle.Render("◌ " + st.Status.String())
	case transport.StatusError:
		return errorStyle.Render("✕ " + st.Status.String())
	}
	return dimStyle.Render("○ " + st.Status.String())
}

func (m uiModel) renderStatusBar() string {
	left := " " + contextHelp(m.view, m.inspector.open)
	right := "no updates yet "
	if !m.lastUpdate.IsZero() {
		right = fmt.Sprintf("updated %s ago ", time.Since(m.lastUpdate).Truncate(time.Second))
	}
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return statusBarStyle.Render(truncateLines(left+gap+right, m.width))
}

// --- Side panel ---

func (m uiModel) renderPanel(width int) string {
	var b strings.Builder
	if m.inspector.open {
		b.WriteString(m.renderInspector(width))
		b.WriteRune('\n')
	}
	if m.snap == nil {
		b.WriteString(headerStyle.Render("Universe"))
		b.WriteRune('\n')
		b.WriteString(m.renderConnection())
		if m.conn.Status == transport.StatusConnected {
			b.WriteString(dimStyle.Render("  " + loadingText))
		} else {
			b.WriteString(dimStyle.Render("  " + waitingText))
		}
		b.WriteRune('\n')
		return b.String()
	}
	b.WriteString(m.renderStats())
	if m.view.Zoom == scene.Detail {
		if p, _, ok := m.snap.Planet(m.view.PlanetID); ok {
			b.WriteString(renderPlanetDetails(p))
		}
	}
	b.WriteString(m.renderDiscoveries())
	b.WriteString(m.renderCosmicEvents(width))
	return b.String()
}

func (m uiModel) renderConnection() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s\n", statusText(m.conn)))
	if m.conn.LastError != "" {
		b.WriteString("  " + errorStyle.Render(m.conn.LastError) + "\n")
	}
	return b.String()
}

func (m uiModel) renderStats() string {
	var b strings.Builder
	s := m.snap
	b.WriteString(headerStyle.Render("Universe"))
	b.WriteRune('\n')
	b.WriteString(m.renderConnection())
	b.WriteString(fmt.Sprintf("  Step %d", s.Step))
	if !s.Timestamp.IsZero() {
		b.WriteString(dimStyle.Render("  @ " + s.Timestamp.Format("15:04:05")))
	}
	b.WriteRune('\n')
	b.WriteRune('\n')

	b.WriteString(headerStyle.Render("Planets"))
	b.WriteRune('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-12s %5s %4s %4s %4s %6s", "Name", "Pop", "P", "H", "C", "Temp")))
	b.WriteRune('\n')
	for i := range s.Planets {
		p := &s.Planets[i]
		marker := " "
		if m.view.Zoomed(p.ID) {
			marker = "▸"
		}
		temp := fmt.Sprintf("%.0f°C", p.Conditions.Temperature)
		b.WriteString(fmt.Sprintf(" %s%-12s %5d %4d %4d %4d %s\n",
			marker, truncate(p.Name, 12), p.CellCounts.Total(),
			p.CellCounts.Plants, p.CellCounts.Herbivores, p.CellCounts.Carnivores,
			lipgloss.NewStyle().Foreground(toneColors[scene.TemperatureTone(p.Conditions.Temperature)]).Render(fmt.Sprintf("%6s", temp))))
	}
	if len(s.Planets) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteRune('\n')
	}
	b.WriteRune('\n')
	return b.String()
}

func renderPlanetDetails(p *universe.Planet) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(p.Name))
	b.WriteRune('\n')
	b.WriteString(fmt.Sprintf("  Type:        %s\n", p.Type))
	b.WriteString(fmt.Sprintf("  Size:        %.0f x %.0f\n", p.Size.Width, p.Size.Height))
	b.WriteString(fmt.Sprintf("  Cells:       %d (%d P / %d H / %d C)\n",
		len(p.Cells), p.CellCounts.Plants, p.CellCounts.Herbivores, p.CellCounts.Carnivores))
	b.WriteString(fmt.Sprintf("  Conditions:  %.1f°C  %.2f atm  rad %.2f\n",
		p.Conditions.Temperature, p.Conditions.Pressure, p.Conditions.Radiation))
	if p.Conditions.MagneticField != nil {
		b.WriteString(fmt.Sprintf("  Magnetic:    %.2f\n", *p.Conditions.MagneticField))
	}
	b.WriteString(fmt.Sprintf("  Inventory:   %d items\n", p.TotalInventory))
	b.WriteString(fmt.Sprintf("  Discoveries: %d (x%.2f)\n", p.TotalDiscoveries, p.DiscoveryMultiplier))
	b.WriteString(fmt.Sprintf("  Materials:   %d scattered\n", p.ScatteredMaterials))
	b.WriteString(fmt.Sprintf("  Trade:       %d routes\n", p.TradeRoutes))
	b.WriteRune('\n')
	return b.String()
}

func (m uiModel) renderDiscoveries() string {
	var b strings.Builder
	ds := m.snap.DiscoveryStats
	b.WriteString(headerStyle.Render(fmt.Sprintf("Discoveries (%d)", ds.TotalDiscoveries)))
	b.WriteRune('\n')
	recent := ds.RecentDiscoveries
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, d := range recent {
		b.WriteString(fmt.Sprintf("  %s %s\n", d.Name, dimStyle.Render(fmt.Sprintf("(%.1f) by %s", d.Significance, d.Discoverer))))
	}
	if len(recent) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteRune('\n')
	}
	b.WriteRune('\n')
	return b.String()
}

func (m uiModel) renderCosmicEvents(width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Cosmic Events"))
	b.WriteRune('\n')
	for _, e := range m.snap.CosmicEvents {
		b.WriteString("  " + eventStyle.Render(e.Name))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" %d steps", e.Duration)))
		b.WriteRune('\n')
		for _, line := range wrapText(e.Description, width-4) {
			b.WriteString("    " + line + "\n")
		}
		if len(e.AffectedPlanets) > 0 {
			b.WriteString(dimStyle.Render("    affects: " + strings.Join(e.AffectedPlanets, ", ")))
			b.WriteRune('\n')
		}
	}
	if len(m.snap.CosmicEvents) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteRune('\n')
	}
	return b.String()
}

// --- Inspector ---

func (m uiModel) renderInspector(width int) string {
	var b strings.Builder
	in := m.inspector
	b.WriteString(headerStyle.Render(fmt.Sprintf("Cell #%d", in.req.CellID)))
	b.WriteString(dimStyle.Render("  esc: close"))
	b.WriteRune('\n')

	switch {
	case in.loading:
		b.WriteString("  " + m.spinner.View() + " fetching details...\n")
		return b.String()
	case in.errMsg != "":
		for _, line := range wrapText(in.errMsg, width-2) {
			b.WriteString("  " + errorStyle.Render(line) + "\n")
		}
		return b.String()
	case in.details == nil:
		return b.String()
	}

	d := in.details
	b.WriteString(fmt.Sprintf("  Type:       %s\n", d.Type))
	b.WriteString(fmt.Sprintf("  Position:   (%.1f, %.1f)\n", d.Position[0], d.Position[1]))
	b.WriteString(fmt.Sprintf("  Age:        %d\n", d.Age))
	b.WriteString(fmt.Sprintf("  Energy:     %s\n", optFloat(d.Energy, "%.1f")))
	b.WriteString(fmt.Sprintf("  Curiosity:  %s\n", optFloat(d.Curiosity, "%.2f")))
	b.WriteString(fmt.Sprintf("  Cooldown:   %s\n", optFloat(d.ExperimentationCooldown, "%.0f")))
	if d.BrainInfo.Fitness != nil || d.BrainInfo.Generation != nil {
		gen := "n/a"
		if d.BrainInfo.Generation != nil {
			gen = fmt.Sprintf("%d", *d.BrainInfo.Generation)
		}
		b.WriteString(fmt.Sprintf("  Brain:      fitness %s, gen %s\n", optFloat(d.BrainInfo.Fitness, "%.2f"), gen))
	}
	b.WriteString(fmt.Sprintf("  Inventory (%d)\n", len(d.Inventory)))
	for _, it := range d.Inventory {
		line := "    " + it.Name
		if len(it.Properties) > 0 {
			line += dimStyle.Render(" [" + strings.Join(it.Properties, ", ") + "]")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(fmt.Sprintf("  Known discoveries (%d)\n", len(d.KnownDiscoveries)))
	for _, kd := range d.KnownDiscoveries {
		b.WriteString(fmt.Sprintf("    %s %s\n", kd.Name, dimStyle.Render(fmt.Sprintf("%s %.1f", kd.Type, kd.Significance))))
	}
	return b.String()
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

// --- Split-pane rendering ---

// renderSplitPane renders two content panes side by side with a vertical separator.
func renderSplitPane(left, right string, leftWidth, rightWidth, maxHeight int) string {
	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	for len(leftLines) < maxHeight {
		leftLines = append(leftLines, "")
	}
	for len(rightLines) < maxHeight {
		rightLines = append(rightLines, "")
	}

	sep := dimStyle.Render(strings.TrimSpace(paneSeparator))
	var b strings.Builder
	for i := 0; i < maxHeight; i++ {
		if i > 0 {
			b.WriteRune('\n')
		}
		b.WriteString(padOrTruncate(leftLines[i], leftWidth))
		b.WriteString(" ")
		b.WriteString(sep)
		b.WriteString(" ")
		b.WriteString(padOrTruncate(rightLines[i], rightWidth))
	}
	return b.String()
}

// padOrTruncate pads or truncates a styled line to the target visible width.
func padOrTruncate(line string, width int) string {
	w := lipgloss.Width(line)
	if w > width {
		return ansi.Truncate(line, width, "")
	}
	return line + strings.Repeat(" ", width-w)
}

// --- Helpers ---

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes. This prevents terminal line
// wrapping when the window is resized narrower.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

// wrapText breaks s into lines of at most width characters, splitting on word
// boundaries where possible.
func wrapText(s string, width int) []string {
	if width <= 0 {
		width = 80
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		var cur string
		for _, w := range words {
			switch {
			case cur == "":
				cur = w
			case len(cur)+1+len(w) <= width:
				cur += " " + w
			default:
				lines = append(lines, cur)
				cur = w
			}
		}
		if cur != "" {
			lines = append(lines, cur)
		}
	}
	return lines
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:max(n-1, 0)]) + "…"
}
