package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/cosmoview/internal/config"
	"github.com/daviddao/cosmoview/internal/inspect"
	"github.com/daviddao/cosmoview/internal/scene"
	"github.com/daviddao/cosmoview/internal/snapshot"
	"github.com/daviddao/cosmoview/internal/transport"
	"github.com/daviddao/cosmoview/internal/universe"
)

// link is the part of transport.Manager the UI drives.
type link interface {
	Events() <-chan transport.Event
	State() transport.State
	Connect(url string) error
	Reconnect()
	Close() error
}

// fetcher runs tagged cell detail requests.
type fetcher interface {
	Do(ctx context.Context, req inspect.Request) inspect.Result
}

// --- Messages ---

type transportEventMsg struct {
	ev transport.Event
}

type detailResultMsg struct {
	res inspect.Result
}

type configChangedMsg struct{}

type configLoadedMsg struct {
	cfg *config.Config
	err error
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit      key.Binding
	Esc       key.Binding
	Next      key.Binding
	Prev      key.Binding
	Reconnect key.Binding
	Up        key.Binding
	Down      key.Binding
	Help      key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Esc:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close / zoom out")),
	Next:      key.NewBinding(key.WithKeys("n", "tab"), key.WithHelp("n", "next cell")),
	Prev:      key.NewBinding(key.WithKeys("p", "shift+tab"), key.WithHelp("p", "prev cell")),
	Reconnect: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "scroll up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "scroll down")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Esc, k.Reconnect, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Next, k.Prev},
		{k.Esc, k.Reconnect, k.Help, k.Quit},
	}
}

// contextHelp returns help text appropriate for the current zoom.
func contextHelp(v scene.ViewState, inspecting bool) string {
	switch {
	case inspecting:
		return "click/n/p: inspect cell | esc: close inspector | r: reconnect | ?: help | q: quit"
	case v.Zoom == scene.Detail:
		return "click: inspect cell | n/p: cycle cells | esc/background: overview | r: reconnect | q: quit"
	default:
		return "click: zoom planet | j/k: scroll | r: reconnect | ?: help | q: quit"
	}
}

// --- Model ---

// inspector is the cell detail panel.
type inspector struct {
	open    bool
	req     inspect.Request
	loading bool
	details *universe.CellDetails
	errMsg  string
}

type uiModel struct {
	store   *snapshot.Store
	link    link
	fetch   fetcher
	watcher *config.Watcher
	log     *slog.Logger

	cfg       *config.Config
	cfgPath   string
	overrides overrides

	snap  *universe.Snapshot
	conn  transport.State
	view  scene.ViewState
	focus string // --planet id to zoom on once it appears

	inspector inspector

	width    int
	height   int
	scroll   int
	help     help.Model
	showHelp bool
	spinner  spinner.Model

	lastUpdate time.Time
}

func newModel(store *snapshot.Store, l link, f fetcher, cfg *config.Config, logger *slog.Logger) uiModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	return uiModel{
		store:   store,
		link:    l,
		fetch:   f,
		log:     logger,
		cfg:     cfg,
		snap:    store.Current(),
		conn:    l.State(),
		help:    help.New(),
		spinner: sp,
	}
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.link.Events()),
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

// waitForEvent delivers the next transport event. It is re-issued after each
// one so the transport's channel is always drained.
func waitForEvent(events <-chan transport.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return transportEventMsg{ev: ev}
	}
}

func fetchDetails(f fetcher, req inspect.Request) tea.Cmd {
	return func() tea.Msg {
		return detailResultMsg{res: f.Do(context.Background(), req)}
	}
}

func reloadConfig(path string, o overrides) tea.Cmd {
	return func() tea.Msg {
		cfg, _, err := resolveConfig(path, o)
		return configLoadedMsg{cfg: cfg, err: err}
	}
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.scroll = m.clampScroll(m.scroll)

	case transportEventMsg:
		m = m.applyEvent(msg.ev)
		return m, waitForEvent(m.link.Events())

	case detailResultMsg:
		if !m.inspector.open || !m.inspector.req.Current(msg.res) {
			m.log.Debug("discarding stale cell details", "cell", msg.res.CellID)
			return m, nil
		}
		m.inspector.loading = false
		m.inspector.details = msg.res.Details
		m.inspector.errMsg = inspect.UserMessage(msg.res.Err)

	case configChangedMsg:
		return m, reloadConfig(m.cfgPath, m.overrides)

	case configLoadedMsg:
		return m.applyConfig(msg)

	case spinner.TickMsg:
		if !m.inspector.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

func (m uiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		if m.watcher != nil {
			m.watcher.Close()
		}
		m.link.Close()
		return m, tea.Quit

	case key.Matches(msg, keys.Esc):
		if m.inspector.open {
			m.inspector = inspector{}
			m.view = m.view.WithoutCell()
			return m, nil
		}
		m.focus = ""
		m.view = scene.ViewState{}

	case key.Matches(msg, keys.Next):
		m = m.syncSnapshot()
		v, eff := scene.StepCell(m.view, m.snap, 1)
		return m.applyEffect(v, eff)

	case key.Matches(msg, keys.Prev):
		m = m.syncSnapshot()
		v, eff := scene.StepCell(m.view, m.snap, -1)
		return m.applyEffect(v, eff)

	case key.Matches(msg, keys.Reconnect):
		m.log.Info("manual reconnect requested")
		m.link.Reconnect()

	case key.Matches(msg, keys.Up):
		if m.view.Zoom == scene.Overview {
			m.scroll = m.clampScroll(m.scroll - 1)
		}

	case key.Matches(msg, keys.Down):
		if m.view.Zoom == scene.Overview {
			m.scroll = m.clampScroll(m.scroll + 1)
		}

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m uiModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if m.view.Zoom == scene.Overview {
			m.scroll = m.clampScroll(m.scroll - 1)
		}
		return m, nil
	case tea.MouseButtonWheelDown:
		if m.view.Zoom == scene.Overview {
			m.scroll = m.clampScroll(m.scroll + 1)
		}
		return m, nil
	case tea.MouseButtonLeft:
	default:
		return m, nil
	}

	cols, rows := m.mapSize()
	col, row := msg.X, msg.Y-mapTop
	if col < 0 || col >= cols || row < 0 || row >= rows {
		return m, nil
	}
	m = m.syncSnapshot()
	r := m.raster(cols, rows)
	v, eff := scene.Click(r.point(col, row), m.snap, m.view, canvasWidth(cols))
	return m.applyEffect(v, eff)
}

// applyEffect installs a new view state and starts whatever its effect needs.
func (m uiModel) applyEffect(v scene.ViewState, eff scene.Effect) (tea.Model, tea.Cmd) {
	m.view = v
	switch eff.Kind {
	case scene.EffectZoomIn:
		m.focus = ""
		m.inspector = inspector{}
		m.log.Debug("zoom in", "planet", eff.PlanetID)
	case scene.EffectZoomOut:
		m.focus = ""
		m.inspector = inspector{}
		m.log.Debug("zoom out")
	case scene.EffectInspect:
		req := inspect.NewRequest(eff.CellID)
		m.inspector = inspector{open: true, req: req, loading: true}
		m.log.Debug("inspect cell", "planet", eff.PlanetID, "cell", eff.CellID, "tag", req.Tag)
		if m.fetch == nil {
			m.inspector.loading = false
			m.inspector.errMsg = inspect.MsgNetwork
			return m, nil
		}
		return m, tea.Batch(fetchDetails(m.fetch, req), m.spinner.Tick)
	}
	return m, nil
}

func (m uiModel) applyEvent(ev transport.Event) uiModel {
	m.conn = ev.State
	if ev.Kind != transport.EventSnapshot {
		return m
	}
	m.lastUpdate = time.Now()
	// The store may already hold a newer snapshot than the event carries.
	snap := m.store.Current()
	if snap == nil {
		snap = ev.Snapshot
	}
	return m.adoptSnapshot(snap)
}

// syncSnapshot catches the model up with the store so input is resolved
// against the snapshot current at the moment it arrives, even when the event
// announcing it is still queued.
func (m uiModel) syncSnapshot() uiModel {
	if snap := m.store.Current(); snap != nil && snap != m.snap {
		return m.adoptSnapshot(snap)
	}
	return m
}

// adoptSnapshot installs snap and reconciles the view state with it.
func (m uiModel) adoptSnapshot(snap *universe.Snapshot) uiModel {
	if snap == nil {
		return m
	}
	m.snap = snap
	if m.focus != "" && m.view.Zoom == scene.Overview {
		if _, _, ok := snap.Planet(m.focus); ok {
			m.view = scene.DetailOf(m.focus)
			m.focus = ""
		}
	}
	if v, changed := scene.Reconcile(m.view, snap); changed {
		m.log.Info("view reconciled", "zoom", v.Zoom.String(), "planet", m.view.PlanetID)
		if !v.HasCell && m.inspector.open {
			m.inspector = inspector{}
		}
		m.view = v
	}
	m.scroll = m.clampScroll(m.scroll)
	return m
}

func (m uiModel) applyConfig(msg configLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.log.Error("reload config", "path", m.cfgPath, "error", msg.err)
		return m, nil
	}
	if err := msg.cfg.Validate(); err != nil {
		m.log.Error("reload config", "path", m.cfgPath, "error", err)
		return m, nil
	}
	old := m.cfg
	m.cfg = msg.cfg
	if old == nil || old.APIURL != msg.cfg.APIURL || old.RequestTimeout != msg.cfg.RequestTimeout {
		f, err := newFetcher(msg.cfg, m.log)
		if err != nil {
			m.log.Error("rebuild detail fetcher", "error", err)
		} else {
			m.fetch = f
			m.log.Info("detail fetcher updated", "api_url", msg.cfg.APIURL)
		}
	}
	if old == nil || old.WSURL != msg.cfg.WSURL {
		m.log.Info("switching universe endpoint", "ws_url", msg.cfg.WSURL)
		if err := m.link.Connect(msg.cfg.WSURL); err != nil {
			m.log.Error("connect", "url", msg.cfg.WSURL, "error", err)
		}
		m.conn = m.link.State()
	}
	return m, nil
}

// mapSize returns the map area in terminal cells.
func (m uiModel) mapSize() (cols, rows int) {
	cols = m.width
	if w := m.panelWidth(); w > 0 {
		cols = m.width - w - lipgloss.Width(paneSeparator)
	}
	return max(cols, 0), max(m.height-chromeLines, 0)
}

func (m uiModel) frame(cols, rows int) scene.Frame {
	return scene.Render(m.snap, m.view, scene.Canvas{
		Width:  canvasWidth(cols),
		Height: float64(rows) * overviewUnitsPerRow,
	})
}

func (m uiModel) raster(cols, rows int) *raster {
	f := m.frame(cols, rows)
	return rasterize(f, newViewport(f, cols, rows, m.scroll))
}

func (m uiModel) clampScroll(s int) int {
	_, rows := m.mapSize()
	n := 0
	if m.snap != nil {
		n = len(m.snap.Planets)
	}
	return max(0, min(s, overviewRows(n)-rows))
}
