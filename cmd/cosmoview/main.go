// cosmoview is a real-time terminal viewer for a running universe simulation.
//
// It keeps a websocket open to the simulation server, draws the planets and
// their cells as they evolve, and lets you zoom into a planet and click a cell
// to inspect it.
//
// Usage:
//
//	cosmoview                          # Auto-discover .cosmoview.yaml, connect to ws://localhost:8001/ws
//	cosmoview --ws ws://host:8001/ws   # Use a specific push endpoint
//	cosmoview --api http://host:8001   # Use a specific detail API
//	cosmoview --config <path>          # Use a specific config file
//	cosmoview --planet <id>            # Zoom on a planet once it appears
//	cosmoview --json                   # Print the first universe update as JSON and exit
//	cosmoview --log cosmoview.log      # Log file ("-" disables logging)
//	cosmoview --version                # Print version and exit
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/cosmoview/internal/config"
	"github.com/daviddao/cosmoview/internal/inspect"
	"github.com/daviddao/cosmoview/internal/snapshot"
	"github.com/daviddao/cosmoview/internal/transport"
	"github.com/daviddao/cosmoview/internal/universe"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

// overrides are flag values that win over the environment and config file.
type overrides struct {
	wsURL   string
	apiURL  string
	logFile string
}

func (o overrides) apply(cfg *config.Config) {
	if o.wsURL != "" {
		cfg.WSURL = o.wsURL
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
}

// resolveConfig loads the config file at path (or discovers one when path is
// empty), applies flag overrides and validates the result.
func resolveConfig(path string, o overrides) (*config.Config, string, error) {
	cfg, found, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config: %w", err)
	}
	return cfg, found, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (fetcher, error) {
	c, err := inspect.New(cfg.APIURL, inspect.Options{Timeout: cfg.RequestTimeout, Logger: logger})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openLog routes slog output to path. The TUI owns the terminal, so logs never
// go to stderr while it runs.
func openLog(path string) (*slog.Logger, io.Closer, error) {
	if path == "" || path == "-" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), io.NopCloser(nil), nil
	}
	f, err := tea.LogToFile(path, "cosmoview")
	if err != nil {
		return nil, nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return slog.New(slog.NewTextHandler(f, nil)), f, nil
}

func main() {
	configPath := flag.String("config", "", "path to config file (default: auto-discover "+config.FileName+")")
	wsURL := flag.String("ws", "", "websocket endpoint (default "+config.DefaultWSURL+")")
	apiURL := flag.String("api", "", "cell details API base URL (default "+config.DefaultAPIURL+")")
	logFile := flag.String("log", "", "log file, - to disable (default "+config.DefaultLogFile+")")
	jsonMode := flag.Bool("json", false, "print the first universe update as JSON and exit (no TUI)")
	wait := flag.Duration("wait", 10*time.Second, "how long --json waits for an update")
	planetFlag := flag.String("planet", "", "zoom on a planet once it appears")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("cosmoview %s\n", Version)
		os.Exit(0)
	}

	o := overrides{wsURL: *wsURL, apiURL: *apiURL, logFile: *logFile}
	cfg, cfgPath, err := resolveConfig(*configPath, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cosmoview: %v\n", err)
		os.Exit(1)
	}

	// --json mode: wait for one update, print it, exit.
	if *jsonMode {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		if err := runJSON(cfg, *wait, logger, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "cosmoview: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger, logCloser, err := openLog(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cosmoview: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting", "version", Version, "config", cfgPath, "ws_url", cfg.WSURL, "api_url", cfg.APIURL)

	f, err := newFetcher(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cosmoview: %v\n", err)
		os.Exit(1)
	}

	store := snapshot.NewStore()
	mgr := transport.NewManager(store, transport.Options{Logger: logger})
	defer mgr.Close()

	var w *config.Watcher
	if cfgPath != "" {
		w, err = config.NewWatcher(cfgPath, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", "path", cfgPath, "error", err)
		} else {
			defer w.Close()
		}
	}

	if err := mgr.Connect(cfg.WSURL); err != nil {
		logger.Error("connect", "url", cfg.WSURL, "error", err)
	}

	m := newModel(store, mgr, f, cfg, logger)
	m.watcher = w
	m.cfgPath = cfgPath
	m.overrides = o
	m.focus = *planetFlag

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Feed config file edits into the TUI.
	if w != nil {
		go func() {
			for range w.Changes() {
				p.Send(configChangedMsg{})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cosmoview: %v\n", err)
		os.Exit(1)
	}
}

// runJSON connects, waits for the first universe update and writes its JSON
// summary to out. The channel is closed normally before returning.
func runJSON(cfg *config.Config, wait time.Duration, logger *slog.Logger, out io.Writer) error {
	store := snapshot.NewStore()
	mgr := transport.NewManager(store, transport.Options{Logger: logger})
	defer mgr.Close()

	if err := mgr.Connect(cfg.WSURL); err != nil {
		return fmt.Errorf("connect %s: %w", cfg.WSURL, err)
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	var lastErr string
	for {
		select {
		case <-store.Changes():
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(buildJSONOutput(store.Current())); err != nil {
				return fmt.Errorf("json: %w", err)
			}
			return nil
		case ev := <-mgr.Events():
			if ev.State.LastError != "" {
				lastErr = ev.State.LastError
			}
		case <-deadline.C:
			if lastErr != "" {
				return fmt.Errorf("no universe update from %s within %s: %s", cfg.WSURL, wait, lastErr)
			}
			return fmt.Errorf("no universe update from %s within %s", cfg.WSURL, wait)
		}
	}
}

type jsonOutput struct {
	Step         int                    `json:"step"`
	Timestamp    string                 `json:"timestamp,omitempty"`
	Population   int                    `json:"population"`
	Planets      []jsonPlanet           `json:"planets"`
	Discoveries  jsonDiscoveries        `json:"discoveries"`
	CosmicEvents []universe.CosmicEvent `json:"cosmic_events"`
}

type jsonPlanet struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Cells       int                 `json:"cells"`
	CellCounts  universe.CellCounts `json:"cell_counts"`
	Population  int                 `json:"population"`
	Temperature float64             `json:"temperature"`
	Discoveries int                 `json:"discoveries"`
}

type jsonDiscoveries struct {
	Total  int                  `json:"total"`
	Recent []universe.Discovery `json:"recent"`
}

// buildJSONOutput converts a snapshot into the JSON output structure.
func buildJSONOutput(snap *universe.Snapshot) jsonOutput {
	out := jsonOutput{
		Planets:      []jsonPlanet{},
		CosmicEvents: []universe.CosmicEvent{},
		Discoveries:  jsonDiscoveries{Recent: []universe.Discovery{}},
	}
	if snap == nil {
		return out
	}
	out.Step = snap.Step
	if !snap.Timestamp.IsZero() {
		out.Timestamp = snap.Timestamp.Format(time.RFC3339)
	}
	out.Population = snap.Population()
	for _, p := range snap.Planets {
		out.Planets = append(out.Planets, jsonPlanet{
			ID:          p.ID,
			Name:        p.Name,
			Type:        p.Type,
			Cells:       len(p.Cells),
			CellCounts:  p.CellCounts,
			Population:  p.CellCounts.Total(),
			Temperature: p.Conditions.Temperature,
			Discoveries: p.TotalDiscoveries,
		})
	}
	out.Discoveries.Total = snap.DiscoveryStats.TotalDiscoveries
	out.Discoveries.Recent = append(out.Discoveries.Recent, snap.DiscoveryStats.RecentDiscoveries...)
	out.CosmicEvents = append(out.CosmicEvents, snap.CosmicEvents...)
	return out
}
