// Package universe defines the state pushed by the simulation server: planets,
// the cells living on them, cosmic events and discovery statistics.
//
// A Snapshot is immutable once decoded. Readers receive it by pointer and
// must not modify it in place.
package universe

import (
	"strings"
	"time"
)

// CellType is the visual category of a cell.
type CellType int

const (
	CellUnknown CellType = iota
	CellProducer
	CellHerbivore
	CellCarnivore
)

// ParseCellType maps a wire string to a CellType. Both the Spanish names the
// simulation server emits and their English equivalents are accepted.
func ParseCellType(s string) CellType {
	switch strings.ToLower(s) {
	case "planta", "producer", "plant":
		return CellProducer
	case "herbivoro", "herbivore":
		return CellHerbivore
	case "carnivoro", "carnivore":
		return CellCarnivore
	}
	return CellUnknown
}

func (t CellType) String() string {
	switch t {
	case CellProducer:
		return "Producer"
	case CellHerbivore:
		return "Herbivore"
	case CellCarnivore:
		return "Carnivore"
	}
	return "Unknown"
}

// Size is a planet's grid extent in local units.
type Size struct {
	Width  float64
	Height float64
}

// Vec is a position in planet-local grid units.
type Vec struct {
	X float64
	Y float64
}

// Cell is one agent on a planet. IDs are unique within a planet for the
// lifetime of a single snapshot only.
type Cell struct {
	ID               int
	Position         Vec
	Type             CellType
	RawType          string
	Energy           *float64
	Age              int
	InventoryCount   int
	DiscoveriesCount int
}

// Notable reports whether the cell carries items or has made discoveries.
func (c Cell) Notable() bool {
	return c.InventoryCount > 0 || c.DiscoveriesCount > 0
}

// CellCounts is the server's per-type population tally.
type CellCounts struct {
	Plants     int `json:"plants"`
	Herbivores int `json:"herbivores"`
	Carnivores int `json:"carnivores"`
}

// Total returns the planet's whole population.
func (c CellCounts) Total() int {
	return c.Plants + c.Herbivores + c.Carnivores
}

// Conditions are a planet's environmental readings.
type Conditions struct {
	Temperature   float64  `json:"temperature"`
	Pressure      float64  `json:"pressure"`
	Radiation     float64  `json:"radiation"`
	MagneticField *float64 `json:"magnetic_field,omitempty"`
}

// Planet is a region populated by cells. ID is stable across snapshots.
type Planet struct {
	ID                  string
	Name                string
	Type                string
	Size                Size
	Cells               []Cell
	CellCounts          CellCounts
	Conditions          Conditions
	DiscoveryMultiplier float64
	TradeRoutes         int
	TotalInventory      int
	TotalDiscoveries    int
	ScatteredMaterials  int
}

// Cell returns the cell with the given id, if present.
func (p *Planet) Cell(id int) (Cell, bool) {
	for _, c := range p.Cells {
		if c.ID == id {
			return c, true
		}
	}
	return Cell{}, false
}

// CosmicEvent is a universe-wide happening affecting some planets.
type CosmicEvent struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Duration        int      `json:"duration"`
	AffectedPlanets []string `json:"affected_planets"`
}

// Discovery is one finding credited to a cell.
type Discovery struct {
	Name         string  `json:"name"`
	Significance float64 `json:"significance"`
	Type         string  `json:"type"`
	Discoverer   string  `json:"discoverer"`
}

// DiscoveryStats summarises discoveries across the universe.
type DiscoveryStats struct {
	TotalDiscoveries  int         `json:"total_discoveries"`
	RecentDiscoveries []Discovery `json:"recent_discoveries"`
}

// Snapshot is the complete universe state at one simulation step.
type Snapshot struct {
	Step           int
	Timestamp      time.Time
	Planets        []Planet
	CosmicEvents   []CosmicEvent
	DiscoveryStats DiscoveryStats

	// ReceivedAt is when the client decoded the snapshot.
	ReceivedAt time.Time
}

// Planet returns the planet with the given id and its index in Planets.
func (s *Snapshot) Planet(id string) (*Planet, int, bool) {
	if s == nil {
		return nil, -1, false
	}
	for i := range s.Planets {
		if s.Planets[i].ID == id {
			return &s.Planets[i], i, true
		}
	}
	return nil, -1, false
}

// Population returns the summed cell counts of every planet.
func (s *Snapshot) Population() int {
	total := 0
	for _, p := range s.Planets {
		total += p.CellCounts.Total()
	}
	return total
}

// InventoryItem is one item a cell carries.
type InventoryItem struct {
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

// KnownDiscovery is a discovery a cell knows about.
type KnownDiscovery struct {
	Name         string  `json:"name"`
	Significance float64 `json:"significance"`
	Type         string  `json:"type"`
}

// BrainInfo describes a cell's controller, when it has one.
type BrainInfo struct {
	Fitness    *float64 `json:"fitness,omitempty"`
	Generation *int     `json:"generation,omitempty"`
}

// CellDetails is the on-demand introspection document for one cell.
type CellDetails struct {
	ID                      int              `json:"id"`
	Type                    string           `json:"type"`
	Position                [2]float64       `json:"position"`
	Age                     int              `json:"age"`
	Energy                  *float64         `json:"energy,omitempty"`
	Curiosity               *float64         `json:"curiosity,omitempty"`
	ExperimentationCooldown *float64         `json:"experimentation_cooldown,omitempty"`
	Inventory               []InventoryItem  `json:"inventory"`
	KnownDiscoveries        []KnownDiscovery `json:"known_discoveries"`
	BrainInfo               BrainInfo        `json:"brain_info"`
}
