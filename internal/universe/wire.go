package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TypeUniverseUpdate is the discriminator of a full state push.
const TypeUniverseUpdate = "universe_update"

// PongText is the heartbeat acknowledgement the server sends for "ping".
const PongText = "pong"

// ErrDecode wraps every failure to interpret an inbound frame.
var ErrDecode = errors.New("decode message")

// Kind classifies an inbound frame.
type Kind int

const (
	KindIgnored Kind = iota
	KindPong
	KindUpdate
)

// Message is a decoded inbound frame. Snapshot is set only for KindUpdate.
type Message struct {
	Kind     Kind
	Type     string
	Snapshot *Snapshot
}

type wireEnvelope struct {
	Type string `json:"type"`
}

type wireCell struct {
	ID               int      `json:"id"`
	X                float64  `json:"x"`
	Y                float64  `json:"y"`
	Type             string   `json:"type"`
	Energy           *float64 `json:"energy"`
	Age              int      `json:"age"`
	InventoryCount   int      `json:"inventory_count"`
	DiscoveriesCount int      `json:"discoveries_count"`
}

type wirePlanet struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                string     `json:"type"`
	Size                [2]float64 `json:"size"`
	Cells               []wireCell `json:"cells"`
	CellCounts          CellCounts `json:"cell_counts"`
	Conditions          Conditions `json:"conditions"`
	DiscoveryMultiplier float64    `json:"discovery_multiplier"`
	TradeRoutes         int        `json:"trade_routes"`
	TotalInventory      int        `json:"total_inventory"`
	TotalDiscoveries    int        `json:"total_discoveries"`
	ScatteredMaterials  int        `json:"scattered_materials"`
}

type wireUpdate struct {
	Type           string         `json:"type"`
	Step           int            `json:"step"`
	Timestamp      string         `json:"timestamp"`
	Planets        []wirePlanet   `json:"planets"`
	CosmicEvents   []CosmicEvent  `json:"cosmic_events"`
	DiscoveryStats DiscoveryStats `json:"discovery_stats"`
}

// DecodeMessage interprets one inbound text frame. The literal "pong" is
// recognised before any JSON parsing. Frames that are valid JSON but carry an
// unknown type decode to KindIgnored without error.
func DecodeMessage(data []byte, now time.Time) (Message, error) {
	if string(data) == PongText {
		return Message{Kind: KindPong}, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Type != TypeUniverseUpdate {
		return Message{Kind: KindIgnored, Type: env.Type}, nil
	}

	var u wireUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %w", ErrDecode, env.Type, err)
	}
	return Message{Kind: KindUpdate, Type: env.Type, Snapshot: u.snapshot(now)}, nil
}

func (u *wireUpdate) snapshot(now time.Time) *Snapshot {
	planets := make([]Planet, len(u.Planets))
	for i, wp := range u.Planets {
		cells := make([]Cell, len(wp.Cells))
		for j, wc := range wp.Cells {
			cells[j] = Cell{
				ID:               wc.ID,
				Position:         Vec{X: wc.X, Y: wc.Y},
				Type:             ParseCellType(wc.Type),
				RawType:          wc.Type,
				Energy:           wc.Energy,
				Age:              wc.Age,
				InventoryCount:   wc.InventoryCount,
				DiscoveriesCount: wc.DiscoveriesCount,
			}
		}
		planets[i] = Planet{
			ID:                  wp.ID,
			Name:                wp.Name,
			Type:                wp.Type,
			Size:                Size{Width: wp.Size[0], Height: wp.Size[1]},
			Cells:               cells,
			CellCounts:          wp.CellCounts,
			Conditions:          wp.Conditions,
			DiscoveryMultiplier: wp.DiscoveryMultiplier,
			TradeRoutes:         wp.TradeRoutes,
			TotalInventory:      wp.TotalInventory,
			TotalDiscoveries:    wp.TotalDiscoveries,
			ScatteredMaterials:  wp.ScatteredMaterials,
		}
	}
	return &Snapshot{
		Step:           u.Step,
		Timestamp:      ParseTimestamp(u.Timestamp),
		Planets:        planets,
		CosmicEvents:   u.CosmicEvents,
		DiscoveryStats: u.DiscoveryStats,
		ReceivedAt:     now,
	}
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form produced by
// Python's datetime.isoformat().
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Unparseable input yields the
// zero time; a bad timestamp never invalidates a snapshot.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
