/*
Package game
File: models.go
Description:
    Defines the client-side views of the rows the collaborator owns.
    Every struct here is a cache snapshot: the client never holds the
    authoritative copy, it replaces these wholesale on each reload.

    No logic is performed here; this file is strictly for type definitions.
*/

package game

import "time"

// Point is a position on the system plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is an integer grid coordinate used for occupancy and destination resolution.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Point converts the cell to plane coordinates.
func (c Cell) Point() Point {
	return Point{X: float64(c.X), Y: float64(c.Y)}
}

// Gauge is a capacity/current pair (battery, cargo, shield, hull).
type Gauge struct {
	Current  float64 `json:"current"`
	Capacity float64 `json:"capacity"`
}

// Fraction returns Current/Capacity, or 1 when the capacity is not positive.
func (g Gauge) Fraction() float64 {
	if g.Capacity <= 0 {
		return 1
	}
	return g.Current / g.Capacity
}

// Player is the locally known snapshot of a "players" row.
type Player struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Race    string  `json:"race"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Credits int64   `json:"credits"`
	Galaxy  int64   `json:"galaxy"`
	System  int64   `json:"system"`
	Level   int     `json:"level"`

	// Travel fields. BusyUntil is set if and only if TargetX and TargetY are set.
	BusyUntil *time.Time `json:"busy_until,omitempty"`
	TargetX   *float64   `json:"target_x,omitempty"`
	TargetY   *float64   `json:"target_y,omitempty"`
}

// Position returns the committed position of the player.
func (p Player) Position() Point {
	return Point{X: p.X, Y: p.Y}
}

// Target returns the travel destination, if both coordinates are known.
func (p Player) Target() (Point, bool) {
	if p.TargetX == nil || p.TargetY == nil {
		return Point{}, false
	}
	return Point{X: *p.TargetX, Y: *p.TargetY}, true
}

// Ship is the locally known snapshot of a "ships" row. Owned 1:1 by a player.
type Ship struct {
	ID          string `json:"id"`
	PlayerID    string `json:"player_id"`
	Name        string `json:"ship_name"`
	Type        string `json:"type"`
	EnginePower int    `json:"engine_power"`

	Battery Gauge `json:"battery"`
	Cargo   Gauge `json:"cargo"`
	Shield  Gauge `json:"shield"`
	Hull    Gauge `json:"hull"`

	RegenRate float64 `json:"battery_regen_rate"` // units per second; 0 means "use the default"

	// Sensors
	RadarRange     float64    `json:"radar_range"`
	RadarBonusFlat float64    `json:"radar_bonus_flat"`
	RadarBoostTill *time.Time `json:"radar_boost_until,omitempty"`

	MiningGear bool `json:"mining_gear"` // capability required to work vein nodes
}

// Object types found in a system.
const (
	ObjectPlanet   = "planet"
	ObjectAsteroid = "asteroid"
	ObjectStation  = "station"
	ObjectNebula   = "nebula"
	ObjectDerelict = "derelict"
)

// SpaceObject is a static entity in a system. It never moves.
type SpaceObject struct {
	ID        string   `json:"id"`
	SystemID  int64    `json:"system_id"`
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Level     int      `json:"level"`
	Remaining *float64 `json:"resources_remaining,omitempty"` // nil when the object carries no resource count
	ImagePath string   `json:"image_path,omitempty"`
}

// Position returns the object's location on the system plane.
func (o SpaceObject) Position() Point {
	return Point{X: o.X, Y: o.Y}
}

// Cell returns the occupied grid cell of the object.
func (o SpaceObject) Cell() Cell {
	return CellOf(o.X, o.Y)
}

// Discovery remembers that a player has seen an object at least once.
type Discovery struct {
	PlayerID   string    `json:"player_id"`
	ObjectID   string    `json:"object_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NodeKind describes how a harvest node is worked.
type NodeKind string

const (
	NodeHand NodeKind = "hand" // one-shot pickup
	NodeVein NodeKind = "vein" // depletable stream, needs mining gear
	NodeGas  NodeKind = "gas"
)

// Item is a tradeable or collectable good.
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	CargoUnits int    `json:"cargo_units"`
	BaseValue  int    `json:"base_value"`
	Stackable  bool   `json:"stackable"`
}

// HarvestNode is a depletable point on a planet's surface axis.
type HarvestNode struct {
	ID        string   `json:"id"`
	ObjectID  string   `json:"object_id"`
	Kind      NodeKind `json:"node_type"`
	X         int      `json:"x"`
	Remaining float64  `json:"remaining"`
	Max       float64  `json:"max"`
	ItemID    string   `json:"item_id"`
	Item      *Item    `json:"item,omitempty"`
}

// InventoryLine is one item stack in a ship's hold.
type InventoryLine struct {
	ShipID   string `json:"ship_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Item     *Item  `json:"item,omitempty"`
}

// Listing statuses.
const (
	ListingActive    = "active"
	ListingSold      = "sold"
	ListingCancelled = "cancelled"
)

// Listing is a player market offer. Only named procedures create, fill or cancel it.
type Listing struct {
	ID           string    `json:"id"`
	SellerID     string    `json:"seller_id"`
	ItemID       string    `json:"item_id"`
	Quantity     int       `json:"quantity"`
	PricePerUnit int64     `json:"price_per_unit"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Item         *Item     `json:"item,omitempty"`
}

// HullPreset is the starting stat block for a ship type.
type HullPreset struct {
	Key         string  `yaml:"key" json:"key"`
	EnginePower int     `yaml:"engine_power" json:"engine_power"`
	Battery     float64 `yaml:"battery" json:"battery"`
	Cargo       float64 `yaml:"cargo" json:"cargo"`
	Shield      float64 `yaml:"shield" json:"shield"`
	Hull        float64 `yaml:"hull" json:"hull"`
	Regen       float64 `yaml:"regen" json:"regen"`
	Radar       float64 `yaml:"radar" json:"radar"`
}
