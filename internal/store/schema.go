/*
Package store
File: schema.go
Description:
    Table layout of the embedded collaborator plus the static item catalog.
    Timestamps are RFC 3339 text, booleans are 0/1 integers.
*/

package store

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	race TEXT,
	x REAL DEFAULT 0,
	y REAL DEFAULT 0,
	credits INTEGER DEFAULT 0,
	galaxy INTEGER DEFAULT 1,
	system INTEGER DEFAULT 1,
	level INTEGER DEFAULT 1,
	busy_until TEXT,
	target_x REAL,
	target_y REAL
);

CREATE TABLE IF NOT EXISTS ships (
	id TEXT PRIMARY KEY,
	player_id TEXT UNIQUE NOT NULL,
	ship_name TEXT,
	type TEXT,
	engine_power INTEGER DEFAULT 1,
	battery_capacity REAL DEFAULT 100,
	battery_current REAL DEFAULT 100,
	battery_regen_rate REAL,
	cargo_capacity INTEGER DEFAULT 10,
	cargo_used INTEGER DEFAULT 0,
	shield_capacity REAL,
	shield_current REAL,
	hull_capacity REAL,
	hull_current REAL,
	radar_range REAL DEFAULT 10,
	radar_bonus_flat REAL DEFAULT 0,
	radar_boost_until TEXT,
	mining_gear INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT,
	cargo_units INTEGER DEFAULT 1,
	base_value INTEGER DEFAULT 1,
	stackable INTEGER DEFAULT 1
);

CREATE TABLE IF NOT EXISTS space_objects (
	id TEXT PRIMARY KEY,
	system_id INTEGER NOT NULL,
	type TEXT NOT NULL,
	name TEXT,
	x REAL DEFAULT 0,
	y REAL DEFAULT 0,
	level INTEGER DEFAULT 1,
	resources_remaining REAL,
	image_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_space_objects_system ON space_objects(system_id);

CREATE TABLE IF NOT EXISTS player_discovered_objects (
	player_id TEXT NOT NULL,
	object_id TEXT NOT NULL,
	last_seen_at TEXT,
	PRIMARY KEY (player_id, object_id)
);

CREATE TABLE IF NOT EXISTS object_nodes (
	id TEXT PRIMARY KEY,
	object_id TEXT NOT NULL,
	node_type TEXT NOT NULL,
	x INTEGER DEFAULT 0,
	remaining REAL DEFAULT 0,
	max REAL DEFAULT 0,
	item_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_object_nodes_object ON object_nodes(object_id);

CREATE TABLE IF NOT EXISTS ship_inventory (
	ship_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	quantity INTEGER DEFAULT 0,
	PRIMARY KEY (ship_id, item_id)
);

CREATE TABLE IF NOT EXISTS market_listings (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price_per_unit INTEGER NOT NULL,
	status TEXT DEFAULT 'active',
	created_at TEXT
);

CREATE TABLE IF NOT EXISTS market_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	listing_fee_pct REAL DEFAULT 5,
	direct_sell_ratio REAL DEFAULT 0.6
);
INSERT OR IGNORE INTO market_config (id, listing_fee_pct, direct_sell_ratio) VALUES (1, 5, 0.6);

CREATE TABLE IF NOT EXISTS procedure_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	called_at TEXT,
	payload_lz4 BLOB,
	ok INTEGER DEFAULT 0
);
`

// catalogItem is a row of the static item catalog.
type catalogItem struct {
	ID         string
	Name       string
	Kind       string
	CargoUnits int
	BaseValue  int
	Node       string // node type that yields it
}

// Catalog is fixed so generated nodes can reference items by id.
var catalog = []catalogItem{
	{ID: "scrap_metal", Name: "Scrap Metal", Kind: "material", CargoUnits: 1, BaseValue: 4, Node: "hand"},
	{ID: "ice_shard", Name: "Ice Shard", Kind: "material", CargoUnits: 1, BaseValue: 6, Node: "hand"},
	{ID: "iron_ore", Name: "Iron Ore", Kind: "ore", CargoUnits: 1, BaseValue: 10, Node: "vein"},
	{ID: "crystal", Name: "Crystal", Kind: "ore", CargoUnits: 1, BaseValue: 25, Node: "vein"},
	{ID: "helium3", Name: "Helium-3", Kind: "gas", CargoUnits: 1, BaseValue: 15, Node: "gas"},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	for _, it := range catalog {
		_, err := db.Exec(`INSERT OR IGNORE INTO items (id, name, kind, cargo_units, base_value, stackable) VALUES (?, ?, ?, ?, ?, 1)`,
			it.ID, it.Name, it.Kind, it.CargoUnits, it.BaseValue)
		if err != nil {
			return fmt.Errorf("store: catalog: %w", err)
		}
	}
	return nil
}
