/*
Package client
File: decode.go
Description:
    Row to model conversion. Missing or malformed columns fall back to
    zero values or the given defaults.
*/

package client

import (
	"math"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// gauge reads a capacity/current pair and clamps current into [0, capacity].
// Absent values fall back to def for both.
func gauge(r store.Row, capCol, curCol string, def float64) game.Gauge {
	g := game.Gauge{
		Capacity: store.Float(r[capCol], def),
		Current:  store.Float(r[curCol], def),
	}
	if g.Capacity < 0 {
		g.Capacity = 0
	}
	g.Current = math.Max(0, math.Min(g.Current, g.Capacity))
	return g
}

func decodePlayer(r store.Row) game.Player {
	p := game.Player{
		ID:      store.Text(r["id"]),
		Name:    store.Text(r["name"]),
		Race:    store.Text(r["race"]),
		X:       store.Float(r["x"], 0),
		Y:       store.Float(r["y"], 0),
		Credits: store.Int(r["credits"], 0),
		Galaxy:  store.Int(r["galaxy"], 1),
		System:  store.Int(r["system"], 1),
		Level:   int(store.Int(r["level"], 1)),
	}
	p.BusyUntil = store.Time(r["busy_until"])
	p.TargetX = store.FloatPtr(r["target_x"])
	p.TargetY = store.FloatPtr(r["target_y"])
	return p
}

func decodeShip(r store.Row) game.Ship {
	return game.Ship{
		ID:             store.Text(r["id"]),
		PlayerID:       store.Text(r["player_id"]),
		Name:           store.Text(r["ship_name"]),
		Type:           store.Text(r["type"]),
		EnginePower:    int(store.Int(r["engine_power"], 1)),
		Battery:        gauge(r, "battery_capacity", "battery_current", 0),
		Cargo:          gauge(r, "cargo_capacity", "cargo_used", 0),
		Shield:         gauge(r, "shield_capacity", "shield_current", 100),
		Hull:           gauge(r, "hull_capacity", "hull_current", 100),
		RegenRate:      store.Float(r["battery_regen_rate"], 0),
		RadarRange:     store.Float(r["radar_range"], 0),
		RadarBonusFlat: store.Float(r["radar_bonus_flat"], 0),
		RadarBoostTill: store.Time(r["radar_boost_until"]),
		MiningGear:     store.Bool(r["mining_gear"]),
	}
}

func decodeObject(r store.Row) game.SpaceObject {
	return game.SpaceObject{
		ID:        store.Text(r["id"]),
		SystemID:  store.Int(r["system_id"], 0),
		Type:      store.Text(r["type"]),
		Name:      store.Text(r["name"]),
		X:         store.Float(r["x"], 0),
		Y:         store.Float(r["y"], 0),
		Level:     int(store.Int(r["level"], 1)),
		Remaining: store.FloatPtr(r["resources_remaining"]),
		ImagePath: store.Text(r["image_path"]),
	}
}

func decodeItem(r store.Row) game.Item {
	return game.Item{
		ID:         store.Text(r["id"]),
		Name:       store.Text(r["name"]),
		Kind:       store.Text(r["kind"]),
		CargoUnits: int(store.Int(r["cargo_units"], 1)),
		BaseValue:  int(store.Int(r["base_value"], 0)),
		Stackable:  store.Bool(r["stackable"]),
	}
}

func decodeNode(r store.Row) game.HarvestNode {
	return game.HarvestNode{
		ID:        store.Text(r["id"]),
		ObjectID:  store.Text(r["object_id"]),
		Kind:      game.NodeKind(store.Text(r["node_type"])),
		X:         int(store.Int(r["x"], 0)),
		Remaining: store.Float(r["remaining"], 0),
		Max:       store.Float(r["max"], 0),
		ItemID:    store.Text(r["item_id"]),
	}
}

func decodeInventory(r store.Row) game.InventoryLine {
	return game.InventoryLine{
		ShipID:   store.Text(r["ship_id"]),
		ItemID:   store.Text(r["item_id"]),
		Quantity: int(store.Int(r["quantity"], 0)),
	}
}

func decodeListing(r store.Row) game.Listing {
	l := game.Listing{
		ID:           store.Text(r["id"]),
		SellerID:     store.Text(r["seller_id"]),
		ItemID:       store.Text(r["item_id"]),
		Quantity:     int(store.Int(r["quantity"], 0)),
		PricePerUnit: store.Int(r["price_per_unit"], 0),
		Status:       store.Text(r["status"]),
	}
	if t := store.Time(r["created_at"]); t != nil {
		l.CreatedAt = *t
	}
	return l
}
