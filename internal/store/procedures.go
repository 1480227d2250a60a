/*
Package store
File: procedures.go
Description:
    Named atomic procedures. Each one runs inside a single transaction:
    either every mutation lands or none does. Expected refusals come back
    as *ProcedureError and roll the transaction back.

    Every call is appended to procedure_log with its arguments compressed
    as an LZ4 frame.
*/

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
)

type procedure func(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error)

func (s *SQLite) procedures() map[string]procedure {
	return map[string]procedure{
		ProcEnsureSpaceObjects: ensureSpaceObjects,
		ProcCollectNode:        collectNode,
		ProcStartTravel:        startTravel,
		ProcBuyListing:         buyListing,
		ProcSellToMarketShip:   sellToMarketShip,
		ProcCreateListing:      createListing,
		ProcCancelListing:      cancelListing,
	}
}

// Call implements Backend.
func (s *SQLite) Call(ctx context.Context, name string, args Row) (Row, error) {
	p, ok := s.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, name)
	}
	now := s.clock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	out, err := p(ctx, tx, now, args)
	if err != nil {
		tx.Rollback()
	} else {
		err = tx.Commit()
	}

	s.logCall(ctx, name, now, args, err == nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLite) logCall(ctx context.Context, name string, at time.Time, args Row, ok bool) {
	payload, err := json.Marshal(args)
	if err != nil {
		return
	}
	insertRow(ctx, s.db, "procedure_log", Row{
		"name":        name,
		"called_at":   at,
		"payload_lz4": compressLZ4(payload),
		"ok":          ok,
	})
}

// RecentCalls returns up to limit procedure_log entries, newest first.
// A payload that cannot be unpacked leaves Args nil.
func (s *SQLite) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := queryRows(ctx, s.db, "SELECT * FROM procedure_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("procedure log: %w", err)
	}
	out := make([]CallRecord, 0, len(rows))
	for _, r := range rows {
		rec := CallRecord{
			ID:       Int(r["id"], 0),
			Name:     Text(r["name"]),
			CalledAt: Time(r["called_at"]),
			OK:       Bool(r["ok"]),
		}
		blob, _ := r["payload_lz4"].([]byte)
		if raw, err := DecompressLZ4(blob); err == nil {
			json.Unmarshal(raw, &rec.Args)
		}
		out = append(out, rec)
	}
	return out, nil
}

func compressLZ4(src []byte) []byte {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	zw.Write(src)
	zw.Close()
	return buf.Bytes()
}

// DecompressLZ4 reverses the procedure_log payload encoding.
func DecompressLZ4(src []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
}

func fail(proc, code, msg string) error {
	return &ProcedureError{Procedure: proc, Code: code, Message: msg}
}

// one returns the single row matching where, or a not_found refusal.
func one(ctx context.Context, tx *sql.Tx, proc, table string, where Filter) (Row, error) {
	rows, err := selectRows(ctx, tx, table, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fail(proc, CodeNotFound, table)
	}
	return rows[0], nil
}

// addInventory adjusts a stack by delta, dropping it when it reaches zero.
func addInventory(ctx context.Context, tx *sql.Tx, shipID, itemID string, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ship_inventory (ship_id, item_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT (ship_id, item_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		shipID, itemID, delta)
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM ship_inventory WHERE ship_id = ? AND item_id = ? AND quantity <= 0`, shipID, itemID)
	return err
}

func cargoUnits(ctx context.Context, tx *sql.Tx, itemID string) int64 {
	rows, err := selectRows(ctx, tx, "items", Filter{"id": itemID})
	if err != nil || len(rows) == 0 {
		return 1
	}
	if u := Int(rows[0]["cargo_units"], 1); u > 0 {
		return u
	}
	return 1
}

// startTravel debits the battery and opens the travel window in one unit.
// Args: p_player_id, p_ship_id, p_cost, p_target_x, p_target_y, p_busy_until.
func startTravel(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	cost, okCost := Number(args["p_cost"])
	tx0, okX := Number(args["p_target_x"])
	ty0, okY := Number(args["p_target_y"])
	busy := Time(args["p_busy_until"])
	if !okCost || cost < 0 || !okX || !okY || busy == nil {
		return nil, fail(ProcStartTravel, CodeInvalid, "bad travel arguments")
	}

	player, err := one(ctx, tx, ProcStartTravel, "players", Filter{"id": Text(args["p_player_id"])})
	if err != nil {
		return nil, err
	}
	if bu := Time(player["busy_until"]); bu != nil && bu.After(now) {
		return nil, fail(ProcStartTravel, CodeAlreadyTraveling, "travel in progress")
	}

	ship, err := one(ctx, tx, ProcStartTravel, "ships", Filter{"id": Text(args["p_ship_id"]), "player_id": Text(player["id"])})
	if err != nil {
		return nil, err
	}
	battery := Float(ship["battery_current"], 0)
	if battery < cost {
		return nil, fail(ProcStartTravel, CodeInsufficientBattery, fmt.Sprintf("need %.0f, have %.0f", cost, battery))
	}
	battery -= cost

	if _, err := updateRows(ctx, tx, "ships", Filter{"id": ship["id"]}, Row{"battery_current": battery}); err != nil {
		return nil, err
	}
	_, err = updateRows(ctx, tx, "players", Filter{"id": player["id"]}, Row{
		"target_x":   tx0,
		"target_y":   ty0,
		"busy_until": *busy,
	})
	if err != nil {
		return nil, err
	}

	return Row{"ok": true, "battery_current": battery, "busy_until": Stamp(*busy)}, nil
}

// collectNode moves up to p_qty units from a node into the ship's hold,
// bounded by what the node holds and what the hold can take.
// Args: p_ship_id, p_node_id, p_qty.
func collectNode(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	qty := Int(args["p_qty"], 0)
	if qty <= 0 {
		return nil, fail(ProcCollectNode, CodeInvalid, "quantity must be positive")
	}

	node, err := one(ctx, tx, ProcCollectNode, "object_nodes", Filter{"id": Text(args["p_node_id"])})
	if err != nil {
		return nil, err
	}
	remaining := Float(node["remaining"], 0)
	avail := int64(math.Floor(remaining))
	if avail <= 0 {
		return nil, fail(ProcCollectNode, CodeNodeEmpty, "node is empty")
	}

	ship, err := one(ctx, tx, ProcCollectNode, "ships", Filter{"id": Text(args["p_ship_id"])})
	if err != nil {
		return nil, err
	}
	itemID := Text(node["item_id"])
	units := cargoUnits(ctx, tx, itemID)
	capacity := Int(ship["cargo_capacity"], 0)
	used := Int(ship["cargo_used"], 0)
	room := (capacity - used) / units
	if room <= 0 {
		return nil, fail(ProcCollectNode, CodeCargoFull, "cargo hold is full")
	}

	collected := min(qty, avail, room)
	remaining -= float64(collected)
	used += collected * units

	if _, err := updateRows(ctx, tx, "object_nodes", Filter{"id": node["id"]}, Row{"remaining": remaining}); err != nil {
		return nil, err
	}
	if _, err := updateRows(ctx, tx, "ships", Filter{"id": ship["id"]}, Row{"cargo_used": used}); err != nil {
		return nil, err
	}
	if itemID != "" {
		if err := addInventory(ctx, tx, Text(ship["id"]), itemID, collected); err != nil {
			return nil, err
		}
	}

	return Row{
		"ok":                  true,
		"message":             "ok",
		"collected_qty":       collected,
		"node_remaining":      remaining,
		"ship_cargo_used":     used,
		"ship_cargo_capacity": capacity,
	}, nil
}

// seedStream is a deterministic byte stream for one system.
type seedStream struct {
	r io.Reader
}

func newSeedStream(parts ...string) *seedStream {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return &seedStream{r: h.XOF()}
}

func (s *seedStream) next(n int) int {
	var b [8]byte
	io.ReadFull(s.r, b[:])
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n))
}

var objectKinds = []string{"planet", "asteroid", "asteroid", "station", "nebula", "derelict"}

// ensureSpaceObjects materialises a system the first time anyone looks at it.
// Contents derive from the system id alone, so every player sees the same map.
// Args: p_system_id.
func ensureSpaceObjects(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	sys, ok := Number(args["p_system_id"])
	if !ok {
		return nil, fail(ProcEnsureSpaceObjects, CodeInvalid, "system id required")
	}
	systemID := int64(sys)

	existing, err := selectRows(ctx, tx, "space_objects", Filter{"system_id": systemID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return Row{"ok": true, "created": 0}, nil
	}

	seed := newSeedStream("system", fmt.Sprint(systemID))
	count := 7 + seed.next(5)
	taken := map[[2]int]bool{{0, 0}: true}
	created := 0

	for i := 0; i < count; i++ {
		kind := objectKinds[0]
		if i > 0 {
			kind = objectKinds[seed.next(len(objectKinds))]
		}

		var x, y int
		for {
			// The first planet sits inside the starting sensor bubble.
			span := 60
			if i == 0 {
				span = 12
			}
			x = seed.next(2*span+1) - span
			y = seed.next(2*span+1) - span
			if !taken[[2]int{x, y}] {
				break
			}
		}
		taken[[2]int{x, y}] = true

		row := Row{
			"system_id":  systemID,
			"type":       kind,
			"name":       fmt.Sprintf("%s %d-%c", titleKind(kind), systemID, 'A'+rune(i)),
			"x":          float64(x),
			"y":          float64(y),
			"level":      1,
			"image_path": "img/" + kind + ".png",
		}
		if kind != "planet" {
			row["level"] = 1 + seed.next(3)
			row["resources_remaining"] = float64(40 + 10*seed.next(11))
		}
		obj, err := insertRow(ctx, tx, "space_objects", row)
		if err != nil {
			return nil, err
		}
		created++

		if kind == "planet" {
			if err := seedNodes(ctx, tx, seed, Text(obj["id"])); err != nil {
				return nil, err
			}
		}
	}

	return Row{"ok": true, "created": created}, nil
}

// seedNodes scatters harvest nodes along a planet's surface axis.
func seedNodes(ctx context.Context, tx *sql.Tx, seed *seedStream, objectID string) error {
	n := 8 + seed.next(7)
	for i := 0; i < n; i++ {
		it := catalog[seed.next(len(catalog))]
		full := 1.0
		if it.Node != "hand" {
			full = float64(30 + 10*seed.next(8))
		}
		_, err := insertRow(ctx, tx, "object_nodes", Row{
			"object_id": objectID,
			"node_type": it.Node,
			"x":         seed.next(501),
			"remaining": full,
			"max":       full,
			"item_id":   it.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func titleKind(kind string) string {
	if kind == "" {
		return ""
	}
	return string(kind[0]-'a'+'A') + kind[1:]
}
