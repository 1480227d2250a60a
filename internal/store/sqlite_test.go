package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestStore opens an isolated in-memory collaborator on the pure Go driver.
func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	s.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPilot inserts a player with a ship and returns their ids.
func seedPilot(t *testing.T, s *SQLite, id string, credits int64) (string, string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Insert(ctx, "players", Row{"id": id, "name": id, "credits": credits}); err != nil {
		t.Fatalf("insert player: %v", err)
	}
	ship, err := s.Insert(ctx, "ships", Row{
		"player_id":        id,
		"ship_name":        id + "-ship",
		"battery_current":  100.0,
		"battery_capacity": 100.0,
		"cargo_capacity":   10,
		"cargo_used":       0,
	})
	if err != nil {
		t.Fatalf("insert ship: %v", err)
	}
	return id, Text(ship["id"])
}

func TestSelectFiltersNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPilot(t, s, "p1", 0)
	seedPilot(t, s, "p2", 0)

	if _, err := s.Update(ctx, "players", Filter{"id": "p2"}, Row{"busy_until": testNow, "target_x": 1.0, "target_y": 2.0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	idle, err := s.Select(ctx, "players", Filter{"busy_until": nil})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(idle) != 1 || Text(idle[0]["id"]) != "p1" {
		t.Fatalf("expected only p1 idle, got %v", idle)
	}

	busy, _ := s.Select(ctx, "players", Filter{"id": "p2"})
	if got := Time(busy[0]["busy_until"]); got == nil || !got.Equal(testNow) {
		t.Errorf("busy_until round trip: got %v", got)
	}
}

func TestRejectsBadIdentifiers(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Select(context.Background(), "players; DROP TABLE players", nil)
	if !errors.Is(err, ErrBadIdentifier) {
		t.Fatalf("expected ErrBadIdentifier, got %v", err)
	}
	_, err = s.Update(context.Background(), "players", Filter{"id": "x"}, Row{"Name": "y"})
	if !errors.Is(err, ErrBadIdentifier) {
		t.Fatalf("expected ErrBadIdentifier for column, got %v", err)
	}
}

func TestUpsertRefreshesDiscovery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := []string{"player_id", "object_id"}

	first := Row{"player_id": "p1", "object_id": "o1", "last_seen_at": testNow}
	if err := s.Upsert(ctx, "player_discovered_objects", []Row{first}, key); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	later := testNow.Add(time.Minute)
	again := Row{"player_id": "p1", "object_id": "o1", "last_seen_at": later}
	if err := s.Upsert(ctx, "player_discovered_objects", []Row{again}, key); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	rows, _ := s.Select(ctx, "player_discovered_objects", Filter{"player_id": "p1"})
	if len(rows) != 1 {
		t.Fatalf("expected 1 discovery row, got %d", len(rows))
	}
	if got := Time(rows[0]["last_seen_at"]); got == nil || !got.Equal(later) {
		t.Errorf("last_seen_at not refreshed: %v", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "p1", time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := s.Session(ctx, sess.Token)
	if err != nil || got == nil || got.UserID != "p1" {
		t.Fatalf("expected active session, got %v (%v)", got, err)
	}

	s.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	got, err = s.Session(ctx, sess.Token)
	if err != nil || got != nil {
		t.Fatalf("expected expired session to be absent, got %v (%v)", got, err)
	}
}

func TestStartTravelIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid, sid := seedPilot(t, s, "p1", 0)

	args := Row{
		"p_player_id":  pid,
		"p_ship_id":    sid,
		"p_cost":       500,
		"p_target_x":   3.0,
		"p_target_y":   4.0,
		"p_busy_until": testNow.Add(5 * time.Second),
	}
	_, err := s.Call(ctx, ProcStartTravel, args)
	if CodeOf(err) != CodeInsufficientBattery {
		t.Fatalf("expected insufficient_battery, got %v", err)
	}
	players, _ := s.Select(ctx, "players", Filter{"id": pid})
	if players[0]["busy_until"] != nil {
		t.Fatalf("refused travel must not touch the player row")
	}

	args["p_cost"] = 1
	out, err := s.Call(ctx, ProcStartTravel, args)
	if err != nil {
		t.Fatalf("start_travel: %v", err)
	}
	if Float(out["battery_current"], -1) != 99 {
		t.Errorf("battery after travel: got %v", out["battery_current"])
	}

	_, err = s.Call(ctx, ProcStartTravel, args)
	if CodeOf(err) != CodeAlreadyTraveling {
		t.Fatalf("expected already_traveling, got %v", err)
	}
}

func TestCollectNodeBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, sid := seedPilot(t, s, "p1", 0)

	node, err := s.Insert(ctx, "object_nodes", Row{"object_id": "planet", "node_type": "vein", "x": 10, "remaining": 30.0, "max": 30.0, "item_id": "iron_ore"})
	if err != nil {
		t.Fatalf("insert node: %v", err)
	}
	nid := Text(node["id"])

	out, err := s.Call(ctx, ProcCollectNode, Row{"p_ship_id": sid, "p_node_id": nid, "p_qty": 25})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// Cargo capacity 10 caps the first collect.
	if Int(out["collected_qty"], 0) != 10 || Float(out["node_remaining"], 0) != 20 || Int(out["ship_cargo_used"], 0) != 10 {
		t.Fatalf("unexpected collect result: %v", out)
	}

	_, err = s.Call(ctx, ProcCollectNode, Row{"p_ship_id": sid, "p_node_id": nid, "p_qty": 1})
	if CodeOf(err) != CodeCargoFull {
		t.Fatalf("expected cargo_full, got %v", err)
	}

	inv, _ := s.Select(ctx, "ship_inventory", Filter{"ship_id": sid, "item_id": "iron_ore"})
	if len(inv) != 1 || Int(inv[0]["quantity"], 0) != 10 {
		t.Fatalf("inventory mismatch: %v", inv)
	}

	empty, _ := s.Insert(ctx, "object_nodes", Row{"object_id": "planet", "node_type": "hand", "x": 3, "remaining": 0.0, "max": 1.0, "item_id": "scrap_metal"})
	_, err = s.Call(ctx, ProcCollectNode, Row{"p_ship_id": sid, "p_node_id": Text(empty["id"]), "p_qty": 1})
	if CodeOf(err) != CodeNodeEmpty {
		t.Fatalf("expected node_empty, got %v", err)
	}
}

func TestEnsureSpaceObjectsIsDeterministic(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)
	ctx := context.Background()

	for _, s := range []*SQLite{a, b} {
		out, err := s.Call(ctx, ProcEnsureSpaceObjects, Row{"p_system_id": 7})
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if Int(out["created"], 0) == 0 {
			t.Fatalf("expected objects to be created")
		}
	}

	ra, _ := a.Select(ctx, "space_objects", Filter{"system_id": 7})
	rb, _ := b.Select(ctx, "space_objects", Filter{"system_id": 7})
	if len(ra) != len(rb) {
		t.Fatalf("object counts differ: %d vs %d", len(ra), len(rb))
	}
	for i := range ra {
		if Text(ra[i]["name"]) != Text(rb[i]["name"]) || Float(ra[i]["x"], 0) != Float(rb[i]["x"], 0) || Float(ra[i]["y"], 0) != Float(rb[i]["y"], 0) {
			t.Errorf("object %d differs: %v vs %v", i, ra[i], rb[i])
		}
	}
	if Text(ra[0]["type"]) != "planet" {
		t.Errorf("first object should be the home planet, got %v", ra[0]["type"])
	}

	// A second call is a no-op.
	out, err := a.Call(ctx, ProcEnsureSpaceObjects, Row{"p_system_id": 7})
	if err != nil || Int(out["created"], -1) != 0 {
		t.Fatalf("second ensure should create nothing: %v %v", out, err)
	}
}

func TestMarketRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller, sellerShip := seedPilot(t, s, "seller", 100)
	buyer, buyerShip := seedPilot(t, s, "buyer", 500)

	s.Upsert(ctx, "ship_inventory", []Row{{"ship_id": sellerShip, "item_id": "crystal", "quantity": 4}}, []string{"ship_id", "item_id"})
	s.Update(ctx, "ships", Filter{"id": sellerShip}, Row{"cargo_used": 4})

	out, err := s.Call(ctx, ProcCreateListing, Row{"p_player_id": seller, "p_item_id": "crystal", "p_qty": 3, "p_price_per_unit": 40})
	if err != nil {
		t.Fatalf("create_listing: %v", err)
	}
	if Int(out["fee"], 0) != 6 {
		t.Errorf("fee: expected 6, got %v", out["fee"])
	}
	listingID := Text(out["listing_id"])

	_, err = s.Call(ctx, ProcBuyListing, Row{"p_player_id": seller, "p_listing_id": listingID, "p_qty": 1})
	if CodeOf(err) != CodeForbidden {
		t.Fatalf("expected forbidden self-buy, got %v", err)
	}

	out, err = s.Call(ctx, ProcBuyListing, Row{"p_player_id": buyer, "p_listing_id": listingID, "p_qty": 3})
	if err != nil {
		t.Fatalf("buy_listing: %v", err)
	}
	if Int(out["total_price"], 0) != 120 {
		t.Errorf("total_price: got %v", out["total_price"])
	}

	ps, _ := s.Select(ctx, "players", nil)
	credits := map[string]int64{}
	for _, p := range ps {
		credits[Text(p["id"])] = Int(p["credits"], 0)
	}
	if credits[seller] != 100-6+120 || credits[buyer] != 500-120 {
		t.Errorf("credits after trade: %v", credits)
	}

	listings, _ := s.Select(ctx, "market_listings", Filter{"id": listingID})
	if Text(listings[0]["status"]) != "sold" {
		t.Errorf("listing should be sold, got %v", listings[0]["status"])
	}

	out, err = s.Call(ctx, ProcSellToMarketShip, Row{"p_ship_id": buyerShip, "p_item_id": "crystal", "p_qty": 2})
	if err != nil {
		t.Fatalf("sell_to_market_ship: %v", err)
	}
	if Int(out["unit_price"], 0) != 15 || Int(out["total"], 0) != 30 {
		t.Errorf("direct sale: %v", out)
	}

	_, err = s.Call(ctx, ProcSellToMarketShip, Row{"p_ship_id": buyerShip, "p_item_id": "crystal", "p_qty": 5})
	if CodeOf(err) != CodeInsufficientItems {
		t.Fatalf("expected insufficient_items, got %v", err)
	}
}

func TestCancelListingReturnsGoods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller, ship := seedPilot(t, s, "seller", 100)
	s.Upsert(ctx, "ship_inventory", []Row{{"ship_id": ship, "item_id": "helium3", "quantity": 5}}, []string{"ship_id", "item_id"})
	s.Update(ctx, "ships", Filter{"id": ship}, Row{"cargo_used": 5})

	out, err := s.Call(ctx, ProcCreateListing, Row{"p_player_id": seller, "p_item_id": "helium3", "p_qty": 5, "p_price_per_unit": 10})
	if err != nil {
		t.Fatalf("create_listing: %v", err)
	}
	if _, err := s.Call(ctx, ProcCancelListing, Row{"p_player_id": "someone", "p_listing_id": out["listing_id"]}); CodeOf(err) != CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := s.Call(ctx, ProcCancelListing, Row{"p_player_id": seller, "p_listing_id": out["listing_id"]}); err != nil {
		t.Fatalf("cancel_listing: %v", err)
	}

	inv, _ := s.Select(ctx, "ship_inventory", Filter{"ship_id": ship, "item_id": "helium3"})
	if len(inv) != 1 || Int(inv[0]["quantity"], 0) != 5 {
		t.Fatalf("goods not returned: %v", inv)
	}
}

func TestProcedureLogIsCompressed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Call(ctx, ProcCollectNode, Row{"p_ship_id": "nope", "p_node_id": "nope", "p_qty": 1})

	rows, err := s.Select(ctx, "procedure_log", Filter{"name": ProcCollectNode})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one log row, got %v (%v)", rows, err)
	}
	if Bool(rows[0]["ok"]) {
		t.Errorf("failed call logged as ok")
	}
	blob, _ := rows[0]["payload_lz4"].([]byte)
	raw, err := DecompressLZ4(blob)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args["p_node_id"] != "nope" {
		t.Fatalf("payload mismatch: %s", raw)
	}
}

func TestUnknownProcedure(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Call(context.Background(), "drop_everything", nil); !errors.Is(err, ErrUnknownProcedure) {
		t.Fatalf("expected ErrUnknownProcedure, got %v", err)
	}
}

func TestRecentCallsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Call(ctx, ProcCollectNode, Row{"p_ship_id": "a", "p_node_id": "first", "p_qty": 1})
	s.Call(ctx, ProcCollectNode, Row{"p_ship_id": "a", "p_node_id": "second", "p_qty": 1})

	calls, err := s.RecentCalls(ctx, 1)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(calls) != 1 || calls[0].Args["p_node_id"] != "second" || calls[0].OK {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if all, _ := s.RecentCalls(ctx, 0); len(all) != 2 {
		t.Fatalf("default limit should return both calls, got %d", len(all))
	}
}
