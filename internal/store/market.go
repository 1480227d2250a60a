/*
Package store
File: market.go
Description:
    Market procedures. Listings hold their goods in escrow: creating one
    removes the stack from the seller's hold, cancelling returns it, and
    buying moves it into the buyer's hold while credits change hands.
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

type marketConfig struct {
	ListingFeePct   float64
	DirectSellRatio float64
}

func loadMarketConfig(ctx context.Context, tx *sql.Tx) marketConfig {
	cfg := marketConfig{ListingFeePct: 5, DirectSellRatio: 0.6}
	rows, err := selectRows(ctx, tx, "market_config", Filter{"id": 1})
	if err != nil || len(rows) == 0 {
		return cfg
	}
	cfg.ListingFeePct = Float(rows[0]["listing_fee_pct"], cfg.ListingFeePct)
	cfg.DirectSellRatio = Float(rows[0]["direct_sell_ratio"], cfg.DirectSellRatio)
	return cfg
}

// stock returns the quantity of itemID held by shipID.
func stock(ctx context.Context, tx *sql.Tx, shipID, itemID string) (int64, error) {
	rows, err := selectRows(ctx, tx, "ship_inventory", Filter{"ship_id": shipID, "item_id": itemID})
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return Int(rows[0]["quantity"], 0), nil
}

// moveCargo adds delta units of itemID to a ship's hold and cargo_used.
// A positive delta fails with cargo_full when the hold cannot take it.
func moveCargo(ctx context.Context, tx *sql.Tx, proc string, ship Row, itemID string, delta int64) error {
	units := cargoUnits(ctx, tx, itemID)
	capacity := Int(ship["cargo_capacity"], 0)
	used := Int(ship["cargo_used"], 0) + delta*units
	if delta > 0 && used > capacity {
		return fail(proc, CodeCargoFull, "cargo hold is full")
	}
	if used < 0 {
		used = 0
	}
	if _, err := updateRows(ctx, tx, "ships", Filter{"id": ship["id"]}, Row{"cargo_used": used}); err != nil {
		return err
	}
	return addInventory(ctx, tx, Text(ship["id"]), itemID, delta)
}

func addCredits(ctx context.Context, tx *sql.Tx, playerID string, delta int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE players SET credits = credits + ? WHERE id = ?`, delta, playerID)
	return err
}

// buyListing args: p_player_id, p_listing_id, p_qty.
func buyListing(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	qty := Int(args["p_qty"], 0)
	if qty <= 0 {
		return nil, fail(ProcBuyListing, CodeInvalid, "quantity must be positive")
	}
	buyerID := Text(args["p_player_id"])

	listing, err := one(ctx, tx, ProcBuyListing, "market_listings", Filter{"id": Text(args["p_listing_id"]), "status": "active"})
	if err != nil {
		return nil, err
	}
	sellerID := Text(listing["seller_id"])
	if sellerID == buyerID {
		return nil, fail(ProcBuyListing, CodeForbidden, "cannot buy your own listing")
	}
	left := Int(listing["quantity"], 0)
	if qty > left {
		return nil, fail(ProcBuyListing, CodeInsufficientItems, fmt.Sprintf("only %d available", left))
	}

	buyer, err := one(ctx, tx, ProcBuyListing, "players", Filter{"id": buyerID})
	if err != nil {
		return nil, err
	}
	total := qty * Int(listing["price_per_unit"], 0)
	if Int(buyer["credits"], 0) < total {
		return nil, fail(ProcBuyListing, CodeInsufficientCredits, fmt.Sprintf("need %d credits", total))
	}
	ship, err := one(ctx, tx, ProcBuyListing, "ships", Filter{"player_id": buyerID})
	if err != nil {
		return nil, err
	}

	if err := moveCargo(ctx, tx, ProcBuyListing, ship, Text(listing["item_id"]), qty); err != nil {
		return nil, err
	}
	if err := addCredits(ctx, tx, buyerID, -total); err != nil {
		return nil, err
	}
	if err := addCredits(ctx, tx, sellerID, total); err != nil {
		return nil, err
	}

	fields := Row{"quantity": left - qty}
	if left == qty {
		fields["status"] = "sold"
	}
	if _, err := updateRows(ctx, tx, "market_listings", Filter{"id": listing["id"]}, fields); err != nil {
		return nil, err
	}

	return Row{"ok": true, "quantity": qty, "total_price": total}, nil
}

// sellToMarketShip sells straight to the NPC market at a discount of the base value.
// Args: p_ship_id, p_item_id, p_qty.
func sellToMarketShip(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	qty := Int(args["p_qty"], 0)
	if qty <= 0 {
		return nil, fail(ProcSellToMarketShip, CodeInvalid, "quantity must be positive")
	}
	itemID := Text(args["p_item_id"])

	ship, err := one(ctx, tx, ProcSellToMarketShip, "ships", Filter{"id": Text(args["p_ship_id"])})
	if err != nil {
		return nil, err
	}
	item, err := one(ctx, tx, ProcSellToMarketShip, "items", Filter{"id": itemID})
	if err != nil {
		return nil, err
	}
	have, err := stock(ctx, tx, Text(ship["id"]), itemID)
	if err != nil {
		return nil, err
	}
	if have < qty {
		return nil, fail(ProcSellToMarketShip, CodeInsufficientItems, fmt.Sprintf("only %d in hold", have))
	}

	cfg := loadMarketConfig(ctx, tx)
	unit := int64(math.Floor(Float(item["base_value"], 0) * cfg.DirectSellRatio))
	if unit < 1 {
		unit = 1
	}
	total := unit * qty

	if err := moveCargo(ctx, tx, ProcSellToMarketShip, ship, itemID, -qty); err != nil {
		return nil, err
	}
	if err := addCredits(ctx, tx, Text(ship["player_id"]), total); err != nil {
		return nil, err
	}

	return Row{"ok": true, "unit_price": unit, "total": total}, nil
}

// createListing escrows goods and charges the listing fee.
// Args: p_player_id, p_item_id, p_qty, p_price_per_unit.
func createListing(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	qty := Int(args["p_qty"], 0)
	price := Int(args["p_price_per_unit"], 0)
	if qty <= 0 || price <= 0 {
		return nil, fail(ProcCreateListing, CodeInvalid, "quantity and price must be positive")
	}
	playerID := Text(args["p_player_id"])
	itemID := Text(args["p_item_id"])

	player, err := one(ctx, tx, ProcCreateListing, "players", Filter{"id": playerID})
	if err != nil {
		return nil, err
	}
	ship, err := one(ctx, tx, ProcCreateListing, "ships", Filter{"player_id": playerID})
	if err != nil {
		return nil, err
	}
	have, err := stock(ctx, tx, Text(ship["id"]), itemID)
	if err != nil {
		return nil, err
	}
	if have < qty {
		return nil, fail(ProcCreateListing, CodeInsufficientItems, fmt.Sprintf("only %d in hold", have))
	}

	cfg := loadMarketConfig(ctx, tx)
	fee := int64(math.Ceil(float64(qty*price) * cfg.ListingFeePct / 100))
	if Int(player["credits"], 0) < fee {
		return nil, fail(ProcCreateListing, CodeInsufficientCredits, fmt.Sprintf("listing fee is %d credits", fee))
	}

	if err := moveCargo(ctx, tx, ProcCreateListing, ship, itemID, -qty); err != nil {
		return nil, err
	}
	if err := addCredits(ctx, tx, playerID, -fee); err != nil {
		return nil, err
	}
	listing, err := insertRow(ctx, tx, "market_listings", Row{
		"seller_id":      playerID,
		"item_id":        itemID,
		"quantity":       qty,
		"price_per_unit": price,
		"status":         "active",
		"created_at":     now,
	})
	if err != nil {
		return nil, err
	}

	return Row{"ok": true, "listing_id": Text(listing["id"]), "fee": fee}, nil
}

// cancelListing returns escrowed goods to the seller's hold.
// Args: p_player_id, p_listing_id.
func cancelListing(ctx context.Context, tx *sql.Tx, now time.Time, args Row) (Row, error) {
	playerID := Text(args["p_player_id"])
	listing, err := one(ctx, tx, ProcCancelListing, "market_listings", Filter{"id": Text(args["p_listing_id"]), "status": "active"})
	if err != nil {
		return nil, err
	}
	if Text(listing["seller_id"]) != playerID {
		return nil, fail(ProcCancelListing, CodeForbidden, "not your listing")
	}
	ship, err := one(ctx, tx, ProcCancelListing, "ships", Filter{"player_id": playerID})
	if err != nil {
		return nil, err
	}
	qty := Int(listing["quantity"], 0)
	if err := moveCargo(ctx, tx, ProcCancelListing, ship, Text(listing["item_id"]), qty); err != nil {
		return nil, err
	}
	if _, err := updateRows(ctx, tx, "market_listings", Filter{"id": listing["id"]}, Row{"status": "cancelled"}); err != nil {
		return nil, err
	}
	return Row{"ok": true, "returned": qty}, nil
}
