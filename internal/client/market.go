/*
Package client
File: market.go
Description:
    Market calls: listing reads, inventory, buy, sell, create and cancel.
    Input is checked locally, the procedure does the trade, and the
    affected rows are read back afterwards.
*/

package client

import (
	"context"
	"fmt"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// TradeResult is what a market procedure reported.
type TradeResult struct {
	Quantity  int64  `json:"quantity,omitempty"`
	Total     int64  `json:"total,omitempty"`
	UnitPrice int64  `json:"unit_price,omitempty"`
	Fee       int64  `json:"fee,omitempty"`
	ListingID string `json:"listing_id,omitempty"`
}

// Listings returns the active offers, optionally for one item.
func (s *Session) Listings(ctx context.Context, itemID string) ([]game.Listing, error) {
	where := store.Filter{"status": game.ListingActive}
	if itemID != "" {
		where["item_id"] = itemID
	}
	return s.listings(ctx, where)
}

// MyListings returns the player's own offers in every status.
func (s *Session) MyListings(ctx context.Context) ([]game.Listing, error) {
	player, _, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return s.listings(ctx, store.Filter{"seller_id": player.ID})
}

func (s *Session) listings(ctx context.Context, where store.Filter) ([]game.Listing, error) {
	rows, err := s.backend.Select(ctx, "market_listings", where)
	if err != nil {
		return nil, remoteErr("load listings", err)
	}
	out := make([]game.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeListing(r))
	}
	items, err := loadItems(ctx, s, out, func(l game.Listing) string { return l.ItemID })
	if err != nil {
		return nil, err
	}
	for i := range out {
		if it, ok := items[out[i].ItemID]; ok {
			out[i].Item = &it
		}
	}
	return out, nil
}

// Inventory returns the ship's hold.
func (s *Session) Inventory(ctx context.Context) ([]game.InventoryLine, error) {
	_, ship, err := s.loaded()
	if err != nil {
		return nil, err
	}
	rows, err := s.backend.Select(ctx, "ship_inventory", store.Filter{"ship_id": ship.ID})
	if err != nil {
		return nil, remoteErr("load inventory", err)
	}
	out := make([]game.InventoryLine, 0, len(rows))
	for _, r := range rows {
		if line := decodeInventory(r); line.Quantity > 0 {
			out = append(out, line)
		}
	}
	items, err := loadItems(ctx, s, out, func(l game.InventoryLine) string { return l.ItemID })
	if err != nil {
		return nil, err
	}
	for i := range out {
		if it, ok := items[out[i].ItemID]; ok {
			out[i].Item = &it
		}
	}
	return out, nil
}

// loadItems fetches the catalog entries referenced by rows.
func loadItems[T any](ctx context.Context, s *Session, rows []T, key func(T) string) (map[string]game.Item, error) {
	var ids []any
	seen := map[string]bool{}
	for _, r := range rows {
		if id := key(r); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	out := make(map[string]game.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := s.backend.SelectIn(ctx, "items", "id", ids, nil)
	if err != nil {
		return nil, remoteErr("load items", err)
	}
	for _, r := range found {
		it := decodeItem(r)
		out[it.ID] = it
	}
	return out, nil
}

// Buy fills qty units of another player's listing.
func (s *Session) Buy(ctx context.Context, listingID string, qty int) (TradeResult, error) {
	if listingID == "" || qty <= 0 {
		return TradeResult{}, fmt.Errorf("%w: listing and a positive quantity are required", ErrInvalidInput)
	}
	player, _, err := s.loaded()
	if err != nil {
		return TradeResult{}, err
	}
	out, err := s.backend.Call(ctx, store.ProcBuyListing, store.Row{
		"p_player_id":  player.ID,
		"p_listing_id": listingID,
		"p_qty":        qty,
	})
	if err != nil {
		return TradeResult{}, remoteErr("buy", err)
	}
	res := TradeResult{Quantity: store.Int(out["quantity"], int64(qty)), Total: store.Int(out["total_price"], 0)}
	s.Info(fmt.Sprintf("bought %d for %d cr", res.Quantity, res.Total))
	return res, s.refresh(ctx)
}

// SellToMarket sells straight to the market ship.
func (s *Session) SellToMarket(ctx context.Context, itemID string, qty int) (TradeResult, error) {
	if itemID == "" || qty <= 0 {
		return TradeResult{}, fmt.Errorf("%w: item and a positive quantity are required", ErrInvalidInput)
	}
	_, ship, err := s.loaded()
	if err != nil {
		return TradeResult{}, err
	}
	out, err := s.backend.Call(ctx, store.ProcSellToMarketShip, store.Row{
		"p_ship_id": ship.ID,
		"p_item_id": itemID,
		"p_qty":     qty,
	})
	if err != nil {
		return TradeResult{}, remoteErr("sell", err)
	}
	res := TradeResult{Quantity: int64(qty), Total: store.Int(out["total"], 0), UnitPrice: store.Int(out["unit_price"], 0)}
	s.Info(fmt.Sprintf("sold %d for %d cr (%d/u)", qty, res.Total, res.UnitPrice))
	return res, s.refresh(ctx)
}

// CreateListing offers qty units at price per unit. The fee is charged up front.
func (s *Session) CreateListing(ctx context.Context, itemID string, qty int, price int64) (TradeResult, error) {
	if itemID == "" || qty <= 0 || price <= 0 {
		return TradeResult{}, fmt.Errorf("%w: item, quantity and price are required", ErrInvalidInput)
	}
	player, _, err := s.loaded()
	if err != nil {
		return TradeResult{}, err
	}
	out, err := s.backend.Call(ctx, store.ProcCreateListing, store.Row{
		"p_player_id":      player.ID,
		"p_item_id":        itemID,
		"p_qty":            qty,
		"p_price_per_unit": price,
	})
	if err != nil {
		return TradeResult{}, remoteErr("create listing", err)
	}
	res := TradeResult{Quantity: int64(qty), ListingID: store.Text(out["listing_id"]), Fee: store.Int(out["fee"], 0)}
	s.Info(fmt.Sprintf("listing created, fee %d cr", res.Fee))
	return res, s.refresh(ctx)
}

// CancelListing withdraws one of the player's offers.
func (s *Session) CancelListing(ctx context.Context, listingID string) error {
	if listingID == "" {
		return fmt.Errorf("%w: listing is required", ErrInvalidInput)
	}
	player, _, err := s.loaded()
	if err != nil {
		return err
	}
	if _, err := s.backend.Call(ctx, store.ProcCancelListing, store.Row{
		"p_player_id":  player.ID,
		"p_listing_id": listingID,
	}); err != nil {
		return remoteErr("cancel listing", err)
	}
	s.Info("listing cancelled")
	return s.refresh(ctx)
}
