/*
Package client
File: travel.go
Description:
    The travel state machine.

    IDLE       no busy_until
    TRAVELING  busy_until in the future
    ARRIVED    busy_until in the past, not yet finalized

    MoveTo opens a travel window, the travel task polls it and
    FinalizeTravel commits the arrival. Nothing local changes until the
    collaborator has confirmed the write.
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// TravelState is the phase of the player's travel window.
type TravelState int

const (
	Idle TravelState = iota
	Traveling
	Arrived
)

func (t TravelState) String() string {
	switch t {
	case Traveling:
		return "traveling"
	case Arrived:
		return "arrived"
	default:
		return "idle"
	}
}

// StateOf derives the travel phase of p at now.
func StateOf(p game.Player, now time.Time) TravelState {
	if p.BusyUntil == nil {
		return Idle
	}
	if now.Before(*p.BusyUntil) {
		return Traveling
	}
	return Arrived
}

// TravelPlan is a validated move, ready to be sent.
type TravelPlan struct {
	From      game.Point    `json:"from"`
	Requested game.Cell     `json:"requested"`
	To        game.Cell     `json:"to"`
	Distance  float64       `json:"distance"`
	Cost      int           `json:"cost"`
	Duration  time.Duration `json:"duration"`
	BusyUntil time.Time     `json:"busy_until"`
}

// Relocated reports whether the destination was moved off an occupied cell.
func (p TravelPlan) Relocated() bool { return p.Requested != p.To }

// PlanMove validates a move against the cache without touching the collaborator.
func (s *Session) PlanMove(x, y float64) (TravelPlan, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return TravelPlan{}, fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidInput)
	}
	player, ship, err := s.loaded()
	if err != nil {
		return TravelPlan{}, err
	}
	now := s.now()
	if StateOf(player, now) == Traveling {
		return TravelPlan{}, fmt.Errorf("%w: arriving in %s", ErrAlreadyTraveling, player.BusyUntil.Sub(now).Round(time.Second))
	}

	objects, _ := s.Cache.Objects()
	want := game.CellOf(x, y)
	to, ok := game.FindNearestFreeSpot(want, game.OccupiedCells(objects), s.cfg.Travel.MaxRelocateRadius)
	if !ok {
		return TravelPlan{}, fmt.Errorf("%w: (%d, %d)", ErrNoFreeSpot, want.X, want.Y)
	}

	from := player.Position()
	// A move onto the current cell is free and settles on the next poll.
	dist := game.Distance(from, to.Point())
	cost := game.TravelCost(dist, s.cfg.Travel.BatteryCostPerUnit)
	if ship.Battery.Current < float64(cost) {
		return TravelPlan{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBattery, cost, int(ship.Battery.Current))
	}
	dur := game.TravelTime(dist, s.cfg.Travel.TimePerUnitMs)

	return TravelPlan{
		From:      from,
		Requested: want,
		To:        to,
		Distance:  dist,
		Cost:      cost,
		Duration:  dur,
		BusyUntil: now.Add(dur),
	}, nil
}

// MoveTo starts a travel towards (x, y), relocating to the nearest free cell
// when the destination is occupied.
func (s *Session) MoveTo(ctx context.Context, x, y float64) (TravelPlan, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return TravelPlan{}, fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidInput)
	}
	if _, _, err := s.loaded(); err != nil {
		return TravelPlan{}, err
	}
	// Occupancy needs the objects of the system.
	if _, ok := s.Cache.Objects(); !ok {
		if _, err := s.LoadWorld(ctx); err != nil {
			return TravelPlan{}, err
		}
	}
	// A window that closed but was never finalized is settled first.
	if p, _ := s.Cache.Player(); StateOf(p, s.now()) == Arrived {
		if _, err := s.FinalizeTravel(ctx); err != nil {
			return TravelPlan{}, err
		}
	}

	plan, err := s.PlanMove(x, y)
	if err != nil {
		return TravelPlan{}, err
	}
	// start_travel debits the stored charge, so regen still held locally
	// has to land first.
	if err := s.flushBattery(ctx); err != nil {
		return TravelPlan{}, err
	}
	player, ship, _ := s.loaded()

	battery := ship.Battery.Current - float64(plan.Cost)
	if s.cfg.Travel.Atomic {
		out, err := s.backend.Call(ctx, store.ProcStartTravel, store.Row{
			"p_player_id":  player.ID,
			"p_ship_id":    ship.ID,
			"p_cost":       plan.Cost,
			"p_target_x":   float64(plan.To.X),
			"p_target_y":   float64(plan.To.Y),
			"p_busy_until": plan.BusyUntil,
		})
		if err != nil {
			return TravelPlan{}, remoteErr("start travel", err)
		}
		battery = store.Float(out["battery_current"], battery)
	} else if err := s.startTravelTwoStep(ctx, player, ship, plan, battery); err != nil {
		return TravelPlan{}, err
	}

	// Confirmed: mirror the writes locally.
	tx, ty := float64(plan.To.X), float64(plan.To.Y)
	busy := plan.BusyUntil
	player.TargetX, player.TargetY, player.BusyUntil = &tx, &ty, &busy
	ship.Battery.Current = battery
	s.Cache.SetPlayer(player)
	s.Cache.SetShip(ship)
	s.resetBattery(ship)

	if plan.Relocated() {
		s.Info(fmt.Sprintf("destination occupied, relocated to (%d, %d)", plan.To.X, plan.To.Y))
	}
	s.publishTravel(player)
	s.emitBattery(ship, true)
	return plan, nil
}

// startTravelTwoStep debits the battery, then opens the window. When the
// second write fails the debit is put back before the error is returned.
func (s *Session) startTravelTwoStep(ctx context.Context, player game.Player, ship game.Ship, plan TravelPlan, battery float64) error {
	if _, err := s.backend.Update(ctx, "ships", store.Filter{"id": ship.ID}, store.Row{"battery_current": battery}); err != nil {
		return remoteErr("debit battery", err)
	}
	_, err := s.backend.Update(ctx, "players", store.Filter{"id": player.ID}, store.Row{
		"target_x":   float64(plan.To.X),
		"target_y":   float64(plan.To.Y),
		"busy_until": plan.BusyUntil,
	})
	if err == nil {
		return nil
	}
	err = remoteErr("start travel", err)
	if _, cerr := s.backend.Update(ctx, "ships", store.Filter{"id": ship.ID}, store.Row{"battery_current": ship.Battery.Current}); cerr != nil {
		return errors.Join(err, fmt.Errorf("restore battery: %w", cerr))
	}
	return err
}

// TravelTick is the travel task body: report progress, finalize on arrival.
func (s *Session) TravelTick(ctx context.Context) error {
	player, ok := s.Cache.Player()
	if !ok {
		return nil
	}
	switch StateOf(player, s.now()) {
	case Traveling:
		s.publishTravel(player)
	case Arrived:
		if _, err := s.FinalizeTravel(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeTravel commits an arrival. It is a no-op while idle or still in
// flight, so duplicate timer fires are harmless. The stored row is read
// again before anything is written: another instance may already have
// finalized this window or opened a new one. It reports whether this call
// committed the arrival.
func (s *Session) FinalizeTravel(ctx context.Context) (bool, error) {
	player, ok := s.Cache.Player()
	if !ok {
		return false, ErrNotLoaded
	}
	if StateOf(player, s.now()) != Arrived {
		return false, nil
	}

	rows, err := s.backend.Select(ctx, "players", store.Filter{"id": player.ID})
	if err != nil {
		return false, remoteErr("load player", err)
	}
	if len(rows) == 0 {
		return false, ErrNoCharacter
	}
	row := rows[0]

	settled := false
	if busy := store.Time(row["busy_until"]); busy != nil && !s.now().Before(*busy) {
		if settled, err = s.settleArrival(ctx, row); err != nil {
			return false, err
		}
	}
	if settled {
		fresh := decodePlayer(row)
		if t, ok := fresh.Target(); ok {
			fresh.X, fresh.Y = t.X, t.Y
		}
		fresh.BusyUntil, fresh.TargetX, fresh.TargetY = nil, nil, nil
		s.Cache.SetPlayer(fresh)
	}

	// Either way the cache now follows the stored row.
	err = s.Reload(ctx)
	if p, ok := s.Cache.Player(); ok {
		s.publishTravel(p)
	}
	return settled, err
}

// settleArrival clears the travel fields of the window recorded in row and,
// when a target is known, moves the player onto it. An absent target means
// another instance already moved the player: the flags are cleared and the
// position kept. The write only applies while busy_until still holds the
// value read, so a window opened in the meantime is left alone. It reports
// whether the write applied.
func (s *Session) settleArrival(ctx context.Context, row store.Row) (bool, error) {
	fields := store.Row{"busy_until": nil, "target_x": nil, "target_y": nil}
	tx, ty := store.FloatPtr(row["target_x"]), store.FloatPtr(row["target_y"])
	if tx != nil && ty != nil {
		fields["x"], fields["y"] = *tx, *ty
	}
	where := store.Filter{"id": store.Text(row["id"]), "busy_until": row["busy_until"]}
	n, err := s.backend.Update(ctx, "players", where, fields)
	if err != nil {
		return false, remoteErr("finalize travel", err)
	}
	return n > 0, nil
}

func (s *Session) publishTravel(p game.Player) {
	st := TravelStatus{State: StateOf(p, s.now()).String()}
	if p.BusyUntil != nil {
		st.RemainingMs = max(0, p.BusyUntil.Sub(s.now()).Milliseconds())
	}
	if t, ok := p.Target(); ok {
		st.TargetX, st.TargetY = t.X, t.Y
	} else {
		st.TargetX, st.TargetY = p.X, p.Y
	}
	s.emit(EventTravel, st)
}
