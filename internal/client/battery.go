/*
Package client
File: battery.go
Description:
    Battery regeneration. Each tick advances the charge locally, keeping the
    fractional part, and writes it back at most once per persist interval.
    A failed write is logged; the next tick that gets a token retries.
*/

package client

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

type batteryState struct {
	level     float64 // local charge, fractional
	shown     int     // last displayed integer
	persisted float64 // last value the collaborator confirmed
	primed    bool
	limiter   *rate.Limiter
}

func (s *Session) resetBatteryLimiter() {
	every := s.cfg.Battery.PersistEvery
	if every <= 0 {
		every = game.DefaultConfig().Battery.PersistEvery
	}
	s.battery.limiter = rate.NewLimiter(rate.Every(every), 1)
}

// resetBattery adopts a confirmed ship value as the regen baseline.
func (s *Session) resetBattery(ship game.Ship) {
	s.battery.level = ship.Battery.Current
	s.battery.persisted = ship.Battery.Current
	s.battery.shown = int(math.Floor(ship.Battery.Current))
	s.battery.primed = true
}

// BatteryTick is the battery task body.
func (s *Session) BatteryTick(ctx context.Context) error {
	ship, ok := s.Cache.Ship()
	if !ok || !s.battery.primed {
		return nil
	}
	capacity := ship.Battery.Capacity
	if capacity <= 0 {
		return nil
	}

	regen := ship.RegenRate
	if regen <= 0 {
		regen = s.cfg.Battery.DefaultRate
	}
	prev := s.battery.level
	next := math.Max(0, math.Min(prev+regen*s.cfg.Battery.Tick.Seconds(), capacity))
	s.battery.level = next

	ship.Battery.Current = next
	s.Cache.SetShip(ship)

	shown := int(math.Floor(next))
	if shown != s.battery.shown || (next == capacity && prev < capacity) {
		s.battery.shown = shown
		s.emitBattery(ship, false)
	}

	if next != s.battery.persisted && s.battery.limiter.AllowN(s.now(), 1) {
		s.persistBattery(ctx, ship.ID, next)
	}
	return nil
}

// flushBattery writes any unpersisted regen, bypassing the throttle.
func (s *Session) flushBattery(ctx context.Context) error {
	ship, ok := s.Cache.Ship()
	if !ok || !s.battery.primed || s.battery.level == s.battery.persisted {
		return nil
	}
	return s.persistBattery(ctx, ship.ID, s.battery.level)
}

func (s *Session) persistBattery(ctx context.Context, shipID string, v float64) error {
	if _, err := s.backend.Update(ctx, "ships", store.Filter{"id": shipID}, store.Row{"battery_current": v}); err != nil {
		s.ErrorLog.Printf("persist battery: %v", err)
		return remoteErr("persist battery", err)
	}
	s.battery.persisted = v
	return nil
}

func (s *Session) emitBattery(ship game.Ship, force bool) {
	g := BatteryGauge{
		Current:  int(math.Floor(ship.Battery.Current)),
		Capacity: int(math.Floor(ship.Battery.Capacity)),
	}
	if ship.Battery.Capacity > 0 {
		g.Percent = int(math.Floor(100 * ship.Battery.Current / ship.Battery.Capacity))
	}
	if force {
		s.battery.shown = g.Current
	}
	s.emit(EventBattery, g)
}
