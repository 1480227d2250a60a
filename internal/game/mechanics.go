/*
Package game
File: mechanics.go
Description:
    Contains the geometry and balance rules the client uses to predict
    what the collaborator will accept: distances, sensor range, travel
    cost and duration, and the harvest rate staircase.
    Everything here is pure and safe to call from any goroutine.
*/

package game

import (
	"math"
	"time"
)

// InteractRadius is the fixed reach for interacting with a system object.
const InteractRadius = 5.0

// Distance computes the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// EffectiveSensorRange returns the radar range after upgrades and damage.
// The boost multiplier is applied before the damage multiplier.
func EffectiveSensorRange(ship Ship, now time.Time) int {
	r := ship.RadarRange + ship.RadarBonusFlat

	if ship.RadarBoostTill != nil && ship.RadarBoostTill.After(now) {
		r *= 1.25
	}

	// Damaged hulls degrade the sensors.
	if ship.Hull.Fraction() < 0.5 {
		r *= 0.9
	}

	return int(math.Max(0, math.Floor(r)))
}

// CanSee reports whether the object is inside the ship's effective sensor range.
func CanSee(player Player, ship Ship, obj SpaceObject, now time.Time) bool {
	return Distance(player.Position(), obj.Position()) <= float64(EffectiveSensorRange(ship, now))
}

// CanInteract reports whether the object is within reach, independent of sensors.
func CanInteract(player Player, obj SpaceObject) bool {
	return Distance(player.Position(), obj.Position()) <= InteractRadius
}

// TravelCost is the battery charge needed to cover dist.
func TravelCost(dist, costPerUnit float64) int {
	return int(math.Ceil(dist * costPerUnit))
}

// TravelTime is linear in distance; there is no acceleration model.
func TravelTime(dist, msPerUnit float64) time.Duration {
	return time.Duration(math.Ceil(dist*msPerUnit)) * time.Millisecond
}

// RateStep is one tread of the harvest staircase: any distance up to
// MaxDistance (inclusive) yields Rate units per second.
type RateStep struct {
	MaxDistance int     `yaml:"max_distance" json:"max_distance"`
	Rate        float64 `yaml:"rate" json:"rate"`
}

// DefaultHarvestSteps is the canonical staircase: 18/s on the node, 6/s within 5,
// 2/s within 12, nothing beyond.
var DefaultHarvestSteps = []RateStep{
	{MaxDistance: 0, Rate: 18},
	{MaxDistance: 5, Rate: 6},
	{MaxDistance: 12, Rate: 2},
}

// HarvestRate applies the default staircase.
func HarvestRate(d int) float64 {
	return HarvestRateSteps(DefaultHarvestSteps, d)
}

// HarvestRateSteps returns the rate of the first step whose MaxDistance covers d.
// Steps must be sorted by MaxDistance. A return of 0 means "not eligible".
func HarvestRateSteps(steps []RateStep, d int) float64 {
	if d < 0 {
		d = -d
	}
	for _, s := range steps {
		if d <= s.MaxDistance {
			return s.Rate
		}
	}
	return 0
}

// SurfaceTravelTime is how long the landing party takes to walk d units.
func SurfaceTravelTime(d int) time.Duration {
	if d < 0 {
		d = -d
	}
	t := time.Duration(d) * 60 * time.Millisecond
	if t < 400*time.Millisecond {
		return 400 * time.Millisecond
	}
	return t
}
