/*
Package client
File: cache.go
Description:
    The entity state cache: the last known player, ship, system objects and
    landing scene. Only the loop goroutine writes here; the lock exists so
    the adapter can take render snapshots from other goroutines.

    Accessors copy in and out. Nobody outside the cache holds a pointer
    into it.
*/

package client

import (
	"sync"

	"github.com/everforgeworks/galaxies-client/internal/game"
)

// Cache holds one snapshot per entity for the lifetime of a session.
type Cache struct {
	DataLock sync.RWMutex

	player  *game.Player
	ship    *game.Ship
	objects []game.SpaceObject // nil until the world was loaded once
	world   *WorldView
	scene   *SceneView
}

// Player returns a copy of the cached player.
func (c *Cache) Player() (game.Player, bool) {
	c.DataLock.RLock()
	defer c.DataLock.RUnlock()
	if c.player == nil {
		return game.Player{}, false
	}
	return copyPlayer(*c.player), true
}

// SetPlayer replaces the cached player.
func (c *Cache) SetPlayer(p game.Player) {
	p = copyPlayer(p)
	c.DataLock.Lock()
	c.player = &p
	c.DataLock.Unlock()
}

// Ship returns a copy of the cached ship.
func (c *Cache) Ship() (game.Ship, bool) {
	c.DataLock.RLock()
	defer c.DataLock.RUnlock()
	if c.ship == nil {
		return game.Ship{}, false
	}
	return copyShip(*c.ship), true
}

// SetShip replaces the cached ship.
func (c *Cache) SetShip(s game.Ship) {
	s = copyShip(s)
	c.DataLock.Lock()
	c.ship = &s
	c.DataLock.Unlock()
}

// Objects returns a copy of the cached system objects.
// ok is false when the world has never been loaded.
func (c *Cache) Objects() ([]game.SpaceObject, bool) {
	c.DataLock.RLock()
	defer c.DataLock.RUnlock()
	if c.objects == nil {
		return nil, false
	}
	out := make([]game.SpaceObject, len(c.objects))
	for i, o := range c.objects {
		out[i] = copyObject(o)
	}
	return out, true
}

// SetObjects replaces the cached system objects.
func (c *Cache) SetObjects(objs []game.SpaceObject) {
	cp := make([]game.SpaceObject, len(objs))
	for i, o := range objs {
		cp[i] = copyObject(o)
	}
	c.DataLock.Lock()
	c.objects = cp
	c.DataLock.Unlock()
}

// World returns the last published world partition.
func (c *Cache) World() (WorldView, bool) {
	c.DataLock.RLock()
	defer c.DataLock.RUnlock()
	if c.world == nil {
		return WorldView{}, false
	}
	return c.world.clone(), true
}

func (c *Cache) setWorld(w WorldView) {
	w = w.clone()
	c.DataLock.Lock()
	c.world = &w
	c.DataLock.Unlock()
}

// Scene returns the last published landing scene.
func (c *Cache) Scene() (SceneView, bool) {
	c.DataLock.RLock()
	defer c.DataLock.RUnlock()
	if c.scene == nil {
		return SceneView{}, false
	}
	return c.scene.clone(), true
}

func (c *Cache) setScene(v *SceneView) {
	if v != nil {
		cp := v.clone()
		v = &cp
	}
	c.DataLock.Lock()
	c.scene = v
	c.DataLock.Unlock()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.DataLock.Lock()
	c.player, c.ship, c.objects, c.world, c.scene = nil, nil, nil, nil, nil
	c.DataLock.Unlock()
}

func copyPlayer(p game.Player) game.Player {
	if p.BusyUntil != nil {
		t := *p.BusyUntil
		p.BusyUntil = &t
	}
	if p.TargetX != nil {
		x := *p.TargetX
		p.TargetX = &x
	}
	if p.TargetY != nil {
		y := *p.TargetY
		p.TargetY = &y
	}
	return p
}

func copyShip(s game.Ship) game.Ship {
	if s.RadarBoostTill != nil {
		t := *s.RadarBoostTill
		s.RadarBoostTill = &t
	}
	return s
}

func copyObject(o game.SpaceObject) game.SpaceObject {
	if o.Remaining != nil {
		r := *o.Remaining
		o.Remaining = &r
	}
	return o
}
