/*
Package client
File: world.go
Description:
    Loads the objects of the player's system and splits them into what the
    sensors see now and what the player remembers from earlier sightings.
    Every sighting refreshes a discovery record; records are never removed,
    so an object stays remembered after it leaves sensor range.
*/

package client

import (
	"context"
	"sort"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// Reasons an interaction is disabled.
const (
	ReasonLevel    = "level too low"
	ReasonReach    = "out of reach"
	ReasonDepleted = "depleted"
)

// WorldEntry is one object as the player perceives it.
type WorldEntry struct {
	Object       game.SpaceObject `json:"object" msgpack:"object"`
	Distance     float64          `json:"distance" msgpack:"distance"`
	InRange      bool             `json:"in_range" msgpack:"in_range"` // seen by sensors now, as opposed to remembered
	Interactable bool             `json:"interactable" msgpack:"interactable"`
	Reason       string           `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// WorldView is the payload of EventWorld.
type WorldView struct {
	System     int64        `json:"system" msgpack:"system"`
	Range      int          `json:"sensor_range" msgpack:"sensor_range"`
	Visible    []WorldEntry `json:"visible" msgpack:"visible"`
	Remembered []WorldEntry `json:"remembered" msgpack:"remembered"`
}

func (w WorldView) clone() WorldView {
	cp := w
	cp.Visible = cloneEntries(w.Visible)
	cp.Remembered = cloneEntries(w.Remembered)
	return cp
}

func cloneEntries(in []WorldEntry) []WorldEntry {
	if in == nil {
		return nil
	}
	out := make([]WorldEntry, len(in))
	for i, e := range in {
		e.Object = copyObject(e.Object)
		out[i] = e
	}
	return out
}

// LoadWorld refreshes the system objects and publishes the partition.
func (s *Session) LoadWorld(ctx context.Context) (WorldView, error) {
	player, ship, err := s.loaded()
	if err != nil {
		return WorldView{}, err
	}

	objects, err := s.fetchSystem(ctx, player.System)
	if err != nil {
		return WorldView{}, err
	}
	s.Cache.SetObjects(objects)

	now := s.now()
	view := WorldView{System: player.System, Range: game.EffectiveSensorRange(ship, now)}

	visibleIDs := make(map[string]bool)
	var sightings []store.Row
	for _, o := range objects {
		if !game.CanSee(player, ship, o, now) {
			continue
		}
		visibleIDs[o.ID] = true
		view.Visible = append(view.Visible, s.entry(player, o, true))
		sightings = append(sightings, store.Row{"player_id": player.ID, "object_id": o.ID, "last_seen_at": now})
	}

	if len(sightings) > 0 {
		if err := s.backend.Upsert(ctx, "player_discovered_objects", sightings, []string{"player_id", "object_id"}); err != nil {
			// The view is still correct without the records.
			s.ErrorLog.Printf("save discoveries: %v", err)
		}
	}

	remembered, err := s.fetchRemembered(ctx, player, visibleIDs)
	if err != nil {
		s.ErrorLog.Printf("load discoveries: %v", err)
	}
	view.Remembered = remembered

	sortEntries(view.Visible)
	sortEntries(view.Remembered)
	s.Cache.setWorld(view)
	s.emit(EventWorld, view.clone())
	return view, nil
}

// fetchSystem selects the objects of a system, asking the collaborator to
// materialise it once when nothing exists yet.
func (s *Session) fetchSystem(ctx context.Context, system int64) ([]game.SpaceObject, error) {
	rows, err := s.backend.Select(ctx, "space_objects", store.Filter{"system_id": system})
	if err != nil {
		return nil, remoteErr("load system", err)
	}
	if len(rows) == 0 {
		if _, err := s.backend.Call(ctx, store.ProcEnsureSpaceObjects, store.Row{"p_system_id": system}); err != nil {
			return nil, remoteErr("ensure system", err)
		}
		rows, err = s.backend.Select(ctx, "space_objects", store.Filter{"system_id": system})
		if err != nil {
			return nil, remoteErr("load system", err)
		}
	}

	objects := make([]game.SpaceObject, 0, len(rows))
	for _, r := range rows {
		objects = append(objects, decodeObject(r))
	}
	return objects, nil
}

func (s *Session) fetchRemembered(ctx context.Context, player game.Player, visible map[string]bool) ([]WorldEntry, error) {
	rows, err := s.backend.Select(ctx, "player_discovered_objects", store.Filter{"player_id": player.ID})
	if err != nil {
		return nil, err
	}
	var ids []any
	for _, r := range rows {
		if id := store.Text(r["object_id"]); !visible[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	objs, err := s.backend.SelectIn(ctx, "space_objects", "id", ids, store.Filter{"system_id": player.System})
	if err != nil {
		return nil, err
	}
	out := make([]WorldEntry, 0, len(objs))
	for _, r := range objs {
		out = append(out, s.entry(player, decodeObject(r), false))
	}
	return out, nil
}

func (s *Session) entry(player game.Player, o game.SpaceObject, inRange bool) WorldEntry {
	e := WorldEntry{
		Object:   o,
		Distance: game.Distance(player.Position(), o.Position()),
		InRange:  inRange,
	}
	switch {
	case player.Level < o.Level:
		e.Reason = ReasonLevel
	case !game.CanInteract(player, o):
		e.Reason = ReasonReach
	case o.Remaining != nil && *o.Remaining <= 0:
		e.Reason = ReasonDepleted
	default:
		e.Interactable = true
	}
	return e
}

func sortEntries(es []WorldEntry) {
	sort.SliceStable(es, func(i, j int) bool { return es[i].Distance < es[j].Distance })
}
