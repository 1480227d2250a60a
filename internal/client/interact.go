/*
Package client
File: interact.go
Description:
    Interaction with a system object in reach. Planets open the landing
    scene; other objects yield resources and the session reloads.
*/

package client

import (
	"context"
	"fmt"
	"math"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// InteractResult tells the adapter what an interaction did.
type InteractResult struct {
	ObjectID  string     `json:"object_id"`
	Landed    bool       `json:"landed"`
	Remaining float64    `json:"remaining"`
	Scene     *SceneView `json:"scene,omitempty"`
}

// Interact works a system object. Planets open the landing scene; anything
// else yields resources through a direct update followed by a full reload.
func (s *Session) Interact(ctx context.Context, objectID string) (InteractResult, error) {
	player, _, err := s.loaded()
	if err != nil {
		return InteractResult{}, err
	}
	obj, ok := s.findObject(objectID)
	if !ok {
		return InteractResult{}, fmt.Errorf("%w: unknown object %q", ErrInvalidInput, objectID)
	}

	if !game.CanInteract(player, obj) {
		return InteractResult{}, fmt.Errorf("%w: %.1f away", ErrOutOfRange, game.Distance(player.Position(), obj.Position()))
	}
	if player.Level < obj.Level {
		return InteractResult{}, fmt.Errorf("%w: needs level %d", ErrLevelTooLow, obj.Level)
	}
	if obj.Remaining != nil && *obj.Remaining <= 0 {
		return InteractResult{}, ErrDepleted
	}

	if obj.Type == game.ObjectPlanet {
		view, err := s.EnterScene(ctx, obj.ID)
		if err != nil {
			return InteractResult{}, err
		}
		return InteractResult{ObjectID: obj.ID, Landed: true, Scene: &view}, nil
	}

	var current float64
	if obj.Remaining != nil {
		current = *obj.Remaining
	}
	left := math.Max(0, current-s.cfg.World.InteractYield)
	if _, err := s.backend.Update(ctx, "space_objects", store.Filter{"id": obj.ID}, store.Row{"resources_remaining": left}); err != nil {
		return InteractResult{}, remoteErr("interact", err)
	}
	s.Info(fmt.Sprintf("%s worked, %.0f left", obj.Name, left))

	if err := s.Reload(ctx); err != nil {
		return InteractResult{}, err
	}
	return InteractResult{ObjectID: obj.ID, Remaining: left}, nil
}

func (s *Session) findObject(id string) (game.SpaceObject, bool) {
	objects, _ := s.Cache.Objects()
	for _, o := range objects {
		if o.ID == id {
			return o, true
		}
	}
	return game.SpaceObject{}, false
}
