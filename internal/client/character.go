/*
Package client
File: character.go
Description:
    Character creation and deletion. A new ship takes its stats from the
    hull preset named in the form.
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/everforgeworks/galaxies-client/internal/store"
)

// CharacterSpec is the character creation form.
type CharacterSpec struct {
	Name     string `json:"name"`
	ShipName string `json:"ship_name"`
	Race     string `json:"race"`
	Hull     string `json:"hull"`
}

// CreateCharacter inserts the player and a ship built from the hull preset,
// then loads them. The player row is removed again if the ship cannot be created.
func (s *Session) CreateCharacter(ctx context.Context, spec CharacterSpec) error {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.ShipName = strings.TrimSpace(spec.ShipName)
	if spec.Name == "" || spec.ShipName == "" || spec.Race == "" || spec.Hull == "" {
		return fmt.Errorf("%w: name, ship name, race and hull are required", ErrInvalidInput)
	}
	hull, ok := s.cfg.Hull(spec.Hull)
	if !ok {
		return fmt.Errorf("%w: unknown hull %q", ErrInvalidInput, spec.Hull)
	}
	if s.auth == nil {
		if err := s.Authenticate(ctx); err != nil {
			return err
		}
	}
	userID := s.auth.UserID

	existing, err := s.backend.Select(ctx, "players", store.Filter{"id": userID})
	if err != nil {
		return remoteErr("create character", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: character already exists", ErrInvalidInput)
	}

	_, err = s.backend.Insert(ctx, "players", store.Row{
		"id":         userID,
		"name":       spec.Name,
		"race":       spec.Race,
		"credits":    0,
		"galaxy":     1,
		"system":     1,
		"x":          0.0,
		"y":          0.0,
		"busy_until": nil,
		"target_x":   nil,
		"target_y":   nil,
	})
	if err != nil {
		return remoteErr("create player", err)
	}

	_, err = s.backend.Insert(ctx, "ships", store.Row{
		"player_id":          userID,
		"ship_name":          spec.ShipName,
		"type":               hull.Key,
		"engine_power":       hull.EnginePower,
		"battery_capacity":   hull.Battery,
		"battery_current":    hull.Battery,
		"battery_regen_rate": hull.Regen,
		"cargo_capacity":     hull.Cargo,
		"cargo_used":         0,
		"shield_capacity":    hull.Shield,
		"shield_current":     hull.Shield,
		"hull_capacity":      hull.Hull,
		"hull_current":       hull.Hull,
		"radar_range":        hull.Radar,
	})
	if err != nil {
		err = remoteErr("create ship", err)
		if _, derr := s.backend.Delete(ctx, "players", store.Filter{"id": userID}); derr != nil {
			return errors.Join(err, fmt.Errorf("remove player: %w", derr))
		}
		return err
	}

	s.InfoLog.Printf("character %s created (%s)", spec.Name, hull.Key)
	return s.Reload(ctx)
}

// DeleteCharacter removes the ship and then the player, and empties the cache.
func (s *Session) DeleteCharacter(ctx context.Context) error {
	player, _, err := s.loaded()
	if err != nil {
		return err
	}
	if _, err := s.backend.Delete(ctx, "ships", store.Filter{"player_id": player.ID}); err != nil {
		return remoteErr("delete ship", err)
	}
	if _, err := s.backend.Delete(ctx, "players", store.Filter{"id": player.ID}); err != nil {
		return remoteErr("delete player", err)
	}
	s.LeaveScene()
	s.Cache.Clear()
	s.InfoLog.Printf("character %s deleted", player.Name)
	return nil
}
