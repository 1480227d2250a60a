package client

import (
	"errors"
	"testing"
	"time"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

func TestLoadWorldMaterialisesEmptySystem(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()

	view, err := h.sess.LoadWorld(h.ctx)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	objects, ok := h.sess.Cache.Objects()
	if !ok || len(objects) < 7 || len(objects) > 11 {
		t.Fatalf("expected a generated system, got %d objects", len(objects))
	}
	if n := h.calls(store.ProcEnsureSpaceObjects); n != 1 {
		t.Fatalf("expected one ensure call, got %d", n)
	}
	if view.Range != 10 {
		t.Errorf("sensor range: got %d", view.Range)
	}
	for _, o := range objects {
		if o.X == 0 && o.Y == 0 {
			t.Errorf("object %s generated on the spawn cell", o.ID)
		}
	}

	if _, err := h.sess.LoadWorld(h.ctx); err != nil {
		t.Fatalf("second LoadWorld: %v", err)
	}
	if n := h.calls(store.ProcEnsureSpaceObjects); n != 1 {
		t.Fatalf("a populated system must not be ensured again, got %d calls", n)
	}
}

func TestDiscoveryOutlivesSensorRange(t *testing.T) {
	h := newHarness(t, defaultPilot())
	near := h.addObject(game.ObjectAsteroid, 8, 0, 1, ptr(40))
	h.addObject(game.ObjectStation, 60, 60, 1, nil)
	h.load()

	view, err := h.sess.LoadWorld(h.ctx)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	if len(view.Visible) != 1 || view.Visible[0].Object.ID != near || len(view.Remembered) != 0 {
		t.Fatalf("unexpected partition: %+v", view)
	}
	first := h.row("player_discovered_objects", store.Filter{"player_id": h.playerID, "object_id": near})

	// Out of range now.
	h.db.Update(h.ctx, "players", store.Filter{"id": h.playerID}, store.Row{"x": 40.0})
	h.clock.Advance(time.Minute)
	if err := h.sess.Reload(h.ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	view, _ = h.sess.Cache.World()
	if len(view.Visible) != 0 {
		t.Fatalf("nothing should be visible from x=40: %+v", view.Visible)
	}
	if len(view.Remembered) != 1 || view.Remembered[0].Object.ID != near || view.Remembered[0].InRange {
		t.Fatalf("object should be remembered: %+v", view.Remembered)
	}
	again := h.row("player_discovered_objects", store.Filter{"player_id": h.playerID, "object_id": near})
	if store.Text(again["last_seen_at"]) != store.Text(first["last_seen_at"]) {
		t.Errorf("an unseen object must keep its last sighting")
	}
}

func TestSightingRefreshesDiscovery(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.addObject(game.ObjectAsteroid, 4, 0, 1, ptr(40))
	h.load()

	if _, err := h.sess.LoadWorld(h.ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	h.clock.Advance(time.Hour)
	if _, err := h.sess.LoadWorld(h.ctx); err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	rows, _ := h.db.Select(h.ctx, "player_discovered_objects", store.Filter{"player_id": h.playerID})
	if len(rows) != 1 {
		t.Fatalf("expected one discovery, got %d", len(rows))
	}
	seen := store.Time(rows[0]["last_seen_at"])
	if seen == nil || !seen.Equal(h.clock.Now()) {
		t.Fatalf("last_seen_at not refreshed: %v", rows[0]["last_seen_at"])
	}
}

func TestWorldEntryGates(t *testing.T) {
	h := newHarness(t, defaultPilot())
	high := h.addObject(game.ObjectDerelict, 1, 0, 3, ptr(50))
	empty := h.addObject(game.ObjectAsteroid, 2, 0, 1, ptr(0))
	open := h.addObject(game.ObjectStation, 3, 0, 1, nil)
	far := h.addObject(game.ObjectAsteroid, 8, 0, 1, ptr(50))
	h.load()

	view, err := h.sess.LoadWorld(h.ctx)
	if err != nil {
		t.Fatalf("LoadWorld: %v", err)
	}
	want := []struct {
		id     string
		ok     bool
		reason string
	}{
		{high, false, ReasonLevel},
		{empty, false, ReasonDepleted},
		{open, true, ""},
		{far, false, ReasonReach},
	}
	if len(view.Visible) != len(want) {
		t.Fatalf("expected %d visible, got %d", len(want), len(view.Visible))
	}
	for i, w := range want {
		e := view.Visible[i]
		if e.Object.ID != w.id || e.Interactable != w.ok || e.Reason != w.reason {
			t.Errorf("entry %d: got %s ok=%v reason=%q, want %s ok=%v reason=%q",
				i, e.Object.ID, e.Interactable, e.Reason, w.id, w.ok, w.reason)
		}
	}
}

func TestLoadWorldBeforeLoad(t *testing.T) {
	h := newHarness(t, defaultPilot())
	if _, err := h.sess.LoadWorld(h.ctx); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestLoadWithoutCharacter(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.db.Delete(h.ctx, "ships", store.Filter{"player_id": h.playerID})
	if err := h.sess.Load(h.ctx); !errors.Is(err, ErrNoCharacter) {
		t.Fatalf("expected ErrNoCharacter, got %v", err)
	}
}

func TestLoadRejectsUnknownToken(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.sess.SetToken("nope")
	if err := h.sess.Load(h.ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
