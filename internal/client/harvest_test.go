package client

import (
	"errors"
	"testing"
	"time"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// landing seeds a planet and returns it with the party's landing spot.
func (h *harness) landing() (planet string, x int) {
	h.t.Helper()
	planet = h.addObject(game.ObjectPlanet, 2, 2, 1, nil)
	return planet, LandingX(h.playerID, planet, h.cfg.Harvest.SurfaceMaxX)
}

// away returns a surface position d units from x that stays on the surface.
func (h *harness) away(x, d int) int {
	if x+d <= h.cfg.Harvest.SurfaceMaxX {
		return x + d
	}
	return x - d
}

func (h *harness) enter(planet string) SceneView {
	h.t.Helper()
	view, err := h.sess.EnterScene(h.ctx, planet)
	if err != nil {
		h.t.Fatalf("EnterScene: %v", err)
	}
	return view
}

func (h *harness) frame() {
	h.t.Helper()
	if err := h.sess.SceneTick(h.ctx); err != nil {
		h.t.Fatalf("SceneTick: %v", err)
	}
}

func (h *harness) nodeRemaining(id string) float64 {
	return store.Float(h.row("object_nodes", store.Filter{"id": id})["remaining"], -1)
}

func TestLandingSpotIsStable(t *testing.T) {
	a := LandingX("pilot-1", "planet-9", 500)
	if b := LandingX("pilot-1", "planet-9", 500); a != b {
		t.Fatalf("landing moved: %d vs %d", a, b)
	}
	if a < 0 || a > 500 {
		t.Fatalf("landing off the surface: %d", a)
	}
	if LandingX("pilot-1", "planet-9", 0) != 0 {
		t.Fatalf("an empty surface lands on 0")
	}
}

func TestHandNodeIsPickedUpOnce(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	node := h.addNode(planet, game.NodeHand, x, 1, "scrap_metal")

	view := h.enter(planet)
	if len(view.Nodes) != 1 || view.Nodes[0].Item == nil || view.Nodes[0].Item.Name != "Scrap Metal" {
		t.Fatalf("expected the hand node with its item, got %+v", view.Nodes)
	}

	if err := h.sess.StartHarvest(h.ctx, node); err != nil {
		t.Fatalf("StartHarvest: %v", err)
	}
	if h.sess.scene.Harvest != nil {
		t.Fatalf("a hand node must not open a stream")
	}
	if got := h.nodeRemaining(node); got != 0 {
		t.Fatalf("node remaining: %v", got)
	}
	scene, _ := h.sess.Cache.Scene()
	if len(scene.Nodes) != 0 || scene.Harvesting != "" {
		t.Fatalf("empty node should vanish from the scene: %+v", scene)
	}

	h.clock.Advance(time.Second)
	h.frame()
	if n := h.calls(store.ProcCollectNode); n != 1 {
		t.Fatalf("expected exactly one collect, got %d", n)
	}
	if err := h.sess.StartHarvest(h.ctx, node); !errors.Is(err, ErrNodeEmpty) {
		t.Fatalf("expected ErrNodeEmpty, got %v", err)
	}
	ship, _ := h.sess.Cache.Ship()
	if ship.Cargo.Current != 1 {
		t.Fatalf("cargo: %v", ship.Cargo.Current)
	}
}

func TestVeinCollectIsThrottled(t *testing.T) {
	pl := defaultPilot()
	pl.CargoCap = 100
	h := newHarness(t, pl)
	h.load()
	planet, x := h.landing()
	node := h.addNode(planet, game.NodeVein, x, 100, "iron_ore")
	h.enter(planet)

	if err := h.sess.StartHarvest(h.ctx, node); err != nil {
		t.Fatalf("StartHarvest: %v", err)
	}

	// First window is priced at the minimum: floor(18 * 0.7).
	h.clock.Advance(50 * time.Millisecond)
	h.frame()
	if got := h.nodeRemaining(node); got != 88 {
		t.Fatalf("after first collect: %v", got)
	}

	h.clock.Advance(100 * time.Millisecond)
	h.frame()
	if n := h.calls(store.ProcCollectNode); n != 1 {
		t.Fatalf("collect inside the interval: %d calls", n)
	}

	// 800ms since the last collect: floor(18 * 0.8).
	h.clock.Advance(700 * time.Millisecond)
	h.frame()
	if got := h.nodeRemaining(node); got != 74 {
		t.Fatalf("after second collect: %v", got)
	}
	scene, _ := h.sess.Cache.Scene()
	if scene.Harvesting != node || scene.Rate != 18 || scene.Nodes[0].Remaining != 74 {
		t.Fatalf("scene out of date: %+v", scene)
	}
	ship, _ := h.sess.Cache.Ship()
	if ship.Cargo.Current != 26 {
		t.Fatalf("cargo: %v", ship.Cargo.Current)
	}
	inv, err := h.sess.Inventory(h.ctx)
	if err != nil || len(inv) != 1 || inv[0].Quantity != 26 || inv[0].Item == nil {
		t.Fatalf("inventory: %+v %v", inv, err)
	}
}

func TestMovingCancelsHarvest(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	node := h.addNode(planet, game.NodeVein, x, 50, "iron_ore")
	h.enter(planet)

	if err := h.sess.StartHarvest(h.ctx, node); err != nil {
		t.Fatalf("StartHarvest: %v", err)
	}
	if err := h.sess.MoveToX(h.away(x, 5)); err != nil {
		t.Fatalf("MoveToX: %v", err)
	}
	h.clock.Advance(100 * time.Millisecond)
	h.frame()
	if h.sess.scene.Harvest != nil {
		t.Fatalf("walking must close the stream")
	}
	if !h.events.sawNotice("moving") {
		t.Errorf("expected a stop notice, got %v", h.events.notices())
	}
	if n := h.calls(store.ProcCollectNode); n != 0 {
		t.Fatalf("no collect expected while walking, got %d", n)
	}
	if err := h.sess.StartHarvest(h.ctx, node); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("starting mid-walk: got %v", err)
	}
}

func TestHarvestTooFar(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	node := h.addNode(planet, game.NodeVein, h.away(x, 13), 50, "iron_ore")
	h.enter(planet)

	if err := h.sess.Scan(h.ctx, true); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := h.sess.StartHarvest(h.ctx, node); !errors.Is(err, ErrTooFar) {
		t.Fatalf("expected ErrTooFar, got %v", err)
	}
}

func TestVeinNeedsMiningGear(t *testing.T) {
	pl := defaultPilot()
	pl.MiningGear = false
	h := newHarness(t, pl)
	h.load()
	planet, x := h.landing()
	vein := h.addNode(planet, game.NodeVein, x, 50, "iron_ore")
	h.addNode(planet, game.NodeGas, h.away(x, 2), 50, "helium3")

	view := h.enter(planet)
	if len(view.Nodes) != 1 || view.Nodes[0].Kind != game.NodeGas {
		t.Fatalf("veins must be hidden without gear: %+v", view.Nodes)
	}

	if err := h.sess.StartHarvest(h.ctx, vein); !errors.Is(err, ErrNoMiningGear) {
		t.Fatalf("expected ErrNoMiningGear for a hidden vein, got %v", err)
	}
	if h.sess.scene.Harvest != nil {
		t.Fatalf("no harvest should open without gear")
	}
	if err := h.sess.StartHarvest(h.ctx, "no-such-node"); !errors.Is(err, ErrNodeEmpty) {
		t.Fatalf("unknown node: expected ErrNodeEmpty, got %v", err)
	}
}

func TestCargoFullStopsHarvest(t *testing.T) {
	pl := defaultPilot()
	pl.CargoUsed = 10
	h := newHarness(t, pl)
	h.load()
	planet, x := h.landing()
	node := h.addNode(planet, game.NodeVein, x, 50, "iron_ore")
	h.enter(planet)

	if err := h.sess.StartHarvest(h.ctx, node); err != nil {
		t.Fatalf("StartHarvest: %v", err)
	}
	h.clock.Advance(50 * time.Millisecond)
	h.frame()
	if h.sess.scene.Harvest != nil {
		t.Fatalf("full hold must close the stream")
	}
	if !h.events.sawNotice("cargo full") {
		t.Errorf("expected a cargo notice, got %v", h.events.notices())
	}
	if got := h.nodeRemaining(node); got != 50 {
		t.Fatalf("refused collect changed the node: %v", got)
	}
}

func TestWideScanExpires(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	h.addNode(planet, game.NodeGas, h.away(x, 20), 50, "helium3")

	if view := h.enter(planet); len(view.Nodes) != 0 {
		t.Fatalf("node beyond vision range: %+v", view.Nodes)
	}
	if err := h.sess.Scan(h.ctx, true); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(h.sess.scene.Nodes) != 1 || h.sess.scene.Range != 25 {
		t.Fatalf("wide scan missed the node: %+v", h.sess.scene.Nodes)
	}

	h.clock.Advance(11 * time.Second)
	h.frame()
	if h.sess.scene.Range != 25 {
		t.Fatalf("scan expired early")
	}
	h.clock.Advance(time.Second)
	h.frame()
	scene, _ := h.sess.Cache.Scene()
	if scene.WideScan || scene.Range != 10 || len(scene.Nodes) != 0 {
		t.Fatalf("scan should have expired: %+v", scene)
	}
}

func TestRadarPointsAtNearestNode(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	target := h.away(x, 20)
	node := h.addNode(planet, game.NodeGas, target, 50, "helium3")
	h.enter(planet)

	reading, err := h.sess.Radar(h.ctx)
	if err != nil {
		t.Fatalf("Radar: %v", err)
	}
	dir := 1
	if target < x {
		dir = -1
	}
	if !reading.Found || reading.NodeID != node || reading.Distance != 20 || reading.Direction != dir {
		t.Fatalf("unexpected reading: %+v", reading)
	}
}

func TestSurfaceWalkInterpolates(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, x := h.landing()
	h.enter(planet)

	to := h.away(x, 10)
	if err := h.sess.MoveToX(to); err != nil {
		t.Fatalf("MoveToX: %v", err)
	}
	h.clock.Advance(300 * time.Millisecond)
	h.frame()
	if got, want := h.sess.scene.X, (x+to)/2; got != want {
		t.Fatalf("halfway: got %d, want %d", got, want)
	}
	h.clock.Advance(300 * time.Millisecond)
	h.frame()
	if h.sess.scene.X != to || h.sess.scene.Move != nil {
		t.Fatalf("walk should be complete at %d: %+v", to, h.sess.scene)
	}

	if err := h.sess.MoveToX(to); err != nil || !h.events.sawNotice("already there") {
		t.Fatalf("zero-length walk: %v", err)
	}
}

func TestLeaveScene(t *testing.T) {
	h := newHarness(t, defaultPilot())
	h.load()
	planet, _ := h.landing()
	h.enter(planet)

	h.sess.LeaveScene()
	if _, ok := h.sess.Cache.Scene(); ok {
		t.Fatalf("scene still cached")
	}
	if err := h.sess.StartHarvest(h.ctx, "any"); !errors.Is(err, ErrNoScene) {
		t.Fatalf("expected ErrNoScene, got %v", err)
	}
	if _, err := h.sess.EnterScene(h.ctx, h.addObject(game.ObjectStation, 9, 9, 1, nil)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("a station is not a landing site: %v", err)
	}
}
