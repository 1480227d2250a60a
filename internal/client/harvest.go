/*
Package client
File: harvest.go
Description:
    The landing scene: a single surface axis on a planet where the landing
    party walks between harvest nodes and works them.

    The frame task advances walking, checks that an open harvest is still
    eligible and sends collect_node at most once per collect interval,
    asking for what the rate earned since the previous call. Node and cargo
    figures always come from the collaborator's answer.
*/

package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/time/rate"
	"lukechampine.com/blake3"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// TaskHarvest is the name of the frame task while landed.
const TaskHarvest = "harvest-frame"

// minCollectWindow is the smallest elapsed time a collect is priced at, in seconds.
const minCollectWindow = 0.7

// SurfaceMove is an in-flight walk along the surface axis.
type SurfaceMove struct {
	FromX int       `json:"from_x" msgpack:"from_x"`
	ToX   int       `json:"to_x" msgpack:"to_x"`
	Start time.Time `json:"start" msgpack:"start"`
	End   time.Time `json:"end" msgpack:"end"`
}

// At interpolates the position at now, floored to a whole unit.
func (m SurfaceMove) At(now time.Time) (x int, done bool) {
	total := m.End.Sub(m.Start)
	if total <= 0 || !now.Before(m.End) {
		return m.ToX, true
	}
	frac := math.Max(0, float64(now.Sub(m.Start))/float64(total))
	return int(math.Floor(float64(m.FromX) + float64(m.ToX-m.FromX)*frac)), false
}

// Harvest is an open stream against one node.
type Harvest struct {
	NodeID   string    `json:"node_id" msgpack:"node_id"`
	LastTick time.Time `json:"last_tick" msgpack:"last_tick"`
	limiter  *rate.Limiter
}

// Scene is the live state of a landing.
type Scene struct {
	Planet     game.SpaceObject
	X          int
	Move       *SurfaceMove
	Nodes      []game.HarvestNode // in range, nearest first
	Range      int
	ScanUntil  *time.Time
	MiningGear bool
	Harvest    *Harvest

	hidden map[string]bool // veins in range the last scan left out for lack of gear
}

// SceneView is the payload of EventScene.
type SceneView struct {
	PlanetID   string             `json:"planet_id" msgpack:"planet_id"`
	PlanetName string             `json:"planet_name" msgpack:"planet_name"`
	X          int                `json:"x" msgpack:"x"`
	Moving     *SurfaceMove       `json:"moving,omitempty" msgpack:"moving,omitempty"`
	Nodes      []game.HarvestNode `json:"nodes" msgpack:"nodes"`
	Range      int                `json:"range" msgpack:"range"`
	WideScan   bool               `json:"wide_scan" msgpack:"wide_scan"`
	MiningGear bool               `json:"mining_gear" msgpack:"mining_gear"`
	Harvesting string             `json:"harvesting,omitempty" msgpack:"harvesting,omitempty"`
	Rate       float64            `json:"rate" msgpack:"rate"`
}

func (v SceneView) clone() SceneView {
	cp := v
	if v.Moving != nil {
		m := *v.Moving
		cp.Moving = &m
	}
	cp.Nodes = append([]game.HarvestNode(nil), v.Nodes...)
	for i := range cp.Nodes {
		if it := cp.Nodes[i].Item; it != nil {
			item := *it
			cp.Nodes[i].Item = &item
		}
	}
	return cp
}

// RadarReading points at the nearest collectable node.
type RadarReading struct {
	Found     bool   `json:"found"`
	NodeID    string `json:"node_id,omitempty"`
	Direction int    `json:"direction"` // -1 left, 0 here, +1 right
	Distance  int    `json:"distance"`
}

// LandingX places a player on a planet's surface. The same pair always lands
// on the same spot.
func LandingX(playerID, planetID string, maxX int) int {
	if maxX <= 0 {
		return 0
	}
	sum := blake3.Sum256([]byte(playerID + ":" + planetID))
	return int(binary.LittleEndian.Uint64(sum[:8]) % uint64(maxX+1))
}

// EnterScene lands on a planet and starts the frame task.
func (s *Session) EnterScene(ctx context.Context, planetID string) (SceneView, error) {
	player, ship, err := s.loaded()
	if err != nil {
		return SceneView{}, err
	}
	rows, err := s.backend.Select(ctx, "space_objects", store.Filter{"id": planetID})
	if err != nil {
		return SceneView{}, remoteErr("load planet", err)
	}
	if len(rows) == 0 {
		return SceneView{}, fmt.Errorf("%w: unknown planet %q", ErrInvalidInput, planetID)
	}
	planet := decodeObject(rows[0])
	if planet.Type != game.ObjectPlanet {
		return SceneView{}, fmt.Errorf("%w: %s is not a planet", ErrInvalidInput, planet.Name)
	}

	s.stopFrame()
	s.scene = &Scene{
		Planet:     planet,
		X:          LandingX(player.ID, planet.ID, s.cfg.Harvest.SurfaceMaxX),
		Range:      s.cfg.Harvest.VisionRange,
		MiningGear: ship.MiningGear,
	}
	if err := s.Scan(ctx, false); err != nil {
		s.scene = nil
		return SceneView{}, err
	}
	if s.tasks != nil {
		s.tasks.Start(TaskHarvest, s.cfg.Harvest.Frame, s.SceneTick)
	}
	s.InfoLog.Printf("landed on %s at x=%d", planet.Name, s.scene.X)
	return s.publishScene(), nil
}

// LeaveScene stops the frame task and drops the landing.
func (s *Session) LeaveScene() {
	s.stopFrame()
	if s.scene == nil {
		return
	}
	s.scene = nil
	s.Cache.setScene(nil)
	s.emit(EventScene, nil)
}

func (s *Session) stopFrame() {
	if s.tasks != nil {
		s.tasks.Stop(TaskHarvest)
	}
}

// Scan reloads the nodes around the landing party. A wide scan reaches
// further and falls back to vision range when it expires.
func (s *Session) Scan(ctx context.Context, wide bool) error {
	sc := s.scene
	if sc == nil {
		return ErrNoScene
	}
	now := s.now()
	if wide {
		until := now.Add(s.cfg.Harvest.ScanDuration)
		sc.ScanUntil = &until
		sc.Range = s.cfg.Harvest.ScanRange
	} else if sc.ScanUntil == nil {
		sc.Range = s.cfg.Harvest.VisionRange
	}
	return s.scan(ctx)
}

func (s *Session) scan(ctx context.Context) error {
	sc := s.scene
	rows, err := s.backend.Select(ctx, "object_nodes", store.Filter{"object_id": sc.Planet.ID})
	if err != nil {
		return remoteErr("scan", err)
	}

	pos := s.surfaceX()
	var nodes []game.HarvestNode
	var itemIDs []any
	seen := map[string]bool{}
	sc.hidden = map[string]bool{}
	for _, r := range rows {
		n := decodeNode(r)
		if n.Remaining <= 0 || abs(n.X-pos) > sc.Range {
			continue
		}
		if n.Kind == game.NodeVein && !sc.MiningGear {
			sc.hidden[n.ID] = true
			continue
		}
		nodes = append(nodes, n)
		if n.ItemID != "" && !seen[n.ItemID] {
			seen[n.ItemID] = true
			itemIDs = append(itemIDs, n.ItemID)
		}
	}

	if len(itemIDs) > 0 {
		items, err := s.backend.SelectIn(ctx, "items", "id", itemIDs, nil)
		if err != nil {
			s.ErrorLog.Printf("scan items: %v", err)
		}
		byID := make(map[string]game.Item, len(items))
		for _, r := range items {
			it := decodeItem(r)
			byID[it.ID] = it
		}
		for i := range nodes {
			if it, ok := byID[nodes[i].ItemID]; ok {
				nodes[i].Item = &it
			}
		}
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return abs(nodes[i].X-pos) < abs(nodes[j].X-pos)
	})
	sc.Nodes = nodes
	return nil
}

// surfaceX is the landing party's current position, mid-walk included.
func (s *Session) surfaceX() int {
	sc := s.scene
	if sc.Move == nil {
		return sc.X
	}
	x, _ := sc.Move.At(s.now())
	return x
}

// Radar points at the nearest collectable node, scanning wide first when
// nothing is known yet.
func (s *Session) Radar(ctx context.Context) (RadarReading, error) {
	sc := s.scene
	if sc == nil {
		return RadarReading{}, ErrNoScene
	}
	if len(sc.Nodes) == 0 {
		if err := s.Scan(ctx, true); err != nil {
			return RadarReading{}, err
		}
		s.publishScene()
	}

	pos := s.surfaceX()
	var best *game.HarvestNode
	for i := range sc.Nodes {
		n := &sc.Nodes[i]
		if n.Remaining <= 0 {
			continue
		}
		if best == nil || abs(n.X-pos) < abs(best.X-pos) {
			best = n
		}
	}
	if best == nil {
		return RadarReading{}, nil
	}
	dir := 0
	switch {
	case best.X > pos:
		dir = 1
	case best.X < pos:
		dir = -1
	}
	return RadarReading{Found: true, NodeID: best.ID, Direction: dir, Distance: abs(best.X - pos)}, nil
}

// MoveToX walks the landing party to x, clamped to the surface.
func (s *Session) MoveToX(x int) error {
	sc := s.scene
	if sc == nil {
		return ErrNoScene
	}
	x = max(0, min(x, s.cfg.Harvest.SurfaceMaxX))
	from := s.surfaceX()
	d := abs(x - from)
	if d == 0 {
		s.Info("already there")
		return nil
	}
	now := s.now()
	sc.X = from
	sc.Move = &SurfaceMove{FromX: from, ToX: x, Start: now, End: now.Add(game.SurfaceTravelTime(d))}
	s.publishScene()
	return nil
}

// StartHarvest works a node. Hand nodes are picked up at once; veins and
// gas open a stream that the frame task feeds.
func (s *Session) StartHarvest(ctx context.Context, nodeID string) error {
	sc := s.scene
	if sc == nil {
		return ErrNoScene
	}
	if sc.Move != nil {
		return fmt.Errorf("%w: still walking", ErrInvalidInput)
	}
	if sc.hidden[nodeID] {
		return ErrNoMiningGear
	}
	node := sc.node(nodeID)
	if node == nil || node.Remaining <= 0 {
		return ErrNodeEmpty
	}
	if s.cfg.Harvest.Rate(node.X-sc.X) == 0 {
		return fmt.Errorf("%w: %d units away", ErrTooFar, abs(node.X-sc.X))
	}

	if node.Kind == game.NodeHand {
		sc.Harvest = nil
		_, err := s.collect(ctx, node, 1)
		if rerr := s.scan(ctx); rerr != nil {
			s.ErrorLog.Printf("rescan: %v", rerr)
		}
		s.publishScene()
		return err
	}
	sc.Harvest = &Harvest{
		NodeID:   node.ID,
		LastTick: s.now(),
		limiter:  rate.NewLimiter(rate.Every(s.cfg.Harvest.CollectEvery), 1),
	}
	s.publishScene()
	return nil
}

// StopHarvest closes the stream, if any.
func (s *Session) StopHarvest(reason string) {
	sc := s.scene
	if sc == nil || sc.Harvest == nil {
		return
	}
	sc.Harvest = nil
	if reason != "" {
		s.Info("harvest stopped: " + reason)
	}
	s.publishScene()
}

// SceneTick is the frame task body.
func (s *Session) SceneTick(ctx context.Context) error {
	sc := s.scene
	if sc == nil {
		return nil
	}
	now := s.now()
	dirty := false

	if sc.ScanUntil != nil && !now.Before(*sc.ScanUntil) {
		sc.ScanUntil = nil
		sc.Range = s.cfg.Harvest.VisionRange
		if err := s.scan(ctx); err != nil {
			s.ErrorLog.Printf("rescan: %v", err)
		}
		dirty = true
	}

	if sc.Move != nil {
		x, done := sc.Move.At(now)
		sc.X = x
		if done {
			sc.Move = nil
			if err := s.scan(ctx); err != nil {
				s.ErrorLog.Printf("rescan: %v", err)
			}
		}
		dirty = true
		if sc.Harvest != nil {
			s.StopHarvest("moving")
		}
	}

	if sc.Harvest == nil {
		if dirty {
			s.publishScene()
		}
		return nil
	}

	node := sc.node(sc.Harvest.NodeID)
	if node == nil || node.Remaining <= 0 {
		s.StopHarvest("node depleted")
		return nil
	}
	r := s.cfg.Harvest.Rate(node.X - sc.X)
	if r == 0 {
		s.StopHarvest("out of range")
		return nil
	}
	if !sc.Harvest.limiter.AllowN(now, 1) {
		if dirty {
			s.publishScene()
		}
		return nil
	}

	elapsed := now.Sub(sc.Harvest.LastTick).Seconds()
	qty := max(1, int(math.Floor(r*math.Max(minCollectWindow, elapsed))))
	sc.Harvest.LastTick = now

	res, err := s.collect(ctx, node, qty)
	switch {
	case errors.Is(err, ErrCargoFull):
		s.StopHarvest("cargo full")
	case errors.Is(err, ErrNodeEmpty):
		s.StopHarvest("node empty")
	case err != nil:
		s.ErrorLog.Printf("collect: %v", err)
		s.StopHarvest("collect failed")
	case res.NodeRemaining <= 0:
		s.StopHarvest("node depleted")
	default:
		s.publishScene()
		return nil
	}
	if rerr := s.scan(ctx); rerr != nil {
		s.ErrorLog.Printf("rescan: %v", rerr)
	}
	s.publishScene()
	return nil
}

// CollectResult is the collaborator's answer to collect_node.
type CollectResult struct {
	Collected     int     `json:"collected_qty"`
	NodeRemaining float64 `json:"node_remaining"`
	CargoUsed     float64 `json:"ship_cargo_used"`
	CargoCapacity float64 `json:"ship_cargo_capacity"`
}

// collect calls collect_node and applies the authoritative figures it returns.
func (s *Session) collect(ctx context.Context, node *game.HarvestNode, qty int) (CollectResult, error) {
	ship, ok := s.Cache.Ship()
	if !ok {
		return CollectResult{}, ErrNotLoaded
	}
	out, err := s.backend.Call(ctx, store.ProcCollectNode, store.Row{
		"p_ship_id": ship.ID,
		"p_node_id": node.ID,
		"p_qty":     qty,
	})
	if err != nil {
		return CollectResult{}, remoteErr("collect", err)
	}

	res := CollectResult{
		Collected:     int(store.Int(out["collected_qty"], 0)),
		NodeRemaining: store.Float(out["node_remaining"], 0),
		CargoUsed:     store.Float(out["ship_cargo_used"], ship.Cargo.Current),
		CargoCapacity: store.Float(out["ship_cargo_capacity"], ship.Cargo.Capacity),
	}
	node.Remaining = res.NodeRemaining
	ship.Cargo = game.Gauge{Current: res.CargoUsed, Capacity: res.CargoCapacity}
	s.Cache.SetShip(ship)

	name := node.ItemID
	if node.Item != nil {
		name = node.Item.Name
	}
	s.Info(fmt.Sprintf("+%d %s", res.Collected, name))
	return res, nil
}

func (sc *Scene) node(id string) *game.HarvestNode {
	for i := range sc.Nodes {
		if sc.Nodes[i].ID == id {
			return &sc.Nodes[i]
		}
	}
	return nil
}

func (s *Session) publishScene() SceneView {
	sc := s.scene
	if sc == nil {
		return SceneView{}
	}
	v := SceneView{
		PlanetID:   sc.Planet.ID,
		PlanetName: sc.Planet.Name,
		X:          sc.X,
		Nodes:      sc.Nodes,
		Range:      sc.Range,
		WideScan:   sc.ScanUntil != nil,
		MiningGear: sc.MiningGear,
	}
	if sc.Move != nil {
		m := *sc.Move
		v.Moving = &m
	}
	if sc.Harvest != nil {
		v.Harvesting = sc.Harvest.NodeID
		if n := sc.node(sc.Harvest.NodeID); n != nil {
			v.Rate = s.cfg.Harvest.Rate(n.X - sc.X)
		}
	}
	v = v.clone()
	s.Cache.setScene(&v)
	s.emit(EventScene, v)
	return v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
