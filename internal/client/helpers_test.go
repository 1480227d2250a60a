package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

var errInjected = errors.New("connection reset")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder keeps every event the session published.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if n, ok := e.Payload.(Notice); ok {
			out = append(out, n.Message)
		}
	}
	return out
}

func (r *recorder) sawNotice(substr string) bool {
	for _, m := range r.notices() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// flakyBackend fails selected writes.
type flakyBackend struct {
	store.Backend
	failUpdate func(table string, fields store.Row) bool
	failInsert func(table string) bool
}

func (f *flakyBackend) Insert(ctx context.Context, table string, fields store.Row) (store.Row, error) {
	if f.failInsert != nil && f.failInsert(table) {
		return nil, errInjected
	}
	return f.Backend.Insert(ctx, table, fields)
}

func (f *flakyBackend) Update(ctx context.Context, table string, where store.Filter, fields store.Row) (int64, error) {
	if f.failUpdate != nil && f.failUpdate(table, fields) {
		return 0, errInjected
	}
	return f.Backend.Update(ctx, table, where, fields)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	db       *store.SQLite
	backend  *flakyBackend
	clock    *fakeClock
	events   *recorder
	sess     *Session
	cfg      game.Config
	playerID string
	shipID   string
	token    string
}

// pilot describes the seeded character.
type pilot struct {
	X, Y       float64
	Battery    float64
	Capacity   float64
	Regen      float64
	CargoUsed  int
	CargoCap   int
	Radar      float64
	MiningGear bool
	Level      int
}

func defaultPilot() pilot {
	return pilot{Battery: 100, Capacity: 100, Regen: 2, CargoCap: 10, Radar: 10, MiningGear: true, Level: 1}
}

func newHarness(t *testing.T, p pilot, tweak ...func(*game.Config)) *harness {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	db.SetClock(clock.Now)

	cfg := game.DefaultConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		backend:  &flakyBackend{Backend: db},
		clock:    clock,
		events:   &recorder{},
		cfg:      cfg,
		playerID: "pilot-1",
	}

	sess, err := db.CreateSession(h.ctx, h.playerID, 24*time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := db.Insert(h.ctx, "players", store.Row{
		"id": h.playerID, "name": "Nova", "race": "human",
		"x": p.X, "y": p.Y, "credits": 100, "system": 1, "level": p.Level,
	}); err != nil {
		t.Fatalf("insert player: %v", err)
	}
	ship, err := db.Insert(h.ctx, "ships", store.Row{
		"player_id":          h.playerID,
		"ship_name":          "Kestrel",
		"type":               "scout",
		"battery_current":    p.Battery,
		"battery_capacity":   p.Capacity,
		"battery_regen_rate": p.Regen,
		"cargo_used":         p.CargoUsed,
		"cargo_capacity":     p.CargoCap,
		"radar_range":        p.Radar,
		"mining_gear":        p.MiningGear,
	})
	if err != nil {
		t.Fatalf("insert ship: %v", err)
	}
	h.shipID = store.Text(ship["id"])
	h.token = sess.Token

	h.sess = NewSession(h.backend, cfg, sess.Token, Options{Now: clock.Now, Notifier: h.events})
	return h
}

// otherInstance is a second client signed in as the same pilot, sharing the
// collaborator and the clock.
func (h *harness) otherInstance() *Session {
	h.t.Helper()
	other := NewSession(h.backend, h.cfg, h.token, Options{Now: h.clock.Now, Notifier: &recorder{}})
	if err := other.Load(h.ctx); err != nil {
		h.t.Fatalf("load other instance: %v", err)
	}
	return other
}

func (h *harness) load() {
	h.t.Helper()
	if err := h.sess.Load(h.ctx); err != nil {
		h.t.Fatalf("load: %v", err)
	}
}

func (h *harness) addObject(kind string, x, y float64, level int, remaining *float64) string {
	h.t.Helper()
	row := store.Row{"system_id": 1, "type": kind, "name": kind, "x": x, "y": y, "level": level}
	if remaining != nil {
		row["resources_remaining"] = *remaining
	}
	r, err := h.db.Insert(h.ctx, "space_objects", row)
	if err != nil {
		h.t.Fatalf("insert object: %v", err)
	}
	return store.Text(r["id"])
}

func (h *harness) addNode(objectID string, kind game.NodeKind, x int, remaining float64, item string) string {
	h.t.Helper()
	r, err := h.db.Insert(h.ctx, "object_nodes", store.Row{
		"object_id": objectID, "node_type": string(kind), "x": x,
		"remaining": remaining, "max": remaining, "item_id": item,
	})
	if err != nil {
		h.t.Fatalf("insert node: %v", err)
	}
	return store.Text(r["id"])
}

func (h *harness) row(table string, where store.Filter) store.Row {
	h.t.Helper()
	rows, err := h.db.Select(h.ctx, table, where)
	if err != nil || len(rows) == 0 {
		h.t.Fatalf("select %s %v: %v (%d rows)", table, where, err, len(rows))
	}
	return rows[0]
}

func (h *harness) playerRow() store.Row { return h.row("players", store.Filter{"id": h.playerID}) }
func (h *harness) shipRow() store.Row   { return h.row("ships", store.Filter{"id": h.shipID}) }

// calls counts how many times a procedure reached the collaborator.
func (h *harness) calls(name string) int {
	h.t.Helper()
	rows, err := h.db.Select(h.ctx, "procedure_log", store.Filter{"name": name})
	if err != nil {
		h.t.Fatalf("procedure_log: %v", err)
	}
	return len(rows)
}

func ptr(f float64) *float64 { return &f }
