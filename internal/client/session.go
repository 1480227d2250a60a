/*
Package client
File: session.go
Description:
    The Session is the client core for one signed-in player. It owns the
    entity cache, talks to the collaborator and publishes render events.

    A Session is not safe for concurrent use. Every method that mutates it
    must run on the Loop goroutine (see loop.go); the adapter only reads
    through the Cache snapshots.

    Field ownership between the periodic tasks:
    - travel task: player position and travel fields
    - battery task: ship battery
    - harvest frame task: landing scene and ship cargo figures
    Anything else writing those fields must also run on the loop.
*/

package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// staleRetries bounds the reconcile-and-refetch cycle on load.
const staleRetries = 3

// scheduler is the part of the Loop a Session needs to run its own tasks.
type scheduler interface {
	Start(name string, every time.Duration, job Job) bool
	Stop(name string) bool
}

// Options customises a Session. Zero values are replaced with working defaults.
type Options struct {
	Now      func() time.Time
	Notifier Notifier
	InfoLog  *log.Logger
	ErrorLog *log.Logger
}

// Session is the core state of one signed-in client.
type Session struct {
	cfg     game.Config
	backend store.Backend
	token   string

	now      func() time.Time
	notifier Notifier
	InfoLog  *log.Logger
	ErrorLog *log.Logger

	Cache *Cache
	auth  *store.Session
	tasks scheduler

	battery batteryState
	scene   *Scene
}

// NewSession builds an empty session. Nothing is read until Load.
func NewSession(backend store.Backend, cfg game.Config, token string, opts Options) *Session {
	s := &Session{
		cfg:      cfg,
		backend:  backend,
		token:    token,
		now:      opts.Now,
		notifier: opts.Notifier,
		InfoLog:  opts.InfoLog,
		ErrorLog: opts.ErrorLog,
		Cache:    &Cache{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = discard{}
	}
	if s.InfoLog == nil {
		s.InfoLog = log.New(io.Discard, "", 0)
	}
	if s.ErrorLog == nil {
		s.ErrorLog = log.New(io.Discard, "", 0)
	}
	s.resetBatteryLimiter()
	return s
}

// Config returns the balance the session runs with.
func (s *Session) Config() game.Config { return s.cfg }

// SetConfig swaps the balance. Running tasks keep their period until restarted.
func (s *Session) SetConfig(cfg game.Config) {
	s.cfg = cfg
	s.resetBatteryLimiter()
}

// Now is the session clock.
func (s *Session) Now() time.Time { return s.now() }

// SetToken switches the account the session loads.
func (s *Session) SetToken(token string) { s.token = token }

func (s *Session) emit(kind EventKind, payload any) {
	s.notifier.Notify(Event{Kind: kind, At: s.now(), Payload: payload})
}

// Info publishes a user-facing message.
func (s *Session) Info(msg string) {
	s.emit(EventNotice, Notice{Level: "info", Message: msg})
}

// Fail publishes a user-facing failure and logs the diagnostic.
func (s *Session) Fail(op string, err error) {
	s.ErrorLog.Printf("%s: %v", op, err)
	s.emit(EventNotice, Notice{Level: "error", Message: err.Error()})
}

// UserID returns the authenticated account, if the session was loaded.
func (s *Session) UserID() string {
	if s.auth == nil {
		return ""
	}
	return s.auth.UserID
}

// Authenticate resolves the token into an account.
func (s *Session) Authenticate(ctx context.Context) error {
	auth, err := s.backend.Session(ctx, s.token)
	if err != nil {
		return remoteErr("session lookup", err)
	}
	if auth == nil {
		return ErrNoSession
	}
	s.auth = auth
	return nil
}

// Load populates the cache with the player and ship. A travel window that
// already closed (for example after a restart) is settled first.
func (s *Session) Load(ctx context.Context) error {
	if err := s.Authenticate(ctx); err != nil {
		return err
	}

	var row store.Row
	for attempt := 0; ; attempt++ {
		var err error
		row, err = s.fetchPlayerRow(ctx)
		if err != nil {
			return err
		}
		busy := store.Time(row["busy_until"])
		if busy == nil || s.now().Before(*busy) {
			break
		}
		if attempt >= staleRetries {
			return fmt.Errorf("reconcile travel: still stale after %d attempts", attempt)
		}
		// Settle against the row just read, never against the cache.
		settled, err := s.settleArrival(ctx, row)
		if err != nil {
			return err
		}
		if settled {
			s.InfoLog.Printf("reconciled stale travel for %s", store.Text(row["id"]))
		}
	}
	player := decodePlayer(row)

	ships, err := s.backend.Select(ctx, "ships", store.Filter{"player_id": player.ID})
	if err != nil {
		return remoteErr("load ship", err)
	}
	if len(ships) == 0 {
		return ErrNoCharacter
	}
	ship := decodeShip(ships[0])

	s.Cache.SetPlayer(player)
	s.Cache.SetShip(ship)
	s.resetBattery(ship)
	s.emit(EventPlayer, PlayerView{Player: player, Ship: ship})
	return nil
}

func (s *Session) fetchPlayerRow(ctx context.Context) (store.Row, error) {
	rows, err := s.backend.Select(ctx, "players", store.Filter{"id": s.auth.UserID})
	if err != nil {
		return nil, remoteErr("load player", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoCharacter
	}
	return rows[0], nil
}

// Reload refreshes player, ship and world. Unpersisted battery regen is
// written first so the reload does not roll it back.
func (s *Session) Reload(ctx context.Context) error {
	s.flushBattery(ctx)
	if err := s.Load(ctx); err != nil {
		return err
	}
	_, err := s.LoadWorld(ctx)
	return err
}

// Close writes back pending regen and drops everything the session cached.
func (s *Session) Close(ctx context.Context) {
	s.flushBattery(ctx)
	s.LeaveScene()
	s.Cache.Clear()
	s.auth = nil
}

// PlayerView is the payload of EventPlayer.
type PlayerView struct {
	Player game.Player `json:"player" msgpack:"player"`
	Ship   game.Ship   `json:"ship" msgpack:"ship"`
}

func (s *Session) loaded() (game.Player, game.Ship, error) {
	p, ok := s.Cache.Player()
	if !ok {
		return game.Player{}, game.Ship{}, ErrNotLoaded
	}
	sh, ok := s.Cache.Ship()
	if !ok {
		return game.Player{}, game.Ship{}, ErrNotLoaded
	}
	return p, sh, nil
}

// refresh re-reads player and ship after a procedure changed them.
func (s *Session) refresh(ctx context.Context) error {
	s.flushBattery(ctx)
	return s.Load(ctx)
}
