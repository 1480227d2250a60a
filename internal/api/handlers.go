/*
Package api
File: handlers.go
Description:
    HTTP handlers for the local UI. Every action is queued onto the client
    Loop and runs on its goroutine; reads of the render state go straight to
    the Cache snapshots.

    Key Responsibilities:
    - Decoding requests into core calls.
    - Mapping core errors to status codes. The failure is also published
      as a notice so the UI shows it wherever it listens.
    - Throttling action bursts from a misbehaving UI.
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/everforgeworks/galaxies-client/internal/client"
	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

// Request DTOs.

type MoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type EnterRequest struct {
	PlanetID string `json:"planet_id"`
}

type ScanRequest struct {
	Wide bool `json:"wide"`
}

type WalkRequest struct {
	X int `json:"x"`
}

type HarvestRequest struct {
	NodeID string `json:"node_id"`
}

type BuyRequest struct {
	ListingID string `json:"listing_id"`
	Qty       int    `json:"qty"`
}

type SellRequest struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
	Price  int64  `json:"price_per_unit,omitempty"`
}

// StateView is the full render snapshot.
type StateView struct {
	Player *game.Player      `json:"player,omitempty"`
	Ship   *game.Ship        `json:"ship,omitempty"`
	Travel string            `json:"travel"`
	World  *client.WorldView `json:"world,omitempty"`
	Scene  *client.SceneView `json:"scene,omitempty"`
}

// Server binds the HTTP surface to one client loop.
type Server struct {
	Loop     *client.Loop
	Hub      *Hub
	ErrorLog *log.Logger

	// Calls serves /api/debug/calls when the collaborator keeps a procedure log.
	Calls store.CallLog

	limiter *rate.Limiter
}

// NewServer builds the adapter. Actions are limited to 20/s with a burst of 40.
func NewServer(loop *client.Loop, hub *Hub, errorLog *log.Logger) *Server {
	if errorLog == nil {
		errorLog = log.Default()
	}
	return &Server{Loop: loop, Hub: hub, ErrorLog: errorLog, limiter: rate.NewLimiter(20, 40)}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) { ServeWs(s.Hub, w, r) })
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.throttle)

		r.Get("/state", s.HandleState)
		r.Get("/config", s.HandleConfig)
		r.Post("/reload", s.HandleReload)

		r.Post("/character", s.HandleCreateCharacter)
		r.Delete("/character", s.HandleDeleteCharacter)

		r.Get("/travel/plan", s.HandlePlanMove)
		r.Post("/travel", s.HandleMove)
		r.Post("/travel/finalize", s.HandleFinalize)

		r.Post("/objects/{id}/interact", s.HandleInteract)

		r.Route("/scene", func(r chi.Router) {
			r.Post("/enter", s.HandleEnterScene)
			r.Post("/leave", s.HandleLeaveScene)
			r.Post("/scan", s.HandleScan)
			r.Get("/radar", s.HandleRadar)
			r.Post("/walk", s.HandleWalk)
			r.Post("/harvest", s.HandleStartHarvest)
			r.Delete("/harvest", s.HandleStopHarvest)
		})

		r.Get("/inventory", s.HandleInventory)
		r.Route("/market", func(r chi.Router) {
			r.Get("/listings", s.HandleListings)
			r.Get("/mine", s.HandleMyListings)
			r.Post("/listings", s.HandleCreateListing)
			r.Delete("/listings/{id}", s.HandleCancelListing)
			r.Post("/buy", s.HandleBuy)
			r.Post("/sell", s.HandleSell)
		})

		r.Get("/debug/calls", s.HandleRecentCalls)
	})
	return r
}

// corsMiddleware lets a browser UI served from another origin reach the adapter.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !s.limiter.Allow() {
			http.Error(w, "Rate Limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// act runs fn on the loop and writes its result. A failure is published as
// a notice from inside the job. The job may outlive the request, so its
// result travels back on a buffered channel that nobody has to drain.
func (s *Server) act(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *client.Session) (any, error)) {
	result := make(chan any, 1)
	err := s.Loop.Do(r.Context(), func(ctx context.Context) error {
		sess := s.Loop.Session()
		out, err := fn(ctx, sess)
		if err != nil {
			sess.Fail(op, err)
			return err
		}
		result <- out
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := <-result
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps the core error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrNoCharacter), errors.Is(err, client.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, client.ErrInsufficientBattery), errors.Is(err, client.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, client.ErrAlreadyTraveling),
		errors.Is(err, client.ErrNoFreeSpot),
		errors.Is(err, client.ErrOutOfRange),
		errors.Is(err, client.ErrLevelTooLow),
		errors.Is(err, client.ErrDepleted),
		errors.Is(err, client.ErrNoMiningGear),
		errors.Is(err, client.ErrTooFar),
		errors.Is(err, client.ErrInsufficientItems),
		errors.Is(err, client.ErrCargoFull),
		errors.Is(err, client.ErrNodeEmpty),
		errors.Is(err, client.ErrNoScene):
		return http.StatusConflict
	case store.CodeOf(err) == store.CodeForbidden:
		return http.StatusForbidden
	case store.CodeOf(err) == store.CodeNotFound:
		return http.StatusNotFound
	case errors.Is(err, client.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// HandleState returns the render snapshot.
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	cache := s.Loop.Session().Cache
	var view StateView
	if p, ok := cache.Player(); ok {
		view.Player = &p
		view.Travel = client.StateOf(p, s.Loop.Session().Now()).String()
	}
	if sh, ok := cache.Ship(); ok {
		view.Ship = &sh
	}
	if wv, ok := cache.World(); ok {
		view.World = &wv
	}
	if sc, ok := cache.Scene(); ok {
		view.Scene = &sc
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleConfig returns the balance the core runs with.
func (s *Server) HandleConfig(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "config", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Config(), nil
	})
}

func (s *Server) HandleReload(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "reload", func(ctx context.Context, sess *client.Session) (any, error) {
		return nil, sess.Reload(ctx)
	})
}

func (s *Server) HandleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req client.CharacterSpec
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "create character", func(ctx context.Context, sess *client.Session) (any, error) {
		if err := sess.CreateCharacter(ctx, req); err != nil {
			return nil, err
		}
		p, _ := sess.Cache.Player()
		return p, nil
	})
}

func (s *Server) HandleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "delete character", func(ctx context.Context, sess *client.Session) (any, error) {
		return nil, sess.DeleteCharacter(ctx)
	})
}

// HandlePlanMove quotes a move without sending it.
func (s *Server) HandlePlanMove(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.act(w, r, "plan", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.PlanMove(x, y)
	})
}

func (s *Server) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "move", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.MoveTo(ctx, req.X, req.Y)
	})
}

func (s *Server) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "finalize", func(ctx context.Context, sess *client.Session) (any, error) {
		done, err := sess.FinalizeTravel(ctx)
		return map[string]bool{"finalized": done}, err
	})
}

func (s *Server) HandleInteract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.act(w, r, "interact", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Interact(ctx, id)
	})
}

func (s *Server) HandleEnterScene(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "land", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.EnterScene(ctx, req.PlanetID)
	})
}

func (s *Server) HandleLeaveScene(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "leave", func(ctx context.Context, sess *client.Session) (any, error) {
		sess.LeaveScene()
		return nil, nil
	})
}

func (s *Server) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "scan", func(ctx context.Context, sess *client.Session) (any, error) {
		if err := sess.Scan(ctx, req.Wide); err != nil {
			return nil, err
		}
		sc, _ := sess.Cache.Scene()
		return sc, nil
	})
}

func (s *Server) HandleRadar(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "radar", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Radar(ctx)
	})
}

func (s *Server) HandleWalk(w http.ResponseWriter, r *http.Request) {
	var req WalkRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "walk", func(ctx context.Context, sess *client.Session) (any, error) {
		return nil, sess.MoveToX(req.X)
	})
}

func (s *Server) HandleStartHarvest(w http.ResponseWriter, r *http.Request) {
	var req HarvestRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "harvest", func(ctx context.Context, sess *client.Session) (any, error) {
		return nil, sess.StartHarvest(ctx, req.NodeID)
	})
}

func (s *Server) HandleStopHarvest(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "harvest", func(ctx context.Context, sess *client.Session) (any, error) {
		sess.StopHarvest("")
		return nil, nil
	})
}

// HandleRecentCalls lists the latest collaborator procedure calls.
func (s *Server) HandleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if s.Calls == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		limit = n
	}
	calls, err := s.Calls.RecentCalls(r.Context(), limit)
	if err != nil {
		s.ErrorLog.Printf("recent calls: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) HandleInventory(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "inventory", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Inventory(ctx)
	})
}

func (s *Server) HandleListings(w http.ResponseWriter, r *http.Request) {
	item := r.URL.Query().Get("item")
	s.act(w, r, "listings", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Listings(ctx, item)
	})
}

func (s *Server) HandleMyListings(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "listings", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.MyListings(ctx)
	})
}

func (s *Server) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "create listing", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.CreateListing(ctx, req.ItemID, req.Qty, req.Price)
	})
}

func (s *Server) HandleCancelListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.act(w, r, "cancel listing", func(ctx context.Context, sess *client.Session) (any, error) {
		return nil, sess.CancelListing(ctx, id)
	})
}

func (s *Server) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "buy", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.Buy(ctx, req.ListingID, req.Qty)
	})
}

func (s *Server) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !decode(w, r, &req) {
		return
	}
	s.act(w, r, "sell", func(ctx context.Context, sess *client.Session) (any, error) {
		return sess.SellToMarket(ctx, req.ItemID, req.Qty)
	})
}
