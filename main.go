/*
Package main
File: main.go
Description: Client entry point. Loads the balance, opens the collaborator,
signs the session in, starts the loop tasks and serves the local UI adapter.
SIGHUP reloads 'balance.yaml' without dropping the session.
*/

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/everforgeworks/galaxies-client/internal/api"
	"github.com/everforgeworks/galaxies-client/internal/client"
	"github.com/everforgeworks/galaxies-client/internal/game"
	"github.com/everforgeworks/galaxies-client/internal/store"
)

var (
	InfoLog  *log.Logger
	ErrorLog *log.Logger
)

// demoPilot is the account seeded when no token is configured.
const demoPilot = "demo-pilot"

func main() {
	// 1. Environment, then the balance file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}
	configPath := os.Getenv("GALAXIES_CONFIG")
	if configPath == "" {
		configPath = "balance.yaml"
	}
	cfg, err := game.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Config Fail: %v", err)
	}
	setupLogs(cfg.Server.LogDir)

	// 2. Collaborator
	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		ErrorLog.Fatalf("Store Fail: %v", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	token := cfg.Server.Token
	if token == "" && cfg.Store.Seed {
		auth, err := db.CreateSession(ctx, demoPilot, 30*24*time.Hour)
		if err != nil {
			ErrorLog.Fatalf("Seed Fail: %v", err)
		}
		token = auth.Token
		InfoLog.Printf("Seeded session for %s", demoPilot)
	}

	// 3. Hub, session and loop
	hub := api.NewHub(ErrorLog)
	go hub.Run(ctx)

	sess := client.NewSession(db, cfg, token, client.Options{
		Notifier: hub,
		InfoLog:  InfoLog,
		ErrorLog: ErrorLog,
	})
	loop := client.NewLoop(sess)

	err = loop.Do(ctx, func(ctx context.Context) error {
		err := sess.Load(ctx)
		if errors.Is(err, client.ErrNoCharacter) && cfg.Store.Seed {
			err = sess.CreateCharacter(ctx, client.CharacterSpec{Name: "Demo", ShipName: "Wayfarer", Race: "human", Hull: "explorer"})
		}
		if err != nil {
			return err
		}
		_, err = sess.LoadWorld(ctx)
		return err
	})
	switch {
	case err == nil:
		p, _ := sess.Cache.Player()
		InfoLog.Printf("Signed in as %s in system %d", p.Name, p.System)
	case errors.Is(err, client.ErrNoCharacter), errors.Is(err, client.ErrNoSession):
		// The UI can still create a character.
		InfoLog.Printf("Session not ready: %v", err)
	default:
		ErrorLog.Fatalf("Load Fail: %v", err)
	}

	// 4. Periodic tasks
	loop.StartSession()

	// 5. Hot reload on SIGHUP
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGHUP)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
			}
			InfoLog.Println("SIGNAL: Reloading balance...")
			next, err := game.LoadConfig(configPath)
			if err != nil {
				ErrorLog.Printf("Reload Fail: %v", err)
				continue
			}
			loop.Do(ctx, func(context.Context) error {
				sess.SetConfig(next)
				return nil
			})
			loop.Restart()
		}
	}()

	// 6. Start the Server
	adapter := api.NewServer(loop, hub, ErrorLog)
	adapter.Calls = db
	srv := &http.Server{
		Addr:     cfg.Server.Addr,
		Handler:  adapter.Routes(),
		ErrorLog: ErrorLog,
	}
	go func() {
		InfoLog.Printf("GALAXIES client adapter live on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ErrorLog.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	InfoLog.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Write back any regen still pending before the tasks go away.
	loop.Do(shutdownCtx, func(ctx context.Context) error {
		sess.Close(ctx)
		return nil
	})
	loop.Close()
	stop()
}

// setupLogs writes to the console and, when dir is set, to info.log and error.log.
func setupLogs(dir string) {
	infoOut, errOut := io.Writer(os.Stdout), io.Writer(os.Stderr)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("Log dir %s unavailable: %v", dir, err)
		} else {
			fInfo, err1 := os.OpenFile(filepath.Join(dir, "info.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			fErr, err2 := os.OpenFile(filepath.Join(dir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err1 == nil && err2 == nil {
				infoOut = io.MultiWriter(os.Stdout, fInfo)
				errOut = io.MultiWriter(os.Stderr, fErr)
			}
		}
	}
	InfoLog = log.New(infoOut, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(errOut, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
}
