package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cs2coach/internal/brain"
	"cs2coach/internal/coach"
	"cs2coach/internal/config"
	"cs2coach/internal/speech"
	"cs2coach/internal/storage"
	"cs2coach/internal/web"
)

func main() {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Storage: Postgres when configured, local SQLite otherwise.
	var store storage.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		store = pgStore
		log.Println("[Main] Using Postgres storage")
	} else {
		sqliteStore, err := storage.NewSQLiteStore(cfg.SQLitePath())
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		store = sqliteStore
		log.Printf("[Main] Using SQLite storage at %s", cfg.SQLitePath())
	}
	defer store.Close()

	// AI gateway, if a sidecar is configured. The ledger wait keeps a
	// restart loop from hammering the provider.
	var aiBrain *brain.Brain
	if cfg.BrainEndpoint != "" {
		ledger := brain.NewCooldownLedger(cfg.CooldownFile(), cfg.CooldownInterval)
		ledger.WaitStartup()
		aiBrain = brain.New(brain.NewHTTPChatClient(cfg.BrainEndpoint, cfg.BrainAPIKey), ledger)
		log.Println("[Main] AI coach enabled")
	} else {
		log.Println("[Main] No BRAIN_ENDPOINT configured, /ask disabled")
	}

	var speaker speech.Speaker = speech.NoopSpeaker{}
	if cfg.SpeechEndpoint != "" {
		speaker = speech.NewHTTPSpeaker(cfg.SpeechEndpoint)
		log.Println("[Main] Voice output enabled")
	}
	dispatcher := speech.NewDispatcher(speaker)

	hub := web.NewHub()
	dispatcher.SetNotify(hub.BroadcastAdvisory)

	coachOpts := coach.Options{
		Store:      store,
		Dispatcher: dispatcher,
		LogDir:     cfg.MatchLogDir(),
	}
	if aiBrain != nil {
		coachOpts.ResetSession = aiBrain.ResetSession
	}
	gameCoach := coach.New(coachOpts)
	defer gameCoach.Close()

	server := web.NewServer(cfg.ListenAddr, gameCoach, store, aiBrain, hub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Println("[Main] AI coach system online")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[Main] Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Printf("[Main] Shutdown error: %v", err)
	}
	dispatcher.Wait()
}
