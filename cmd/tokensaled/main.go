// Command tokensaled runs one token sale as a long-lived daemon: it restores
// the sale from its database, serves the read API and event stream, and
// snapshots the sale back to disk on every state change and on shutdown.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/api"
	"github.com/tokenforge/tokensale/config"
	"github.com/tokenforge/tokensale/crowdsale"
	"github.com/tokenforge/tokensale/storage"
)

func main() {
	cfg := config.LoadEnvironmentConfig()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.EnableColoredLogs {
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	}

	color.Cyan("🔥 TokenSale Daemon")
	color.Yellow("   Sale: %s", cfg.SaleName)
	color.Yellow("   API:  %s", cfg.ListenAddr)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := storage.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	engine, err := loadOrCreateEngine(cfg, store, log)
	if err != nil {
		log.Fatalf("Failed to initialize sale: %v", err)
	}

	// Persist the journal and a fresh snapshot after every state change.
	engine.RegisterEventHandler(func(event crowdsale.Event) {
		if err := store.AppendEvent(event); err != nil {
			log.Errorf("Failed to journal event: %v", err)
		}
		if err := store.SaveSnapshot(engine.Snapshot()); err != nil {
			log.Errorf("Failed to save snapshot: %v", err)
		}
	})

	server := api.NewServer(engine, log)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	log.Info("Shutdown signal received, saving snapshot")
	if err := store.SaveSnapshot(engine.Snapshot()); err != nil {
		log.Errorf("Failed to save final snapshot: %v", err)
	}
	color.Green("✅ Sale state saved, goodbye")
}

func loadOrCreateEngine(cfg *config.Config, store *storage.Store, log *logrus.Logger) (*crowdsale.Engine, error) {
	vault := crowdsale.NewMemoryVault()

	snap, err := store.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		log.WithField("sale", snap.SaleName).Info("Restoring sale from snapshot")
		return crowdsale.Restore(*snap, vault, log)
	}

	admin, err := cfg.Admin()
	if err != nil {
		return nil, err
	}
	params, err := cfg.SaleParams()
	if err != nil {
		return nil, err
	}
	log.WithField("sale", params.SaleName).Info("Creating new sale")
	return crowdsale.New(params, admin, vault, log)
}
