package main

import (
	"flag"
	"log"
	"os"

	"github.com/carmandale/SPY-tracker-sub000/internal/di"
	"github.com/carmandale/SPY-tracker-sub000/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s symbol=%s audit_sink=%s", cfg.Environment, cfg.Tracker.Symbol, cfg.Audit.Sink)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
