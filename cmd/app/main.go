package main

import (
	"flag"
	"fmt"
	"log"

	"SwingDesk/internal/di"
	"SwingDesk/pkg/config"
)

func main() {
	path := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*path); err != nil {
		log.Fatalf("swingdesk: %v", err)
	}
}

// run blocks until SIGINT or SIGTERM has been handled.
func run(path string) error {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Printf("swingdesk starting: env=%s market_data=%s universe=%d kafka=%t",
		cfg.Environment, cfg.MarketData.Provider, len(cfg.Screening.Universe), cfg.Kafka.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("wire app: %w", err)
	}
	return app.Run()
}
