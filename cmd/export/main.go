// Command export writes one JSON snapshot of the prediction log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"watercheck/config"
	"watercheck/db"
	"watercheck/export"
	"watercheck/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	dir := flag.String("dir", "", "output directory (defaults to export.dir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dir != "" {
		cfg.Export.Dir = *dir
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, db.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Fatal("failed to open log store", zap.Error(err))
	}
	defer store.Close()

	path, err := export.NewExporter(store, cfg.Export.Dir, logger).Run(ctx)
	if err != nil {
		logger.Error("export failed", zap.Error(err))
		store.Close()
		os.Exit(1)
	}
	fmt.Println(path)
}
