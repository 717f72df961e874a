package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"watercheck/config"
	"watercheck/db"
	"watercheck/export"
	whttp "watercheck/http"
	"watercheck/logging"
	"watercheck/ml"
	"watercheck/monitoring"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database
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
	if err := store.Init(ctx); err != nil {
		logger.Fatal("failed to initialize logs table", zap.Error(err))
	}
	storeFields := []zap.Field{zap.String("driver", cfg.Database.Driver)}
	if sqlite, ok := store.(*db.SQLiteStore); ok {
		storeFields = append(storeFields, zap.String("path", sqlite.Path()))
	}
	logger.Info("log store ready", storeFields...)

	// 3. Model artifacts
	source, err := ml.NewFileArtifactSource(ml.ArtifactConfig{
		ModelType:  cfg.Model.Type,
		ModelPath:  cfg.Model.Path,
		ScalerPath: cfg.Model.ScalerPath,
		CacheSize:  cfg.Model.CacheSize,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build artifact source", zap.Error(err))
	}
	if _, err := source.Artifacts(); err != nil {
		// Requests report the failure until the files are fixed.
		logger.Warn("model artifacts not loadable at startup", zap.Error(err))
	}
	if cfg.Model.Watch {
		go func() {
			if err := source.Watch(ctx); err != nil {
				logger.Warn("artifact watcher stopped", zap.Error(err))
			}
		}()
	}
	predictor := ml.NewPredictor(source, logger)

	// 4. Metrics and live stream
	if err := monitoring.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	hub := monitoring.NewStreamHub(logger)
	go hub.Run(ctx)

	// 5. Scheduled export
	if cfg.Export.Schedule != "" {
		exporter := export.NewExporter(store, cfg.Export.Dir, logger)
		scheduler, err := exporter.Schedule(ctx, cfg.Export.Schedule)
		if err != nil {
			logger.Fatal("failed to schedule export", zap.Error(err))
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	// 6. Start HTTP server
	handler := whttp.NewHandler(whttp.HandlerOptions{
		Predictor:    predictor,
		Store:        store,
		Publisher:    hub,
		Stream:       http.HandlerFunc(hub.HandleWebSocket),
		Metrics:      promhttp.Handler(),
		DefaultLimit: cfg.Logs.DefaultLimit,
		Logger:       logger,
	})
	server := whttp.NewServer(whttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, handler, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 7. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			stop()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}
