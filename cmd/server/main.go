package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/inference"
	"github.com/liamcoop/studentrisk/internal/config"
	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/models"
	"github.com/liamcoop/studentrisk/students"
)

// ReferenceFile is the default labeled dataset inside the artifacts dir.
const ReferenceFile = "reference.csv"

type app struct {
	server *Server
	db     *sqlx.DB
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// newApp loads the models and wires the optional student store and the
// metrics dataset. Artifact failures are returned as *models.ModelNotLoadedError.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry, err := models.LoadArtifacts(cfg.ArtifactsDir,
		models.WithUnknownSelectorPolicy(cfg.UnknownSelector),
		models.WithRequired(cfg.Required...),
	)
	if err != nil {
		return nil, err
	}

	a := &app{}
	opts := []inference.Option{inference.WithTopN(cfg.TopN)}
	var serverOpts []ServerOption

	var cached *students.CachedStore
	if cfg.DatabaseURL != "" {
		db, err := students.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		cached = students.NewCachedStore(
			students.NewPostgresStore(db),
			students.NewInMemoryDatasetCache(students.CacheConfig{TTL: cfg.CacheTTL}),
		)
		opts = append(opts, inference.WithStudentStore(cached))
		serverOpts = append(serverOpts, WithPing(db.PingContext))
	}

	source, err := datasetSource(cfg, cached)
	if err != nil {
		a.Close()
		return nil, err
	}
	if source != nil {
		opts = append(opts, inference.WithDatasetSource(source))
	}

	svc := inference.NewService(registry, opts...)
	serverOpts = append(serverOpts, WithAllowedOrigins(cfg.AllowedOrigins))
	a.server = NewServer(svc, serverOpts...)
	return a, nil
}

// datasetSource picks the metrics dataset: the student store, an explicit
// CSV path, or reference.csv next to the artifacts when present.
func datasetSource(cfg *config.Config, store *students.CachedStore) (fairness.Source, error) {
	switch cfg.MetricsDataset {
	case config.DatasetPostgres:
		if store == nil {
			return nil, errors.New("metrics dataset postgres requires database.url")
		}
		return store, nil
	case "":
		path := filepath.Join(cfg.ArtifactsDir, ReferenceFile)
		if _, err := os.Stat(path); err != nil {
			logger.Warn("no reference dataset, metrics are unavailable", "path", path)
			return nil, nil
		}
		return loadCSVSource(path)
	default:
		return loadCSVSource(cfg.MetricsDataset)
	}
}

func loadCSVSource(path string) (fairness.Source, error) {
	ds, err := fairness.LoadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load metrics dataset: %w", err)
	}
	logger.Info("reference dataset loaded", "path", path, "examples", ds.Len())
	return fairness.NewStaticSource(ds), nil
}

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	dotEnv := flag.String("env-file", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*configFile, *dotEnv)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		var nl *models.ModelNotLoadedError
		if errors.As(err, &nl) {
			logger.Fatal("Model artifacts failed to load", "selector", nl.Selector, "path", nl.Path, "error", nl.Err)
		}
		logger.Fatal("Failed to create server", "error", err)
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "models", a.server.svc.Registry().Selectors())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
