package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/config"
	"github.com/stratuswatch/detect-engine/internal/contextprov"
	"github.com/stratuswatch/detect-engine/internal/emitter"
	"github.com/stratuswatch/detect-engine/internal/engine"
	"github.com/stratuswatch/detect-engine/internal/escalation"
	"github.com/stratuswatch/detect-engine/internal/handlers"
	"github.com/stratuswatch/detect-engine/internal/repository"
	"github.com/stratuswatch/detect-engine/internal/server"
	"github.com/stratuswatch/detect-engine/internal/suppression"
	"github.com/stratuswatch/detect-engine/pkg/logging"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	// Initialize finding repository
	var repo repository.Repository
	var readiness func(ctx context.Context) error
	if cfg.Database.Enabled {
		connString := cfg.Database.Postgres.ConnString()

		logger.Info("Running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		pgRepo, err := repository.NewPostgresRepository(context.Background(), connString)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		repo = pgRepo
		readiness = pgRepo.Ping
	} else {
		logger.Info("Database disabled, using in-memory repository")
		repo = repository.NewMemoryRepository(cfg.Engine.RetentionFindings, cfg.Engine.RetentionFindings)
	}
	defer repo.Close()

	// Initialize suppression store
	var dedupe suppression.Store
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize

		store := suppression.NewRedisStore(redis.NewClient(opts))
		if err := store.Ping(context.Background()); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		dedupe = store
	} else {
		logger.Info("Redis disabled, using in-memory suppression store")
		dedupe = suppression.NewMemoryStore()
	}

	// Initialize finding lifecycle publisher
	var publisher escalation.Publisher
	if cfg.NATS.Enabled {
		nc, err := escalation.NewNATSPublisher(cfg.NATS.URL, "detect-engine")
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher = nc
	} else {
		publisher = &escalation.NoopPublisher{}
	}
	defer publisher.Close()

	// Load the rule catalog
	var cat *catalog.Catalog
	if cfg.Engine.RuleFile != "" {
		cat, err = catalog.LoadFile(cfg.Engine.RuleFile, cfg.Engine.AllowedExplanationVariables)
		if err != nil {
			log.Fatalf("Failed to load rule file: %v", err)
		}
	} else {
		cat, err = catalog.New(catalog.DefaultRules(), cfg.Engine.AllowedExplanationVariables)
		if err != nil {
			log.Fatalf("Failed to build default catalog: %v", err)
		}
	}
	logger.Info("Rule catalog loaded", "rules", cat.Len())

	// Initialize collaborators
	provider := contextprov.NewHTTPProvider(cfg.Context.URL, cfg.Context.Timeout)
	cases := escalation.NewHTTPCaseClient(cfg.Escalation.URL, cfg.Escalation.Timeout)

	em := emitter.New(emitter.Config{
		Repository:          repo,
		Cases:               cases,
		Publisher:           publisher,
		Logger:              logger,
		MaxSupportingEvents: cfg.Engine.MaxSupportingEvents,
		AllowedVariables:    cfg.Engine.AllowedExplanationVariables,
	})

	eng := engine.New(cfg.Engine, cat, provider, dedupe, em, logger)

	// Start state sweeper in background
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go eng.RunSweeper(sweepCtx, 1*time.Minute)

	// Setup HTTP server
	handler := handlers.NewHandler(eng, repo, logger, cfg.Engine.AllowedExplanationVariables, readiness)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Detection service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
