package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldclock/agent/internal/config"
	"github.com/fieldclock/agent/internal/handlers"
	custommw "github.com/fieldclock/agent/internal/middleware"
	"github.com/fieldclock/agent/internal/observability"
	"github.com/fieldclock/agent/internal/repository"
	"github.com/fieldclock/agent/internal/services"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize telemetry
	ctx := context.Background()
	telemetry, err := observability.Initialize(ctx, observability.NewConfig("attendance-agent", serviceVersion))
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// Initialize database and repositories
	db, err := repository.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite database: %v", err)
	}
	defer db.Close()

	queueRepo := repository.NewQueueRepository(db)
	credRepo := repository.NewCredentialRepository(db)

	// Initialize services
	endpoints, err := services.NewEndpoints(cfg.APIBaseURL)
	if err != nil {
		log.Fatalf("Failed to configure remote endpoints: %v", err)
	}

	tokenService := services.NewTokenService(credRepo, endpoints, nil)
	clockService := services.NewClockService(queueRepo)

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Fatalf("Failed to create sync metrics: %v", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		log.Fatalf("Failed to create HTTP metrics: %v", err)
	}

	err = syncMetrics.RegisterQueueDepth(func(ctx context.Context) (map[string]int, error) {
		counts, err := queueRepo.CountByStatus(ctx)
		if err != nil {
			return nil, err
		}
		depth := make(map[string]int, len(counts))
		for status, n := range counts {
			depth[string(status)] = n
		}
		return depth, nil
	})
	if err != nil {
		log.Fatalf("Failed to register queue depth gauge: %v", err)
	}

	placeholderURL := cfg.Sync.PhotoPlaceholderURL
	if placeholderURL == "" {
		placeholderURL = services.DefaultPhotoPlaceholderURL
	}

	syncService := services.NewSyncService(queueRepo, credRepo, tokenService, endpoints, services.SyncOptions{
		Uploader:      &services.StaticPhotoUploader{URL: placeholderURL},
		Metrics:       syncMetrics,
		BatchSize:     cfg.Sync.BatchSize,
		RetentionDays: cfg.Sync.RetentionDays,
		CleanupLimit:  cfg.Sync.CleanupLimit,
	})

	// Initialize handlers
	clockHandler := handlers.NewClockHandler(clockService)
	syncHandler := handlers.NewSyncHandler(syncService, queueRepo)
	healthHandler := handlers.NewHealthHandler()

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(observability.MetricsMiddleware(httpMetrics))
	r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)

	r.Post("/api/clock", clockHandler.Clock)
	r.Post("/api/sync", syncHandler.Trigger)
	r.Get("/api/queue/status", syncHandler.Status)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // A full sync pass can take a while
		IdleTimeout:  60 * time.Second,
	}

	// Scheduling policy: the engine never decides when to sync. A periodic
	// trigger is optional; passes share the handler's non-reentrant guard
	// with the HTTP trigger.
	stopTicker := make(chan struct{})
	if cfg.Sync.IntervalSeconds > 0 {
		interval := time.Duration(cfg.Sync.IntervalSeconds) * time.Second
		ticker := time.NewTicker(interval)
		log.Printf("Periodic sync enabled (every %s)", interval)

		go func() {
			for {
				select {
				case <-ticker.C:
					result, err := syncHandler.RunPass(ctx)
					if err != nil {
						log.Printf("Periodic sync failed: %v", err)
					} else if result != nil {
						log.Printf("Periodic sync: attempted=%d succeeded=%d failed=%d",
							result.Attempted, result.Succeeded, result.Failed)
					}
				case <-stopTicker:
					ticker.Stop()
					return
				}
			}
		}()
	}

	go func() {
		log.Printf("Attendance agent starting on %s", cfg.ServerAddress)
		log.Printf("Queue database: %s", cfg.DatabasePath)
		log.Printf("Remote API base: %s", cfg.APIBaseURL)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	close(stopTicker)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Telemetry shutdown error: %v", err)
	}

	log.Println("Agent stopped")
}
