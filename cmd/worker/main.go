// Worker runs the expired-session sweep outside the API process. Run it with
// SESSION_SWEEP_IN_PROCESS=false on the API so only one sweeper deletes sessions.
// DATABASE_URL is required; an in-memory session store cannot be shared with the API.
// JWT signing keys are not needed.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"auth-session/backend/internal/config"
	"auth-session/backend/internal/db"
	"auth-session/backend/internal/logging"
	sessionrepo "auth-session/backend/internal/session/repository"
	sessionservice "auth-session/backend/internal/session/service"
	telemetryotel "auth-session/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.LoadWithoutSigningKeys()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-worker", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	logOpts := logging.Options{Level: cfg.LogLevel, ServiceName: cfg.ServiceName + "-worker"}
	if providers.Enabled {
		logOpts.LoggerProvider = providers.LoggerProvider
	}
	logger := logging.New(logOpts)

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("worker: database: %v", err)
	}
	defer conn.Close()

	sessions := sessionservice.NewSessionService(sessionrepo.NewPostgresRepository(conn), cfg.PendingGrace(), logger)
	sweeper := sessionservice.NewSweeper(sessions, cfg.SweepInterval(), logger.With("component", "sweeper"))

	log.Printf("worker: sweeping sessions every %s", cfg.SweepInterval())
	sweeper.Run(ctx)
	log.Println("worker: stopped")
}
