// Server runs the auth HTTP API, the gRPC health service and (unless disabled) the session sweeper.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"auth-session/backend/internal/config"
	healthhandler "auth-session/backend/internal/health/handler"
	identityhandler "auth-session/backend/internal/identity/handler"
	"auth-session/backend/internal/logging"
	"auth-session/backend/internal/server"
	"auth-session/backend/internal/server/middleware"
	sessionservice "auth-session/backend/internal/session/service"
	"auth-session/backend/internal/telemetry"
	telemetryotel "auth-session/backend/internal/telemetry/otel"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthCheckInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	logOpts := logging.Options{Level: cfg.LogLevel, ServiceName: cfg.ServiceName}
	if providers.Enabled {
		logOpts.LoggerProvider = providers.LoggerProvider
	}
	logger := logging.New(logOpts)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			log.Fatalf("sentry: %v", err)
		}
	}

	deps, err := buildDeps(ctx, cfg, providers, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer deps.Close()

	var bg []func(context.Context)
	if cfg.SessionSweepInProcess {
		sweeper := sessionservice.NewSweeper(deps.Sessions, cfg.SweepInterval(), logger.With("component", "sweeper"))
		bg = append(bg, sweeper.Run)
	}
	healthSrv := healthhandler.NewServer(deps.Checker, logger)
	bg = append(bg, func(ctx context.Context) { healthSrv.Run(ctx, healthCheckInterval) })
	for _, run := range bg {
		go run(ctx)
	}

	httpSrv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: server.NewRouter(server.RouterDeps{
			Auth:           identityhandler.NewHandler(deps.Auth, logger),
			Tokens:         deps.Tokens,
			Health:         deps.Checker,
			Throttler:      middleware.NewThrottler(cfg.ThrottlerLimit, cfg.ThrottleWindow()),
			AllowedOrigins: cfg.AllowedOriginsList(),
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	grpcSrv := server.NewGRPCServer(server.Deps{Health: healthSrv})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	// Let in-flight async event emits finish before the sinks close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	sentry.Flush(2 * time.Second)
	log.Println("server stopped")
}
