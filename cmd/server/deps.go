package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"auth-session/backend/internal/audit"
	auditrepo "auth-session/backend/internal/audit/repository"
	"auth-session/backend/internal/config"
	"auth-session/backend/internal/db"
	"auth-session/backend/internal/health"
	"auth-session/backend/internal/identity/service"
	"auth-session/backend/internal/oauth"
	"auth-session/backend/internal/policy/engine"
	"auth-session/backend/internal/ratelimit"
	"auth-session/backend/internal/security"
	sessionrepo "auth-session/backend/internal/session/repository"
	sessionservice "auth-session/backend/internal/session/service"
	"auth-session/backend/internal/telemetry"
	telemetryotel "auth-session/backend/internal/telemetry/otel"
	"auth-session/backend/internal/telemetry/producer"
	"auth-session/backend/internal/user/cache"
	"auth-session/backend/internal/user/directory"
)

// memoryDirectoryURL selects the in-process user directory (local development).
const memoryDirectoryURL = "memory://"

// deps are the wired collaborators of the API process.
type deps struct {
	Auth     *service.AuthService
	Sessions *sessionservice.SessionService
	Tokens   *security.TokenIssuer
	Checker  *health.Checker

	closers []func() error
}

// Close releases connections in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, providers *telemetryotel.Providers, logger *slog.Logger) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	// Session store and audit log.
	var (
		sessionRepo sessionrepo.Repository
		auditRepo   auditrepo.Repository
		dbPinger    health.Pinger
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		d.closers = append(d.closers, conn.Close)
		sessionRepo = sessionrepo.NewPostgresRepository(conn)
		auditRepo = auditrepo.NewPostgresRepository(conn)
		dbPinger = conn
	} else {
		logger.Warn("DATABASE_URL not set; sessions are kept in memory and audit logs are not persisted")
		sessionRepo = sessionrepo.NewMemoryRepository()
	}
	d.Sessions = sessionservice.NewSessionService(sessionRepo, cfg.PendingGrace(), logger.With("component", "sessions"))

	// User cache and login rate limiter.
	var (
		store       cache.Store
		limiter     ratelimit.Limiter
		cachePinger health.Pinger
	)
	policy := ratelimit.Policy{MaxAttempts: cfg.RateLimitMaxAttempts, Lockout: cfg.LockoutWindow()}
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		store = cache.NewRedisStore(client)
		limiter = ratelimit.NewRedisLimiter(client, policy)
		cachePinger = health.RedisPinger(client)
	} else {
		store = cache.NewMemoryStore()
		limiter = ratelimit.NewMemoryLimiter(policy)
	}
	userCache := cache.NewUserCache(store, cfg.UserCacheTTL(), logger.With("component", "user_cache"))

	var dir directory.Directory
	if strings.EqualFold(cfg.UsersServiceURL, memoryDirectoryURL) {
		logger.Warn("using the in-memory user directory")
		dir = directory.NewMemoryDirectory(nil)
	} else {
		dir = directory.NewHTTPClient(cfg.UsersServiceURL, cfg.UsersTimeout())
	}

	keys, err := security.LoadSigningKeys(cfg.JWTSecretKey, cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	d.Tokens = security.NewTokenIssuer(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	var verifier oauth.Verifier
	if cfg.GoogleClientID != "" {
		gv, err := oauth.NewGoogleVerifier(ctx, cfg.GoogleClientID, cfg.GoogleTimeout())
		if err != nil {
			return nil, fmt.Errorf("google verifier: %w", err)
		}
		verifier = gv
	}

	var evaluator *engine.OPAEvaluator
	if cfg.AdmissionPolicyPath != "" {
		evaluator, err = engine.NewOPAEvaluatorFromFile(ctx, cfg.AdmissionPolicyPath, logger)
	} else {
		evaluator, err = engine.NewOPAEvaluator(ctx, engine.DefaultPolicy, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("admission policy: %w", err)
	}

	// Auth events: OTel log records and, when configured, a Kafka topic.
	var sinks telemetry.Fanout
	if providers.Enabled {
		sinks = append(sinks, telemetryotel.NewEventEmitter(providers.LoggerProvider))
	}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaAuthEventsTopic); kp != nil {
		d.closers = append(d.closers, kp.Close)
		sinks = append(sinks, kp)
	}
	var emitter telemetry.EventEmitter
	if len(sinks) > 0 {
		emitter = sinks
	}
	auditLogger := audit.NewLogger(auditRepo, emitter, logger.With("component", "audit"))

	d.Auth = service.NewAuthService(limiter, dir, userCache, d.Sessions, d.Tokens, verifier, logger.With("component", "auth"))
	d.Auth.SetAdmission(evaluator)
	d.Auth.SetAuditLogger(auditLogger)

	d.Checker = health.NewChecker(dbPinger, cachePinger, evaluator)
	ok = true
	return d, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return client, nil
}
