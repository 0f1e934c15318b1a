package server

import (
	"log/slog"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	healthhandler "auth-session/backend/internal/health/handler"
	identityhandler "auth-session/backend/internal/identity/handler"
	"auth-session/backend/internal/server/middleware"
)

// RouterDeps holds what the HTTP router serves.
type RouterDeps struct {
	// Auth serves /auth/*.
	Auth *identityhandler.Handler
	// Tokens verifies bearer access tokens (logout binds to the token's session).
	Tokens middleware.TokenVerifier
	// Health backs GET /health.
	Health healthhandler.Checker
	// Throttler limits /auth/* per client IP. Nil disables throttling.
	Throttler *middleware.Throttler
	// AllowedOrigins are the CORS origins echoed back to browsers.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP API: GET /health and the /auth routes, wrapped in request id,
// Sentry hub, panic recovery, request logging, CORS and OTel HTTP instrumentation.
func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(sentryhttp.New(sentryhttp.Options{}).Handle)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/health", healthhandler.HTTP(d.Health))

	r.Route("/auth", func(r chi.Router) {
		r.Use(d.Throttler.Middleware)
		d.Auth.Routes(r, middleware.Authenticate(d.Tokens, false))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Not found"}`))
	})

	return otelhttp.NewHandler(r, "auth-session",
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/health" }),
	)
}
