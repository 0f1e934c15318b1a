// Package handler exposes the auth use-cases over HTTP with the {success, message, data} envelope.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"auth-session/backend/internal/identity/service"
	"auth-session/backend/internal/security"
	"auth-session/backend/internal/server/middleware"
)

const maxJSONBodyBytes = 1 << 20

// Response messages.
const (
	msgRegistered       = "User registered successfully"
	msgLoggedIn         = "User logged in successfully"
	msgLoggedOut        = "User logged out successfully"
	msgRefreshed        = "User token refreshed successfully"
	msgGoogleLogin      = "User logged in with Google"
	msgGoogleSignup     = "User signed up with Google"
	msgGoogleRegistered = "User registered and logged in with Google"
	msgProfileRequired  = "Profile completion required"
)

// AuthService is the set of use-cases served by Handler. *service.AuthService implements it.
type AuthService interface {
	Login(ctx context.Context, email, password string, client service.ClientInfo) (*security.Tokens, error)
	Register(ctx context.Context, in service.RegisterInput, client service.ClientInfo) (*security.Tokens, error)
	Refresh(ctx context.Context, refreshToken string, client service.ClientInfo) (*security.Tokens, error)
	Logout(ctx context.Context, refreshToken, sessionID string, client service.ClientInfo) error
	GoogleLogin(ctx context.Context, idToken string, client service.ClientInfo) (*security.Tokens, error)
	GoogleSignup(ctx context.Context, idToken, password string, client service.ClientInfo) (service.SignupResult, error)
	GoogleCallback(ctx context.Context, idToken string, client service.ClientInfo) (*security.Tokens, bool, error)
}

// Handler serves POST /auth/* endpoints.
type Handler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewHandler returns a Handler for auth. A nil logger uses slog.Default().
func NewHandler(auth AuthService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, logger: logger}
}

// Routes mounts the auth endpoints on r. optionalAuth runs before logout so a bearer
// token, when sent, binds the logout to its session.
func (h *Handler) Routes(r chi.Router, optionalAuth func(http.Handler) http.Handler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh-token", h.Refresh)
	r.With(optionalAuth).Post("/logout", h.Logout)
	r.Route("/google", func(r chi.Router) {
		r.Post("/login", h.GoogleLogin)
		r.Post("/signup", h.GoogleSignup)
		r.Post("/callback", h.GoogleCallback)
	})
}

type registerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type googleRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type profileCompletion struct {
	NeedsProfileCompletion bool   `json:"needsProfileCompletion"`
	Email                  string `json:"email"`
	FirstName              string `json:"firstName"`
	LastName               string `json:"lastName"`
	Picture                string `json:"picture"`
}

// Register handles POST /auth/register and answers 201 with a token pair.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decode(w, r, &body) {
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	body.FirstName = strings.TrimSpace(body.FirstName)
	body.LastName = strings.TrimSpace(body.LastName)
	if msg := validateRegister(body); msg != "" {
		writeFailure(w, http.StatusBadRequest, msg)
		return
	}
	tokens, err := h.auth.Register(r.Context(), service.RegisterInput{
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Email:       body.Email,
		Password:    body.Password,
		Phone:       strings.TrimSpace(body.Phone),
		DateOfBirth: strings.TrimSpace(body.DateOfBirth),
	}, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, msgRegistered, tokens)
}

// Login handles POST /auth/login with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if msg := validateLogin(body); msg != "" {
		writeFailure(w, http.StatusBadRequest, msg)
		return
	}
	tokens, err := h.auth.Login(r.Context(), body.Email, body.Password, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgLoggedIn, tokens)
}

// Refresh reads the refresh token from the body or, failing that, the X-Refresh-Token header.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}
	tokens, err := h.auth.Refresh(r.Context(), token, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgRefreshed, tokens)
}

// Logout handles POST /auth/logout, ending the session bound to the refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}
	sessionID, _ := middleware.GetSessionID(r.Context())
	if err := h.auth.Logout(r.Context(), token, sessionID, clientInfo(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgLoggedOut, nil)
}

// GoogleLogin handles POST /auth/google/login for an existing account.
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := googleBody(w, r)
	if !ok {
		return
	}
	tokens, err := h.auth.GoogleLogin(r.Context(), body.Token, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgGoogleLogin, tokens)
}

// GoogleSignup creates an account when a password is supplied. Without one it answers
// success with the Google profile so the client can finish registration.
func (h *Handler) GoogleSignup(w http.ResponseWriter, r *http.Request) {
	body, ok := googleBody(w, r)
	if !ok {
		return
	}
	if body.Password != "" {
		if msg := validatePassword(body.Password); msg != "" {
			writeFailure(w, http.StatusBadRequest, msg)
			return
		}
	}
	res, err := h.auth.GoogleSignup(r.Context(), body.Token, body.Password, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	switch v := res.(type) {
	case *service.SignedUp:
		writeSuccess(w, http.StatusCreated, msgGoogleSignup, v.Tokens)
	case *service.NeedsProfileCompletion:
		writeSuccess(w, http.StatusOK, msgProfileRequired, profileCompletion{
			NeedsProfileCompletion: true,
			Email:                  v.Email,
			FirstName:              v.FirstName,
			LastName:               v.LastName,
			Picture:                v.Picture,
		})
	default:
		h.writeError(w, r, errors.New("google signup: unexpected result"))
	}
}

// GoogleCallback handles POST /auth/google/callback: login, or registration when no account exists.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	body, ok := googleBody(w, r)
	if !ok {
		return
	}
	tokens, registered, err := h.auth.GoogleCallback(r.Context(), body.Token, clientInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if registered {
		writeSuccess(w, http.StatusCreated, msgGoogleRegistered, tokens)
		return
	}
	writeSuccess(w, http.StatusOK, msgGoogleLogin, tokens)
}

func googleBody(w http.ResponseWriter, r *http.Request) (googleRequest, bool) {
	var body googleRequest
	if !decode(w, r, &body) {
		return body, false
	}
	body.Token = strings.TrimSpace(body.Token)
	if body.Token == "" {
		writeFailure(w, http.StatusBadRequest, "token is required")
		return body, false
	}
	return body, true
}

func refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body refreshRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if !decode(w, r, &body) {
			return "", false
		}
	}
	token := strings.TrimSpace(body.RefreshToken)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
	}
	if token == "" {
		writeFailure(w, http.StatusBadRequest, "refreshToken is required")
		return "", false
	}
	return token, true
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// writeError maps a use-case error to its status. Upstream and unexpected failures are
// reported to Sentry; their internal cause never reaches the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		h.capture(r, err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	status := statusFor(se.Kind)
	switch se.Kind {
	case service.KindRateLimited:
		w.Header().Set("Retry-After", strconv.FormatInt(se.RetryAfter, 10))
	case service.KindUpstream:
		h.capture(r, err)
	}
	writeFailure(w, status, se.Message)
}

func (h *Handler) capture(r *http.Request, err error) {
	h.logger.Error("auth request failed", "path", r.URL.Path, "error", err)
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindInvalidCredentials, service.KindInvalidSession, service.KindAccountInactive, service.KindNoAccount:
		return http.StatusUnauthorized
	case service.KindInvalidToken, service.KindRateLimited:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}
