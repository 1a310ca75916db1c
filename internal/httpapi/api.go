// Package httpapi is the HTTP layer: routing, the security middleware
// chain, and the request handlers.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"parley.org/internal/audit"
	"parley.org/internal/auth"
	"parley.org/internal/obs"
	"parley.org/internal/space"
	"parley.org/internal/token"
)

// ReadyProbe reports whether the service can reach its dependencies.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Authenticator verifies credentials and resolves permissions.
// *auth.Service satisfies it.
type Authenticator interface {
	Register(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) (string, error)
	Permissions(ctx context.Context, spaceID int64, userID string) (auth.Perms, error)
}

// SpaceStore persists spaces and messages. *space.Store satisfies it.
type SpaceStore interface {
	Create(ctx context.Context, name, owner string) (space.Space, error)
	List(ctx context.Context) ([]space.Space, error)
	AddMember(ctx context.Context, spaceID int64, userID string, perms auth.Perms) error
	PostMessage(ctx context.Context, spaceID int64, author, text string) (space.Message, error)
	ReadMessage(ctx context.Context, spaceID, msgID int64) (space.Message, error)
	ListMessages(ctx context.Context, spaceID int64, since time.Time) ([]space.Message, error)
}

// AuditRecorder writes and reads the request audit trail.
// *audit.Recorder satisfies it.
type AuditRecorder interface {
	Start(ctx context.Context, method, path string) (int64, error)
	End(ctx context.Context, id int64, method, path, subject string, status int) error
	Read(ctx context.Context) ([]audit.Entry, error)
}

// Config carries the API dependencies and tuning knobs.
type Config struct {
	Auth    Authenticator
	Tokens  token.Store
	Spaces  SpaceStore
	Audit   AuditRecorder
	Ready   ReadyProbe
	Version string

	// AllowedOrigins is the exact-match CORS allow set. Empty means no
	// cross-origin access.
	AllowedOrigins []string

	// RatePerSecond and Burst shape the shared token bucket. Zero rate
	// disables limiting.
	RatePerSecond float64
	Burst         int
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    Authenticator
	tokens  token.Store
	spaces  SpaceStore
	audit   AuditRecorder
	ready   ReadyProbe
	version string
	origins map[string]bool
	limiter *rate.Limiter
}

func New(cfg Config) *API {
	a := &API{
		mux:     http.NewServeMux(),
		auth:    cfg.Auth,
		tokens:  cfg.Tokens,
		spaces:  cfg.Spaces,
		audit:   cfg.Audit,
		ready:   cfg.Ready,
		version: cfg.Version,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin != "" {
			a.origins[origin] = true
		}
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RatePerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	a.mux.HandleFunc("POST /users", a.handleRegister)
	a.mux.HandleFunc("POST /sessions", a.requireBasicCredentials(a.handleLogin))
	a.mux.HandleFunc("DELETE /sessions", a.requireAuthentication(a.handleLogout))

	a.mux.HandleFunc("POST /spaces", a.requireAuthentication(a.handleCreateSpace))
	a.mux.HandleFunc("GET /spaces", a.requireAuthentication(a.handleListSpaces))
	a.mux.HandleFunc("POST /spaces/{spaceID}/messages", a.requirePermissions("w", a.handlePostMessage))
	a.mux.HandleFunc("GET /spaces/{spaceID}/messages", a.requirePermissions("r", a.handleListMessages))
	a.mux.HandleFunc("GET /spaces/{spaceID}/messages/{msgID}", a.requirePermissions("r", a.handleReadMessage))
	a.mux.HandleFunc("POST /spaces/{spaceID}/members", a.requirePermissions("rwd", a.handleAddMember))

	a.mux.HandleFunc("GET /logs", a.requireAuthentication(a.handleReadLogs))

	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	a.mux.Handle("GET /metrics", obs.Handler())

	return a
}

// Handler assembles the middleware chain. The rate limiter sits outermost
// so rejected requests cost almost nothing; the audit recorder wraps the
// authentication layers so completion rows carry the resolved subject.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.validateToken(h)
	h = a.authenticateBasic(h)
	h = a.auditTrail(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = requireJSONContent(h)
	h = a.cors(h)
	h = a.rateLimit(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "parley-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
