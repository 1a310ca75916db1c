package httpapi

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley.org/internal/audit"
	"parley.org/internal/auth"
	"parley.org/internal/obs"
)

type ctxKey string

const requestIDCtxKey ctxKey = "request_id"

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestID assigns each request an identifier, honoring one supplied by
// the client, and echoes it in the X-Request-Id response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), requestIDCtxKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request identifier, if one was assigned.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rid, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return rid
	}
	return ""
}

// LoggingJSON emits one structured log line per completed request.
func LoggingJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.LogRequest(map[string]any{
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"level":       "info",
			"msg":         "request_complete",
			"request_id":  RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// rateLimit rejects requests above the shared token bucket with 429 and a
// Retry-After hint. The bucket is shared across clients so total load on
// the backing stores stays bounded.
func (a *API) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			obs.RateLimited()
			w.Header().Set("Retry-After", "2")
			writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cors implements an exact-match allow set. Allowed origins are echoed
// back with Vary: Origin; the wildcard is never sent because responses
// carry credentials. Preflights from origins outside the set fail closed.
func (a *API) cors(next http.Handler) http.Handler {
	const (
		allowedMethods = "GET,POST,DELETE"
		allowedHeaders = "Content-Type,Authorization,X-Request-Id"
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && a.origins[origin]
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireJSONContent rejects mutating requests whose declared content type
// is not application/json before any body is read.
func requireJSONContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				writeError(w, r, http.StatusUnsupportedMediaType, "only application/json supported")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets browser hardening headers on every response. The
// API serves no markup, so the CSP denies everything and responses are
// never cached.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "0")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy",
			"default-src 'none'; frame-ancestors 'none'; sandbox")
		h.Set("Server", "")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits the request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// auditTrail installs the mutable principal slot, writes the audit start
// row, and writes the completion row after the handler returns. The slot
// must be installed here, outside the authentication layers, so the
// completion row can see the subject they resolve.
func (a *API) auditTrail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithPrincipal(r.Context())
		ctx = audit.WithRequestID(ctx, RequestIDFromContext(ctx))
		if a.audit == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		id, err := a.audit.Start(ctx, r.Method, r.URL.Path)
		if err != nil {
			obs.LogError("audit_start_failed", err)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		ctx = audit.WithID(ctx, id)

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r.WithContext(ctx))

		subject, _ := auth.SubjectFromContext(ctx)
		if err := a.audit.End(ctx, id, r.Method, r.URL.Path, subject, sw.code); err != nil {
			obs.LogError("audit_end_failed", err)
		}
	})
}
