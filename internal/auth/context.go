package auth

import (
	"context"
	"strings"
	"sync"
)

type ctxKey string

const principalKey ctxKey = "auth_principal"

// principal is the per-request "resolved principal" slot. It is installed
// once, early in the middleware chain, and mutated as the credential and
// token paths resolve identity, mirroring how both paths feed a single
// slot. The audit recorder reads it after the handler has run, which is
// why the slot is a holder rather than an immutable context value.
type principal struct {
	mu      sync.Mutex
	subject string
	attrs   map[string]string
}

// WithPrincipal installs an empty resolved-principal slot.
func WithPrincipal(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalKey, &principal{attrs: make(map[string]string)})
}

func holder(ctx context.Context) *principal {
	p, _ := ctx.Value(principalKey).(*principal)
	return p
}

// SetSubject records the authenticated identity. A no-op when no slot is
// installed.
func SetSubject(ctx context.Context, subject string) {
	p := holder(ctx)
	if p == nil {
		return
	}
	p.mu.Lock()
	p.subject = strings.TrimSpace(subject)
	p.mu.Unlock()
}

// SubjectFromContext returns the resolved principal, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	p := holder(ctx)
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subject == "" {
		return "", false
	}
	return p.subject, true
}

// SetAttribute records a request-scoped fact derived from a validated
// token. Keys are server-controlled; values come only from what the
// issuing store embedded.
func SetAttribute(ctx context.Context, key, value string) {
	p := holder(ctx)
	if p == nil || key == "" {
		return
	}
	p.mu.Lock()
	p.attrs[key] = value
	p.mu.Unlock()
}

// Attribute returns a request-scoped attribute set by the token path.
func Attribute(ctx context.Context, key string) (string, bool) {
	p := holder(ctx)
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.attrs[key]
	return v, ok
}
