package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"parley.org/internal/auth"
	"parley.org/internal/obs"
	"parley.org/internal/token"
)

const (
	authHeader   = "Authorization"
	basicScheme  = "Basic "
	bearerScheme = "Bearer "

	expiredChallenge = `Bearer error="invalid_token", error_description="Expired"`
	bearerChallenge  = "Bearer"
	basicChallenge   = `Basic realm="/", charset="UTF-8"`
)

const bearerIDCtxKey ctxKey = "bearer_token_id"

// authenticateBasic resolves HTTP Basic credentials into the principal
// slot. A malformed header is a client error; bad credentials leave the
// subject unset so downstream guards can reject uniformly.
func (a *API) authenticateBasic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(authHeader)
		if !strings.HasPrefix(header, basicScheme) {
			next.ServeHTTP(w, r)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok {
			writeError(w, r, http.StatusBadRequest, "malformed authorization header")
			return
		}
		subject, err := a.auth.Authenticate(r.Context(), username, password)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			obs.AuthFailure("basic")
			next.ServeHTTP(w, r)
			return
		}
		auth.SetSubject(r.Context(), subject)
		next.ServeHTTP(w, r)
	})
}

// validateToken resolves a Bearer token into the principal slot. Tokens
// that fail integrity or lookup pass through unauthenticated; an expired
// token is answered directly so clients learn to reauthenticate rather
// than retry.
func (a *API) validateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(authHeader)
		if !strings.HasPrefix(header, bearerScheme) {
			next.ServeHTTP(w, r)
			return
		}
		tokenID := strings.TrimSpace(header[len(bearerScheme):])
		if tokenID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), bearerIDCtxKey, tokenID)
		r = r.WithContext(ctx)

		tok, err := a.tokens.Read(ctx, r, tokenID)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				obs.AuthFailure("bearer")
				w.Header().Set("WWW-Authenticate", expiredChallenge)
				writeError(w, r, http.StatusUnauthorized, "token expired")
				return
			}
			obs.AuthFailure("bearer")
			next.ServeHTTP(w, r)
			return
		}
		if tok.Expired(time.Now()) {
			obs.AuthFailure("bearer")
			w.Header().Set("WWW-Authenticate", expiredChallenge)
			writeError(w, r, http.StatusUnauthorized, "token expired")
			return
		}

		auth.SetSubject(ctx, tok.Subject)
		for name, value := range tok.Attributes {
			auth.SetAttribute(ctx, name, value)
		}
		next.ServeHTTP(w, r)
	})
}

// bearerTokenID returns the raw token identifier presented on the
// request, if any.
func bearerTokenID(ctx context.Context) string {
	if id, ok := ctx.Value(bearerIDCtxKey).(string); ok {
		return id
	}
	return ""
}
