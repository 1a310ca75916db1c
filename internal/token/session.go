package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"
)

const sessionCookie = "PARLEYSESSION"

// SessionStore binds tokens to a server-side session keyed by a browser
// cookie. The externally visible token is a digest of the session
// identifier, re-derived from the live session on every read, so a fixated
// or swapped session cookie never validates against a token issued for a
// different session.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]Token
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]Token), now: time.Now}
}

func (s *SessionStore) Create(_ context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	// Invalidate any session the connection already carries before
	// opening a fresh one (session fixation defense).
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}

	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	sessionID := b64.EncodeToString(buf[:])

	s.mu.Lock()
	s.sessions[sessionID] = *t.clone()
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  t.Expiry,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	return digest(sessionID), nil
}

func (s *SessionStore) Read(_ context.Context, r *http.Request, tokenID string) (*Token, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, ErrNotFound
	}
	provided, err := b64.DecodeString(tokenID)
	if err != nil {
		return nil, ErrNotFound
	}
	computed := sha256.Sum256([]byte(cookie.Value))
	if subtle.ConstantTimeCompare(provided, computed[:]) != 1 {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	t, ok := s.sessions[cookie.Value]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if t.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
		return nil, ErrExpired
	}
	return t.clone(), nil
}

func (s *SessionStore) Revoke(_ context.Context, r *http.Request, tokenID string) error {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	provided, err := b64.DecodeString(tokenID)
	if err != nil {
		return ErrNotFound
	}
	computed := sha256.Sum256([]byte(cookie.Value))
	if subtle.ConstantTimeCompare(provided, computed[:]) != 1 {
		return ErrNotFound
	}
	s.mu.Lock()
	delete(s.sessions, cookie.Value)
	s.mu.Unlock()
	return nil
}

func digest(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return b64.EncodeToString(sum[:])
}
