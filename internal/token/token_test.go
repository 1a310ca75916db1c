package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal in-memory Store used as wrapper delegate and
// allow-list in tests.
type memStore struct {
	mu       sync.Mutex
	seq      int
	tokens   map[string]Token
	revoked  []string
	failRead error
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[string]Token)}
}

func (m *memStore) Create(_ context.Context, _ http.ResponseWriter, _ *http.Request, t Token) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("mem-%d", m.seq)
	m.tokens[id] = *t.clone()
	return id, nil
}

func (m *memStore) Read(_ context.Context, _ *http.Request, id string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return nil, m.failRead
	}
	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.clone(), nil
}

func (m *memStore) Revoke(_ context.Context, _ *http.Request, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	m.revoked = append(m.revoked, id)
	return nil
}

func testToken(subject string, ttl time.Duration) Token {
	return New(subject, time.Now().Add(ttl).Truncate(time.Second))
}

func mustCreate(t *testing.T, s Store, tok Token) string {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/sessions", nil)
	id, err := s.Create(context.Background(), w, r, tok)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty identifier")
	}
	return id
}

func mustRead(t *testing.T, s Store, id string) *Token {
	t.Helper()
	r := httptest.NewRequest("GET", "/spaces", nil)
	tok, err := s.Read(context.Background(), r, id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return tok
}

func readErr(t *testing.T, s Store, id string) error {
	t.Helper()
	r := httptest.NewRequest("GET", "/spaces", nil)
	_, err := s.Read(context.Background(), r, id)
	return err
}

// assertRoundTrip checks the claims survive create/read unchanged.
func assertRoundTrip(t *testing.T, s Store) {
	t.Helper()
	tok := testToken("alice", 10*time.Minute)
	tok.Attributes["space"] = "42"
	id := mustCreate(t, s, tok)

	got := mustRead(t, s, id)
	if got.Subject != "alice" {
		t.Fatalf("subject = %q, want alice", got.Subject)
	}
	if !got.Expiry.Equal(tok.Expiry) {
		t.Fatalf("expiry = %v, want %v", got.Expiry, tok.Expiry)
	}
	if got.Attributes["space"] != "42" {
		t.Fatalf("attributes lost: %v", got.Attributes)
	}
}

// assertBitFlipsFail flips every bit of the identifier and requires the
// store to fail closed on each mutation, without ever distinguishing
// expiry on a tampered token.
func assertBitFlipsFail(t *testing.T, s Store, id string) {
	t.Helper()
	for i := 0; i < len(id); i++ {
		for bit := uint(0); bit < 8; bit++ {
			mutated := []byte(id)
			mutated[i] ^= 1 << bit
			if string(mutated) == id {
				continue
			}
			err := readErr(t, s, string(mutated))
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("flip byte %d bit %d: err = %v, want ErrNotFound", i, bit, err)
			}
		}
	}
}

func testKey(b byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = b
	}
	return key
}
