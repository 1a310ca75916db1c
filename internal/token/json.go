package token

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// JSONStore serializes claims directly into the wire identifier as
// base64url(JSON). It provides neither integrity nor confidentiality and
// must be wrapped (HMACStore or EncryptedStore) before being exposed.
type JSONStore struct{}

func NewJSONStore() *JSONStore { return &JSONStore{} }

type jsonClaims struct {
	Subject    string            `json:"sub"`
	Expiry     int64             `json:"exp"`
	Attributes map[string]string `json:"attrs"`
}

func (s *JSONStore) Create(_ context.Context, _ http.ResponseWriter, _ *http.Request, t Token) (string, error) {
	claims := jsonClaims{
		Subject:    t.Subject,
		Expiry:     t.Expiry.Unix(),
		Attributes: t.Attributes,
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(data), nil
}

func (s *JSONStore) Read(_ context.Context, _ *http.Request, tokenID string) (*Token, error) {
	data, err := b64.DecodeString(tokenID)
	if err != nil {
		return nil, ErrNotFound
	}
	var claims jsonClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrNotFound
	}
	t := New(claims.Subject, unixTime(claims.Expiry))
	for k, v := range claims.Attributes {
		t.Attributes[k] = v
	}
	return &t, nil
}

// Revoke is a no-op: a pure encoding has nothing server-side to delete.
func (s *JSONStore) Revoke(context.Context, *http.Request, string) error { return nil }
