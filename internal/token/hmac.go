package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

// HMACStore decorates any Store so returned identifiers carry a keyed
// tamper-evident tag: <inner-id>.<base64url(tag)>. The delegate only ever
// sees identifiers whose tag this wrapper has verified, which closes
// tampering and identifier-grinding attacks against stores with no native
// integrity (the in-band JSON store in particular).
type HMACStore struct {
	delegate Store
	key      [32]byte
}

func NewHMACStore(delegate Store, key [32]byte) *HMACStore {
	return &HMACStore{delegate: delegate, key: key}
}

func (s *HMACStore) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	tokenID, err := s.delegate.Create(ctx, w, r, t)
	if err != nil {
		return "", err
	}
	tag := s.tag(tokenID)
	return tokenID + "." + b64.EncodeToString(tag), nil
}

func (s *HMACStore) Read(ctx context.Context, r *http.Request, tokenID string) (*Token, error) {
	realID, err := s.verify(tokenID)
	if err != nil {
		return nil, err
	}
	return s.delegate.Read(ctx, r, realID)
}

func (s *HMACStore) Revoke(ctx context.Context, r *http.Request, tokenID string) error {
	realID, err := s.verify(tokenID)
	if err != nil {
		return err
	}
	return s.delegate.Revoke(ctx, r, realID)
}

// verify splits at the last separator so an inner identifier containing
// dots (a JWT, say) still validates, recomputes the tag over the left part
// and compares in constant time.
func (s *HMACStore) verify(tokenID string) (string, error) {
	idx := strings.LastIndexByte(tokenID, '.')
	if idx < 0 {
		return "", ErrNotFound
	}
	realID := tokenID[:idx]
	provided, err := b64.DecodeString(tokenID[idx+1:])
	if err != nil {
		return "", ErrNotFound
	}
	if !hmac.Equal(provided, s.tag(realID)) {
		return "", ErrNotFound
	}
	return realID, nil
}

func (s *HMACStore) tag(tokenID string) []byte {
	mac := hmac.New(sha256.New, s.key[:])
	mac.Write([]byte(tokenID))
	return mac.Sum(nil)
}
