package token

import (
	"context"
	"crypto/rand"
	"net/http"

	"golang.org/x/crypto/nacl/secretbox"
)

// EncryptedStore decorates any Store so the wire identifier reveals
// nothing about the delegate's identifier: the inner value is sealed with
// NaCl secretbox (XSalsa20-Poly1305), whose authentication tag also makes
// a separate HMAC wrapper redundant in this composition. Confidentiality
// wraps the outermost layer of a store stack.
type EncryptedStore struct {
	delegate Store
	key      [32]byte
}

func NewEncryptedStore(delegate Store, key [32]byte) *EncryptedStore {
	return &EncryptedStore{delegate: delegate, key: key}
}

func (s *EncryptedStore) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	tokenID, err := s.delegate.Create(ctx, w, r, t)
	if err != nil {
		return "", err
	}
	sealed, err := seal([]byte(tokenID), &s.key)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(sealed), nil
}

func (s *EncryptedStore) Read(ctx context.Context, r *http.Request, tokenID string) (*Token, error) {
	realID, err := s.open(tokenID)
	if err != nil {
		return nil, err
	}
	return s.delegate.Read(ctx, r, string(realID))
}

func (s *EncryptedStore) Revoke(ctx context.Context, r *http.Request, tokenID string) error {
	realID, err := s.open(tokenID)
	if err != nil {
		return err
	}
	return s.delegate.Revoke(ctx, r, string(realID))
}

func (s *EncryptedStore) open(tokenID string) ([]byte, error) {
	sealed, err := b64.DecodeString(tokenID)
	if err != nil {
		return nil, ErrNotFound
	}
	plain, err := unseal(sealed, &s.key)
	if err != nil {
		return nil, ErrNotFound
	}
	return plain, nil
}

// seal prepends a random 24-byte nonce to the secretbox ciphertext.
func seal(plain []byte, key *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, key), nil
}

func unseal(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return nil, ErrNotFound
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, ErrNotFound
	}
	return plain, nil
}
