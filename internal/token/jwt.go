package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parley.org/internal/ids"
)

// SignedJWTStore encodes claims as an HS256 JWT: self-contained and
// tamper-evident, but visible to anyone holding the wire identifier. The
// audience is pinned to this deployment and compared by string equality.
//
// Revocation is delegated to an optional allow-list keyed by the embedded
// jti; without one the envelope cannot be invalidated short of a key
// rotation and Revoke is a no-op.
type SignedJWTStore struct {
	key      []byte
	audience string
	allow    Store
	now      func() time.Time
}

func NewSignedJWTStore(key [32]byte, audience string, allow Store) *SignedJWTStore {
	return &SignedJWTStore{key: key[:], audience: audience, allow: allow, now: time.Now}
}

type signedClaims struct {
	Attributes map[string]string `json:"attrs,omitempty"`
	jwt.RegisteredClaims
}

func (s *SignedJWTStore) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	jti, err := s.allowListed(ctx, w, r, t)
	if err != nil {
		return "", err
	}
	claims := signedClaims{
		Attributes: t.Attributes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.Subject,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(t.Expiry),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *SignedJWTStore) Read(ctx context.Context, r *http.Request, tokenID string) (*Token, error) {
	claims, err := s.parse(tokenID)
	if err != nil {
		return nil, err
	}
	if s.allow != nil {
		if _, err := s.allow.Read(ctx, r, claims.ID); err != nil {
			if errors.Is(err, ErrExpired) {
				return nil, ErrExpired
			}
			return nil, ErrNotFound
		}
	}
	t := New(claims.Subject, claims.ExpiresAt.Time)
	for k, v := range claims.Attributes {
		t.Attributes[k] = v
	}
	return &t, nil
}

func (s *SignedJWTStore) Revoke(ctx context.Context, r *http.Request, tokenID string) error {
	if s.allow == nil {
		return nil
	}
	claims, err := s.parse(tokenID)
	if err != nil {
		return err
	}
	return s.allow.Revoke(ctx, r, claims.ID)
}

func (s *SignedJWTStore) parse(tokenID string) (*signedClaims, error) {
	claims := &signedClaims{}
	parsed, err := jwt.ParseWithClaims(tokenID, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrNotFound
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrNotFound
	}
	return claims, nil
}

// allowListed registers the token on the allow-list and returns the id to
// embed as jti, or mints a standalone id when no allow-list is paired.
func (s *SignedJWTStore) allowListed(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	if s.allow == nil {
		return ids.New(), nil
	}
	return s.allow.Create(ctx, w, r, New(t.Subject, t.Expiry))
}

// EncryptedJWTStore encodes the claim set inside a NaCl secretbox
// envelope: confidential and integrity-protected in one primitive, so no
// field is visible without the key. Revocation works exactly as in the
// signed profile.
type EncryptedJWTStore struct {
	key      [32]byte
	audience string
	allow    Store
	now      func() time.Time
}

func NewEncryptedJWTStore(key [32]byte, audience string, allow Store) *EncryptedJWTStore {
	return &EncryptedJWTStore{key: key, audience: audience, allow: allow, now: time.Now}
}

type encryptedClaims struct {
	Subject    string            `json:"sub"`
	Expiry     int64             `json:"exp"`
	Audience   string            `json:"aud"`
	TokenID    string            `json:"jti,omitempty"`
	Attributes map[string]string `json:"attrs,omitempty"`
}

func (s *EncryptedJWTStore) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error) {
	var jti string
	if s.allow != nil {
		var err error
		jti, err = s.allow.Create(ctx, w, r, New(t.Subject, t.Expiry))
		if err != nil {
			return "", err
		}
	} else {
		jti = ids.New()
	}
	plain, err := json.Marshal(encryptedClaims{
		Subject:    t.Subject,
		Expiry:     t.Expiry.Unix(),
		Audience:   s.audience,
		TokenID:    jti,
		Attributes: t.Attributes,
	})
	if err != nil {
		return "", err
	}
	sealed, err := seal(plain, &s.key)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(sealed), nil
}

func (s *EncryptedJWTStore) Read(ctx context.Context, r *http.Request, tokenID string) (*Token, error) {
	claims, err := s.open(tokenID)
	if err != nil {
		return nil, err
	}
	t := New(claims.Subject, unixTime(claims.Expiry))
	// Expiry is decided before the allow-list lookup so an expired token
	// answers ErrExpired whether or not its allow row has been swept yet.
	if t.Expired(s.now()) {
		return nil, ErrExpired
	}
	if s.allow != nil {
		if _, err := s.allow.Read(ctx, r, claims.TokenID); err != nil {
			if errors.Is(err, ErrExpired) {
				return nil, ErrExpired
			}
			return nil, ErrNotFound
		}
	}
	for k, v := range claims.Attributes {
		t.Attributes[k] = v
	}
	return &t, nil
}

func (s *EncryptedJWTStore) Revoke(ctx context.Context, r *http.Request, tokenID string) error {
	if s.allow == nil {
		return nil
	}
	claims, err := s.open(tokenID)
	if err != nil {
		return err
	}
	return s.allow.Revoke(ctx, r, claims.TokenID)
}

func (s *EncryptedJWTStore) open(tokenID string) (*encryptedClaims, error) {
	sealed, err := b64.DecodeString(tokenID)
	if err != nil {
		return nil, ErrNotFound
	}
	plain, err := unseal(sealed, &s.key)
	if err != nil {
		return nil, ErrNotFound
	}
	var claims encryptedClaims
	if err := json.Unmarshal(plain, &claims); err != nil {
		return nil, ErrNotFound
	}
	if claims.Audience != s.audience {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrNotFound
	}
	return &claims, nil
}
