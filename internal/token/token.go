// Package token implements the session token pipeline: interchangeable
// base stores (in-band encoded, database allow-list, Redis allow-list,
// session-bound, structured JWT) and composable integrity and
// confidentiality wrappers over them.
package token

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

// b64 is the strict base64url codec. Strict decoding rejects encodings
// with non-zero trailing padding bits, so any mutation of a wire
// identifier fails instead of aliasing to the canonical value.
var b64 = base64.RawURLEncoding.Strict()

var (
	// ErrNotFound collapses every validation failure (bad encoding, tag
	// mismatch, decryption failure, lookup miss) into a single result so
	// store boundaries cannot be used as an oracle.
	ErrNotFound = errors.New("token: not found")

	// ErrExpired is returned only where expiry is allowed to be
	// distinguished from absence: the structured codecs and the durable
	// stores. The authentication layer decides whether to surface it.
	ErrExpired = errors.New("token: expired")

	// ErrInvalidInput indicates a token that cannot be issued, e.g. an
	// expiry in the past at creation time.
	ErrInvalidInput = errors.New("token: invalid input")
)

// Token carries the claims of one session. Subject and Expiry are fixed at
// construction; Attributes may be filled until the token is handed to a
// store. A Token never outlives the request that created or validated it.
type Token struct {
	Expiry     time.Time
	Subject    string
	Attributes map[string]string
}

// New constructs a Token with an empty attribute map.
func New(subject string, expiry time.Time) Token {
	return Token{
		Expiry:     expiry,
		Subject:    subject,
		Attributes: make(map[string]string),
	}
}

// Expired reports whether the token's expiry has elapsed at the given time.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.Expiry)
}

// clone returns a defensive copy so stores never hand out shared maps.
func (t Token) clone() *Token {
	out := Token{Expiry: t.Expiry, Subject: t.Subject, Attributes: make(map[string]string, len(t.Attributes))}
	for k, v := range t.Attributes {
		out.Attributes[k] = v
	}
	return &out
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// Store issues, validates and revokes wire identifiers. Implementations
// must be safe for concurrent use by independent requests.
//
// Create returns the opaque wire identifier for the token; the
// ResponseWriter exists for the session-bound store, which must set a
// cookie at issuance. Read resolves a presented identifier back to its
// claims or fails closed with ErrNotFound. Revoke may be a no-op where
// revocation is structurally impossible.
type Store interface {
	Create(ctx context.Context, w http.ResponseWriter, r *http.Request, t Token) (string, error)
	Read(ctx context.Context, r *http.Request, tokenID string) (*Token, error)
	Revoke(ctx context.Context, r *http.Request, tokenID string) error
}
