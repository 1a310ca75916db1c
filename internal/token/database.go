package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"parley.org/internal/obs"
)

const sweepInterval = 10 * time.Minute

// DatabaseStore is the durable allow-list: Create generates a random
// handle, persists a one-way hash of it plus the claims, and returns the
// raw handle. Existence of the row means the token is live, which makes
// revocation a delete. The raw handle never touches storage, so a stolen
// database dump yields no usable tokens.
type DatabaseStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDatabaseStore(db *sql.DB) *DatabaseStore {
	return &DatabaseStore{db: db, now: time.Now}
}

// randomID returns a fresh 160-bit handle. The base64url alphabet keeps
// the separator character out of identifiers so HMAC wrapping stays
// unambiguous.
func randomID() (string, error) {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return b64.EncodeToString(buf[:]), nil
}

func hashID(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}

func (s *DatabaseStore) Create(ctx context.Context, _ http.ResponseWriter, _ *http.Request, t Token) (string, error) {
	if t.Expired(s.now()) {
		return "", ErrInvalidInput
	}
	tokenID, err := randomID()
	if err != nil {
		return "", err
	}
	attrs, err := json.Marshal(t.Attributes)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into tokens(token_id_hash, user_id, expiry, attributes) values($1,$2,$3,$4)`,
		hashID(tokenID), t.Subject, t.Expiry.UTC(), string(attrs),
	)
	if err != nil {
		return "", err
	}
	return tokenID, nil
}

func (s *DatabaseStore) Read(ctx context.Context, _ *http.Request, tokenID string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, expiry, attributes from tokens where token_id_hash=$1`,
		hashID(tokenID),
	)
	var (
		subject string
		expiry  time.Time
		attrs   string
	)
	if err := row.Scan(&subject, &expiry, &attrs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t := New(subject, expiry.UTC())
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &t.Attributes); err != nil {
			return nil, ErrNotFound
		}
	}
	if t.Expired(s.now()) {
		return nil, ErrExpired
	}
	return &t, nil
}

func (s *DatabaseStore) Revoke(ctx context.Context, _ *http.Request, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `delete from tokens where token_id_hash=$1`, hashID(tokenID))
	return err
}

// DeleteExpired reclaims rows past their expiry. Purely a storage
// optimization: Read checks expiry regardless.
func (s *DatabaseStore) DeleteExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from tokens where expiry < $1`, s.now().UTC())
	return err
}

// StartSweeper runs DeleteExpired on a fixed interval until ctx is
// cancelled. It never shares a transaction with request-serving paths.
func (s *DatabaseStore) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.DeleteExpired(ctx); err != nil && ctx.Err() == nil {
					obs.LogError("token_sweep_failed", err)
				}
			}
		}
	}()
}
