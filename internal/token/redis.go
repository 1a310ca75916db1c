package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the allow-list contract on Redis. The key is the hash of
// the random handle, the value the serialized claims, and the key TTL
// matches the token expiry so Redis reclaims dead tokens on its own.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "parley:token"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + ":" + hashID(tokenID)
}

func (s *RedisStore) Create(ctx context.Context, _ http.ResponseWriter, _ *http.Request, t Token) (string, error) {
	ttl := t.Expiry.Sub(s.now())
	if ttl <= 0 {
		return "", ErrInvalidInput
	}
	tokenID, err := randomID()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(jsonClaims{
		Subject:    t.Subject,
		Expiry:     t.Expiry.Unix(),
		Attributes: t.Attributes,
	})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(tokenID), payload, ttl).Err(); err != nil {
		return "", err
	}
	return tokenID, nil
}

func (s *RedisStore) Read(ctx context.Context, _ *http.Request, tokenID string) (*Token, error) {
	payload, err := s.client.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var claims jsonClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrNotFound
	}
	t := New(claims.Subject, unixTime(claims.Expiry))
	for k, v := range claims.Attributes {
		t.Attributes[k] = v
	}
	// The TTL usually reclaims the key first; the check stays because
	// expiry is validated at read time, never assumed from storage.
	if t.Expired(s.now()) {
		return nil, ErrExpired
	}
	return &t, nil
}

func (s *RedisStore) Revoke(ctx context.Context, _ *http.Request, tokenID string) error {
	return s.client.Del(ctx, s.key(tokenID)).Err()
}
