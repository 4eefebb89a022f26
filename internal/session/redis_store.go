package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore keeps sessions in Redis so API replicas share them. Expiry is
// enforced by the key TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidConfig)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Create(ctx context.Context, userID, walletAddress string, ttl time.Duration) (Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(walletAddress) == "" {
		return Session{}, fmt.Errorf("%w: empty user id or wallet address", ErrInvalidConfig)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		Token:         token,
		UserID:        userID,
		WalletAddress: walletAddress,
		ExpiresAt:     time.Now().UTC().Add(ttl),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("session/redis: marshal: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+token, payload, ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("session/redis: set: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Session, error) {
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("session/redis: get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, fmt.Errorf("session/redis: unmarshal: %w", err)
	}
	if !time.Now().UTC().Before(sess.ExpiresAt) {
		_ = s.client.Del(ctx, keyPrefix+token).Err()
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session/redis: del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
