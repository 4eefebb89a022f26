package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil client: got %v, want ErrInvalidConfig", err)
	}
}

func TestRedisStoreUnreachableServer(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	s, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	if _, err := s.Create(context.Background(), "user-1", "wallet-1", time.Hour); err == nil {
		t.Fatalf("expected error against unreachable redis")
	}
}
