// Package listingcache caches the live posting list in Redis so index
// rebuilds and cold starts do not always hit Postgres.
package listingcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soldeed/soldeed/internal/job"
)

const (
	DefaultKey = "soldeed:jobs:live"
	DefaultTTL = 30 * time.Second
)

// Lister is the upstream source of truth, normally the Postgres job store.
type Lister interface {
	List(ctx context.Context) ([]job.Job, error)
}

type Config struct {
	Client *redis.Client
	Source Lister

	// Key addresses the cached listing. Defaults to DefaultKey.
	Key string
	// TTL bounds staleness between invalidations. Defaults to DefaultTTL.
	TTL time.Duration

	Logger *slog.Logger
}

// Cache reads the live listing through Redis. Cache failures degrade to the
// upstream source, never to an error for the caller.
type Cache struct {
	client *redis.Client
	source Lister
	key    string
	ttl    time.Duration
	log    *slog.Logger
}

var _ Lister = (*Cache)(nil)

func New(cfg Config) (*Cache, error) {
	if cfg.Client == nil {
		return nil, errors.New("listingcache: nil redis client")
	}
	if cfg.Source == nil {
		return nil, errors.New("listingcache: nil source lister")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		client: cfg.Client,
		source: cfg.Source,
		key:    cfg.Key,
		ttl:    cfg.TTL,
		log:    cfg.Logger,
	}, nil
}

// List returns the cached listing, falling back to the source on a miss or
// any Redis error.
func (c *Cache) List(ctx context.Context) ([]job.Job, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var jobs []job.Job
		if jsonErr := json.Unmarshal(raw, &jobs); jsonErr == nil {
			return jobs, nil
		}
		// Corrupt payload: treat as a miss and overwrite below.
		c.log.Warn("listingcache: dropping corrupt cached listing", "key", c.key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("listingcache: redis read failed", "key", c.key, "err", err)
	}

	jobs, err := c.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listingcache: read source: %w", err)
	}

	if raw, err := json.Marshal(jobs); err == nil {
		if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("listingcache: redis write failed", "key", c.key, "err", err)
		}
	}
	return jobs, nil
}

// Invalidate drops the cached listing after a posting changes.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.log.Warn("listingcache: redis delete failed", "key", c.key, "err", err)
	}
}
