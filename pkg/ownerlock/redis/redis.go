// Package redis provides a Redis-backed owner lock so pipeline runs in
// separate processes still serialize per owner.
//
// Acquisition is SET NX with a TTL; release is a compare-and-delete script
// keyed on a per-acquisition token, so a slow run whose lock already
// expired cannot delete the next holder's lock. The TTL bounds how long a
// crashed process can strand an owner.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/ownerlock"
)

// Defaults for the Redis locker.
const (
	DefaultURL        = "redis://localhost:6379"
	DefaultTTL        = 2 * time.Minute
	DefaultRetryDelay = 50 * time.Millisecond
)

const (
	keyPrefix      = "engram:ownerlock:"
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the lock only while this acquisition still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config holds configuration for the Redis locker.
type Config struct {
	// URL is the Redis connection string. Empty selects DefaultURL.
	URL string

	// TTL bounds how long a crashed holder strands an owner. Zero selects
	// DefaultTTL.
	TTL time.Duration

	// RetryDelay is the pause between acquisition attempts while another
	// run holds the owner. Zero selects DefaultRetryDelay.
	RetryDelay time.Duration
}

// Locker implements ownerlock.Locker on a shared Redis instance.
type Locker struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewLocker connects to Redis and verifies the connection.
func NewLocker(ctx context.Context, c Config, logger *zap.Logger) (*Locker, error) {
	url := c.URL
	if url == "" {
		url = DefaultURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connecting to redis: %v", ownerlock.ErrUnavailable, err)
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	retryDelay := c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Locker{
		client:     client,
		ttl:        ttl,
		retryDelay: retryDelay,
		logger:     logger,
	}, nil
}

// Acquire takes the owner's lock with SET NX, polling until the current
// holder releases or the context ends.
func (l *Locker) Acquire(ctx context.Context, owner string) (func(), error) {
	key := keyPrefix + owner
	token := uuid.NewString()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquiring lock for %s: %v", ownerlock.ErrUnavailable, owner, err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release := func() {
		// The run's context may already be cancelled; release on its own
		// deadline so the lock does not sit until the TTL expires.
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("releasing owner lock failed, ttl will expire it",
				zap.String("owner", owner),
				zap.Error(err),
			)
		}
	}
	return release, nil
}

// Close closes the underlying Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}
