// Package denylist tracks access tokens (by jti) that must be rejected before their natural expiry,
// after the session they were issued with has been revoked.
package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces denylisted jti keys.
const keyPrefix = "denylist:access:"

// Denylist records revoked access token ids until they would have expired anyway.
type Denylist interface {
	// Add denylists jti until expiresAt. Already expired tokens are ignored.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// Contains reports whether jti is denylisted.
	Contains(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist stores denylisted jtis as Redis keys expiring with the token.
type RedisDenylist struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisDenylist returns a Denylist backed by client.
func NewRedisDenylist(client redis.UniversalClient) *RedisDenylist {
	return &RedisDenylist{client: client, now: time.Now}
}

func (d *RedisDenylist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("denylist add: %w", err)
	}
	return nil
}

func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity to Redis. Used by the readiness probe.
func (d *RedisDenylist) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Noop is a Denylist that records nothing. Used when Redis is not configured.
type Noop struct{}

func (Noop) Add(context.Context, string, time.Time) error { return nil }

func (Noop) Contains(context.Context, string) (bool, error) { return false, nil }

// NewRedisClient parses url (redis://...) and returns a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
