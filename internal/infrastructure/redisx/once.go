package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OnceGuard claims keys with SETNX so that a side effect keyed by the same
// string runs at most once per TTL window across every instance.
type OnceGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewOnceGuard(client *redis.Client, prefix string, ttl time.Duration) *OnceGuard {
	return &OnceGuard{client: client, prefix: prefix, ttl: ttl}
}

// Claim returns true the first time key is claimed. A nil guard or client
// always grants the claim.
func (g *OnceGuard) Claim(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}


// Release drops claims so the keyed side effect may run again.
func (g *OnceGuard) Release(ctx context.Context, keys ...string) error {
	if g == nil || g.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = g.prefix + k
	}
	if err := g.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("release %d keys: %w", len(keys), err)
	}
	return nil
}
