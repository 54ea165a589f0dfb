// Package ratelimit keeps per-tenant admission counters in Redis so that
// several gateway instances can share one strict quota.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quota:tenant:"

// reserveScript increments the counter only while it is below the limit.
// Returns {used, admitted}.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used < tonumber(ARGV[1]) then
  return {redis.call('INCR', KEYS[1]), 1}
end
return {used, 0}
`)

// SeedFunc returns the usage a counter starts from the first time a tenant
// is seen, normally the ledger count.
type SeedFunc func(ctx context.Context, tenantID int64) (int64, error)

type Counter struct {
	client *redis.Client
	seed   SeedFunc
}

func NewCounter(redisURL string, seed SeedFunc) (*Counter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return NewCounterWithClient(redis.NewClient(opt), seed), nil
}

func NewCounterWithClient(client *redis.Client, seed SeedFunc) *Counter {
	return &Counter{client: client, seed: seed}
}

func counterKey(tenantID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, tenantID)
}

// Reserve takes one admission slot if fewer than limit are taken.
func (c *Counter) Reserve(ctx context.Context, tenantID, limit int64) (int64, bool, error) {
	key := counterKey(tenantID)

	if c.seed != nil {
		exists, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return 0, false, fmt.Errorf("check counter: %w", err)
		}
		if exists == 0 {
			start, err := c.seed(ctx, tenantID)
			if err != nil {
				return 0, false, fmt.Errorf("seed counter: %w", err)
			}
			// Another instance may have seeded first; SETNX keeps its value.
			if err := c.client.SetNX(ctx, key, start, 0).Err(); err != nil {
				return 0, false, fmt.Errorf("seed counter: %w", err)
			}
		}
	}

	res, err := reserveScript.Run(ctx, c.client, []string{key}, limit).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve quota: unexpected reply %v", res)
	}

	return res[0], res[1] == 1, nil
}

// Reset drops every tenant counter.
func (c *Counter) Reset(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (c *Counter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Counter) Close() error {
	return c.client.Close()
}
