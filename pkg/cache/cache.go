// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package cache wraps the fast TTL store holding current-value snapshots,
// correlation scalars, cluster summaries and fingerprint snapshots. Every
// key is recomputable; a miss is never an error condition for callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

const keyPrefix = "fw"

// Cache is the process-wide fast-cache handle.
type Cache struct {
	rdb *redis.Client
}

// New connects to the fast cache.
func New(addr string, db int) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewFromClient wraps an existing client; used by tests.
func NewFromClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Ping verifies the cache is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func valueKey(seqID int64) string {
	return fmt.Sprintf("%s:value:%d", keyPrefix, seqID)
}

// CorrKey returns the correlation scalar key in canonical (low, high) order.
func CorrKey(a, b int64) string {
	lo, hi := model.OrderPair(a, b)
	return fmt.Sprintf("%s:corr:%d:%d", keyPrefix, lo, hi)
}

func clusterKey(id string) string {
	return fmt.Sprintf("%s:cluster:%s", keyPrefix, id)
}

func fingerprintKey(seqID int64) string {
	return fmt.Sprintf("%s:fprint:%d", keyPrefix, seqID)
}

// SetCurrentValue stores the latest sample of a tag.
func (c *Cache) SetCurrentValue(ctx context.Context, p model.DataPoint, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, valueKey(p.SeqID), raw, ttl).Err()
}

// GetCurrentValue returns the latest cached sample of a tag.
func (c *Cache) GetCurrentValue(ctx context.Context, seqID int64) (model.DataPoint, error) {
	raw, err := c.rdb.Get(ctx, valueKey(seqID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DataPoint{}, ErrMiss
	}
	if err != nil {
		return model.DataPoint{}, err
	}
	var p model.DataPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.DataPoint{}, err
	}
	return p, nil
}

// SetCorrelation caches the correlation scalar of a pair.
func (c *Cache) SetCorrelation(ctx context.Context, a, b int64, r float64, ttl time.Duration) error {
	return c.rdb.Set(ctx, CorrKey(a, b), strconv.FormatFloat(r, 'f', -1, 64), ttl).Err()
}

// GetCorrelation returns the cached correlation scalar of a pair.
func (c *Cache) GetCorrelation(ctx context.Context, a, b int64) (float64, error) {
	raw, err := c.rdb.Get(ctx, CorrKey(a, b)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// SetCluster caches a cluster summary.
func (c *Cache) SetCluster(ctx context.Context, cl model.Cluster, ttl time.Duration) error {
	raw, err := json.Marshal(cl)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, clusterKey(cl.ID), raw, ttl).Err()
}

// GetCluster returns a cached cluster summary.
func (c *Cache) GetCluster(ctx context.Context, id string) (model.Cluster, error) {
	raw, err := c.rdb.Get(ctx, clusterKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Cluster{}, ErrMiss
	}
	if err != nil {
		return model.Cluster{}, err
	}
	var cl model.Cluster
	if err := json.Unmarshal(raw, &cl); err != nil {
		return model.Cluster{}, err
	}
	return cl, nil
}

// SetFingerprint caches a tag's behavioral fingerprint snapshot.
func (c *Cache) SetFingerprint(ctx context.Context, f model.Fingerprint, ttl time.Duration) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fingerprintKey(f.SeqID), raw, ttl).Err()
}

// GetFingerprint returns a cached fingerprint snapshot.
func (c *Cache) GetFingerprint(ctx context.Context, seqID int64) (model.Fingerprint, error) {
	raw, err := c.rdb.Get(ctx, fingerprintKey(seqID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Fingerprint{}, ErrMiss
	}
	if err != nil {
		return model.Fingerprint{}, err
	}
	var f model.Fingerprint
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.Fingerprint{}, err
	}
	return f, nil
}

// SetHealth stores the daemon's runtime snapshot. The TTL keeps a stale
// snapshot from outliving a dead daemon.
func (c *Cache) SetHealth(ctx context.Context, h model.Health, ttl time.Duration) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+":health", raw, ttl).Err()
}

// GetHealth returns the daemon's runtime snapshot, if a daemon published
// one recently.
func (c *Cache) GetHealth(ctx context.Context) (model.Health, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+":health").Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Health{}, ErrMiss
	}
	if err != nil {
		return model.Health{}, err
	}
	var h model.Health
	if err := json.Unmarshal(raw, &h); err != nil {
		return model.Health{}, err
	}
	return h, nil
}

// EnsureTTLs walks all flywheel keys and sets ttl on any key missing one.
// Run by daily maintenance so that no key can outlive its data. Returns
// the number of keys repaired.
func (c *Cache) EnsureTTLs(ctx context.Context, ttl time.Duration) (int, error) {
	var (
		cursor   uint64
		repaired int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+":*", 256).Result()
		if err != nil {
			return repaired, err
		}
		for _, key := range keys {
			d, err := c.rdb.TTL(ctx, key).Result()
			if err != nil {
				return repaired, err
			}
			// go-redis reports "no expiry" as -1 (and "no key" as -2).
			if d == -1 {
				if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
					return repaired, err
				}
				repaired++
			}
		}
		cursor = next
		if cursor == 0 {
			return repaired, nil
		}
	}
}
