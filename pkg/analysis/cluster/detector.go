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
package cluster

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
	"github.com/teradata-labs/flywheel/pkg/queue"
)

// Config tunes detection and validation.
type Config struct {
	MinSize     int
	MaxSize     int
	MinCohesion float64
	// EdgeWindow is how far back correlation edges are read.
	EdgeWindow time.Duration
	// StaleAfter deactivates previously-active clusters missing from the
	// current output once they are older than this.
	StaleAfter time.Duration
	// CacheTTL bounds the cached cluster summary's lifetime.
	CacheTTL time.Duration
	// Seed fixes the visit-order randomness; 0 seeds from the clock.
	Seed int64
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinSize:     3,
		MaxSize:     50,
		MinCohesion: 0.50,
		EdgeWindow:  24 * time.Hour,
		StaleAfter:  24 * time.Hour,
		CacheTTL:    24 * time.Hour,
	}
}

// Store is the metastore surface the detector needs.
type Store interface {
	ListCorrelationsSince(ctx context.Context, since time.Time) ([]model.CorrelationEdge, error)
	UpsertCluster(ctx context.Context, c model.Cluster) error
	DeactivateStaleClusters(ctx context.Context, keep []string, cutoff time.Time) (int64, error)
}

// Cache mirrors cluster summaries into the fast cache.
type Cache interface {
	SetCluster(ctx context.Context, cl model.Cluster, ttl time.Duration) error
}

// Detector runs the community-detection cadence.
type Detector struct {
	cfg   Config
	store Store
	cache Cache
	pub   ingestPublisher
	rng   *rand.Rand
}

// ingestPublisher mirrors the queue's publish surface; nil disables
// event publication.
type ingestPublisher interface {
	Publish(topic, key string, v any) (<-chan queue.PublishResult, error)
}

// New wires a detector. pub may be nil.
func New(cfg Config, store Store, cache Cache, pub ingestPublisher) *Detector {
	def := DefaultConfig()
	if cfg.MinSize <= 0 {
		cfg.MinSize = def.MinSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MinCohesion <= 0 {
		cfg.MinCohesion = def.MinCohesion
	}
	if cfg.EdgeWindow <= 0 {
		cfg.EdgeWindow = def.EdgeWindow
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Detector{cfg: cfg, store: store, cache: cache, pub: pub, rng: rand.New(rand.NewSource(seed))}
}

// Detect runs community detection over a frozen edge snapshot and returns
// the validated clusters. For a fixed seed and edge set the output order is
// deterministic (communities come back in label order, members sorted).
func (d *Detector) Detect(edges []model.CorrelationEdge, now time.Time) []model.Cluster {
	g := BuildGraph(edges)
	var out []model.Cluster
	for _, members := range g.Communities(d.rng) {
		if len(members) < d.cfg.MinSize || len(members) > d.cfg.MaxSize {
			continue
		}
		cohesion := g.Cohesion(members)
		if cohesion < d.cfg.MinCohesion {
			continue
		}
		cl := model.NewCluster(members, cohesion, false)
		cl.Active = true
		cl.DetectedAt = now
		out = append(out, cl)
	}
	return out
}

// RunOnce detects, persists and caches the current cluster set, then marks
// stale previously-active clusters inactive.
func (d *Detector) RunOnce(ctx context.Context, now time.Time) ([]model.Cluster, error) {
	edges, err := d.store.ListCorrelationsSince(ctx, now.Add(-d.cfg.EdgeWindow))
	if err != nil {
		return nil, err
	}
	clusters := d.Detect(edges, now)

	keep := make([]string, 0, len(clusters))
	for _, cl := range clusters {
		if err := d.store.UpsertCluster(ctx, cl); err != nil {
			return nil, err
		}
		keep = append(keep, cl.ID)
		if err := d.cache.SetCluster(ctx, cl, d.cfg.CacheTTL); err != nil {
			log.Warn("cluster cache failed", zap.String("cluster", cl.ID), zap.Error(err))
		}
		d.announce(cl)
	}
	if _, err := d.store.DeactivateStaleClusters(ctx, keep, now.Add(-d.cfg.StaleAfter)); err != nil {
		return nil, err
	}
	return clusters, nil
}

func (d *Detector) announce(cl model.Cluster) {
	if d.pub == nil {
		return
	}
	if _, err := d.pub.Publish(queue.TopicClusters, cl.ID, cl); err != nil {
		log.Warn("cluster event publish failed", zap.String("cluster", cl.ID), zap.Error(err))
	}
}
