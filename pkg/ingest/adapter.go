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
// Package ingest moves telemetry from data sources into the queue, the
// time-series store and the fast cache. Sources are reached through
// pluggable adapters looked up by source-type tag.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// Sample is one raw reading from a source adapter. Value is untyped;
// the pipeline coerces it to a finite float64 or drops it.
type Sample struct {
	Value     any
	Timestamp time.Time
	Quality   model.Quality
}

// HistoricalSeries is one tag's series returned by a historical read.
type HistoricalSeries struct {
	SourceAddress string
	Units         string
	Values        []Sample
}

// SourceAdapter is the capability set a protocol implementation must
// provide. Concrete adapters (industrial bus, file replay) register
// themselves per source-type tag.
type SourceAdapter interface {
	Initialize(config map[string]string) error
	IsAvailable() bool
	ReadCurrentValues(ctx context.Context, addresses []string) (map[string]Sample, error)
	ReadHistoricalBatch(ctx context.Context, addresses []string, start, end time.Time) ([]HistoricalSeries, error)
}

// Registry maps source-type tags to adapter instances.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]SourceAdapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]SourceAdapter)}
}

// Register binds an adapter to a source-type tag, replacing any previous
// binding.
func (r *Registry) Register(sourceType string, a SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[sourceType] = a
}

// Get returns the adapter for a source-type tag.
func (r *Registry) Get(sourceType string) (SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("ingest: no adapter registered for source type %q", sourceType)
	}
	return a, nil
}

// SourceTypes returns the registered source-type tags, sorted.
func (r *Registry) SourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
