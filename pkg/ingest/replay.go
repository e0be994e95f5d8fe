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
package ingest

import (
	"context"
	"sync"
	"time"
)

// ReplayAdapter serves pre-loaded samples from memory. It backs tests and
// offline replays of exported telemetry.
type ReplayAdapter struct {
	mu        sync.RWMutex
	available bool
	current   map[string]Sample
	history   map[string][]Sample
	units     map[string]string
}

// NewReplayAdapter returns an initialized, available replay adapter.
func NewReplayAdapter() *ReplayAdapter {
	return &ReplayAdapter{
		available: true,
		current:   make(map[string]Sample),
		history:   make(map[string][]Sample),
		units:     make(map[string]string),
	}
}

// Initialize accepts any configuration.
func (a *ReplayAdapter) Initialize(map[string]string) error { return nil }

// SetAvailable toggles the advertised availability.
func (a *ReplayAdapter) SetAvailable(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.available = v
}

// IsAvailable reports whether reads may be issued.
func (a *ReplayAdapter) IsAvailable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

// SetCurrent stages the value the next current-value read returns for an
// address.
func (a *ReplayAdapter) SetCurrent(address string, s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current[address] = s
}

// LoadHistory stages a historical series for an address.
func (a *ReplayAdapter) LoadHistory(address, units string, samples []Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[address] = samples
	a.units[address] = units
}

// ReadCurrentValues returns the staged value for each known address.
func (a *ReplayAdapter) ReadCurrentValues(_ context.Context, addresses []string) (map[string]Sample, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Sample, len(addresses))
	for _, addr := range addresses {
		if s, ok := a.current[addr]; ok {
			out[addr] = s
		}
	}
	return out, nil
}

// ReadHistoricalBatch returns the staged samples falling inside
// [start, end) for each known address.
func (a *ReplayAdapter) ReadHistoricalBatch(_ context.Context, addresses []string, start, end time.Time) ([]HistoricalSeries, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []HistoricalSeries
	for _, addr := range addresses {
		samples, ok := a.history[addr]
		if !ok {
			continue
		}
		var hit []Sample
		for _, s := range samples {
			if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
				hit = append(hit, s)
			}
		}
		if len(hit) > 0 {
			out = append(out, HistoricalSeries{SourceAddress: addr, Units: a.units[addr], Values: hit})
		}
	}
	return out, nil
}
