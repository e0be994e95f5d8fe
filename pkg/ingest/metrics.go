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

import "sync/atomic"

// Metrics are the pipeline's running counters. All fields are updated
// atomically; read them through Snapshot.
type Metrics struct {
	publishedBatches atomic.Int64
	publishFailures  atomic.Int64
	skippedSamples   atomic.Int64
	writtenRows      atomic.Int64
	droppedRequests  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	PublishedBatches int64 `json:"published_batches"`
	PublishFailures  int64 `json:"publish_failures"`
	SkippedSamples   int64 `json:"skipped_samples"`
	WrittenRows      int64 `json:"written_rows"`
	DroppedRequests  int64 `json:"dropped_requests"`
}

// Snapshot returns a consistent-enough copy for status reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PublishedBatches: m.publishedBatches.Load(),
		PublishFailures:  m.publishFailures.Load(),
		SkippedSamples:   m.skippedSamples.Load(),
		WrittenRows:      m.writtenRows.Load(),
		DroppedRequests:  m.droppedRequests.Load(),
	}
}
