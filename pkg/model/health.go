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
package model

import "time"

// Health is the daemon's advisory runtime snapshot, published to the fast
// cache so the status command can read it from outside the process.
type Health struct {
	UpdatedAt    time.Time              `json:"updated_at"`
	SourceStates map[string]SourceState `json:"source_states,omitempty"`
	Pipeline     PipelineCounters       `json:"pipeline"`
}

// PipelineCounters mirrors the ingestion pipeline's running counters.
type PipelineCounters struct {
	PublishedBatches int64 `json:"published_batches"`
	PublishFailures  int64 `json:"publish_failures"`
	SkippedSamples   int64 `json:"skipped_samples"`
	WrittenRows      int64 `json:"written_rows"`
	DroppedRequests  int64 `json:"dropped_requests"`
}
