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

// CorrelationEdge is an unordered pair of tags with the absolute Pearson
// coefficient supporting it. The canonical key order is SeqA < SeqB.
type CorrelationEdge struct {
	SeqA        int64     `db:"seq_a" json:"seq_a"`
	SeqB        int64     `db:"seq_b" json:"seq_b"`
	R           float64   `db:"r" json:"r"` // absolute value, [0, 1]
	SampleCount int64     `db:"sample_count" json:"sample_count"`
	WindowStart time.Time `db:"window_start" json:"window_start"`
	WindowEnd   time.Time `db:"window_end" json:"window_end"`
	ComputedAt  time.Time `db:"computed_at" json:"computed_at"`
}

// OrderPair returns the canonical (low, high) ordering of two sequence IDs.
func OrderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
