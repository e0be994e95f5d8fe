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

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNonFiniteValue rejects NaN and ±Inf samples before storage.
	ErrNonFiniteValue = errors.New("non-finite value")
	// ErrPreEpochTimestamp rejects timestamps before 1970-01-01 UTC.
	ErrPreEpochTimestamp = errors.New("timestamp before unix epoch")
)

// DataPoint is one immutable telemetry sample. The sequence ID is the
// compact key of the owning tag in the time-series store.
type DataPoint struct {
	SeqID      int64     `json:"seq_id"`
	Timestamp  time.Time `json:"ts"`
	Value      float64   `json:"value"`
	Quality    Quality   `json:"quality"`
	SourceTag  string    `json:"source_tag,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewDataPoint validates and builds a sample. Non-finite values and
// pre-epoch timestamps are rejected; timestamps are normalized to UTC.
func NewDataPoint(seqID int64, ts time.Time, value float64, quality Quality) (DataPoint, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return DataPoint{}, fmt.Errorf("seq %d: %w", seqID, ErrNonFiniteValue)
	}
	if ts.Unix() < 0 {
		return DataPoint{}, fmt.Errorf("seq %d: %w", seqID, ErrPreEpochTimestamp)
	}
	return DataPoint{
		SeqID:      seqID,
		Timestamp:  ts.UTC(),
		Value:      value,
		Quality:    quality,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Key returns the deduplication key of the sample in the time-series store.
func (p DataPoint) Key() string {
	return fmt.Sprintf("%d@%d", p.SeqID, p.Timestamp.UnixNano())
}

// Batch is the ordered atomic unit crossing the queue boundary.
type Batch struct {
	ID        string      `json:"id"`
	SourceID  string      `json:"source_id"`
	CreatedAt time.Time   `json:"created_at"`
	Points    []DataPoint `json:"points"`
}

// NewBatch creates an empty batch for the given source.
func NewBatch(sourceID string) *Batch {
	return &Batch{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		CreatedAt: time.Now().UTC(),
	}
}

// Append adds a sample to the batch preserving insertion order.
func (b *Batch) Append(p DataPoint) {
	b.Points = append(b.Points, p)
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Points)
}
