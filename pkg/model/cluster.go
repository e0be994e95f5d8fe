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
	"crypto/md5"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cluster is a behaviorally (or proactively) grouped set of tags. The ID is
// deterministic over the member set so that re-detecting the same group is
// an idempotent upsert. Cohesion is the mean edge weight of the induced
// correlation subgraph; proactive clusters carry cohesion 0.
type Cluster struct {
	ID         string    `db:"id" json:"id"`
	Members    []int64   `db:"-" json:"members"`
	Cohesion   float64   `db:"cohesion" json:"cohesion"`
	Proactive  bool      `db:"proactive" json:"proactive"`
	Active     bool      `db:"active" json:"active"`
	DetectedAt time.Time `db:"detected_at" json:"detected_at"`
}

// ClusterID derives the deterministic 128-bit cluster identity: the MD5 of
// the comma-joined sorted member sequence IDs, rendered as a UUID. The hash
// is intentionally unsalted; identical member sets must collide.
func ClusterID(members []int64) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = strconv.FormatInt(m, 10)
	}
	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return uuid.UUID(sum).String()
}

// NewCluster builds a cluster with its deterministic ID and sorted members.
func NewCluster(members []int64, cohesion float64, proactive bool) Cluster {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	return Cluster{
		ID:         ClusterID(sorted),
		Members:    sorted,
		Cohesion:   cohesion,
		Proactive:  proactive,
		Active:     true,
		DetectedAt: time.Now().UTC(),
	}
}
