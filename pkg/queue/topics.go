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
package queue

import "strings"

// Topic names. Telemetry topics are keyed by source identifier so that
// per-source order is preserved; pattern-event topics are keyed by entity
// identifier.
const (
	TopicTelemetryLive     = "telemetry.live"
	TopicTelemetryBackfill = "telemetry.backfill"
	TopicSuggestions       = "patterns.suggestions"
	TopicPatternsUpdated   = "patterns.updated"
	TopicClusters          = "patterns.clusters"
)

// Stream layout: one stream per topic family.
var streams = map[string][]string{
	"FW_TELEMETRY": {"telemetry.>"},
	"FW_PATTERNS":  {"patterns.>"},
}

// subjectFor appends the partition key to the topic. Key characters that
// would act as subject separators are flattened.
func subjectFor(topic, key string) string {
	if key == "" {
		return topic + "._"
	}
	clean := strings.NewReplacer(".", "-", " ", "-", "*", "-", ">", "-").Replace(key)
	return topic + "." + clean
}

// topicOf strips the partition key from a concrete subject.
func topicOf(subject string) string {
	if i := strings.LastIndex(subject, "."); i > 0 {
		return subject[:i]
	}
	return subject
}
