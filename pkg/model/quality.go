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
// Package model defines the immutable telemetry and pattern-library types
// shared by the ingestion pipeline and the analysis jobs.
package model

// Quality classifies the trustworthiness of a telemetry sample. The integer
// codes are stored in the time-series store and must stay stable.
type Quality int

const (
	QualityGood Quality = iota
	QualityUncertain
	QualityBad
	QualityNotAvailable
	QualitySubstituted
)

var qualityNames = map[Quality]string{
	QualityGood:         "good",
	QualityUncertain:    "uncertain",
	QualityBad:          "bad",
	QualityNotAvailable: "not_available",
	QualitySubstituted:  "substituted",
}

// String returns the lowercase name of the quality code.
func (q Quality) String() string {
	if s, ok := qualityNames[q]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether q is one of the defined quality codes.
func (q Quality) Valid() bool {
	_, ok := qualityNames[q]
	return ok
}

// ParseQuality maps a quality name back to its code. Unknown names map to
// QualityNotAvailable so that foreign adapters cannot inject invalid codes.
func ParseQuality(s string) Quality {
	for q, name := range qualityNames {
		if name == s {
			return q
		}
	}
	return QualityNotAvailable
}
