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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/flywheel/pkg/model"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	b := model.NewBatch("plc-01")
	p, err := model.NewDataPoint(3, time.Unix(1700000000, 0), 9.5, model.QualityGood)
	require.NoError(t, err)
	b.Append(p)

	data, err := Encode(TopicTelemetryLive, "plc-01", b)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TopicTelemetryLive, env.Topic)
	assert.Equal(t, "plc-01", env.Key)

	var got model.Batch
	require.NoError(t, DecodePayload(env, &got))
	require.Len(t, got.Points, 1)
	assert.Equal(t, 9.5, got.Points[0].Value)
	assert.Equal(t, b.ID, got.ID)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	data, err := Encode(TopicClusters, "c1", map[string]int{"n": 1})
	require.NoError(t, err)

	_, err = Decode(data[:2])
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = Decode(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 4, 'a', 'b', 'c', 'd'})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrShortMessage)
}

func TestSubjectForFlattensSeparators(t *testing.T) {
	assert.Equal(t, "telemetry.live.plc-01", subjectFor(TopicTelemetryLive, "plc-01"))
	assert.Equal(t, "telemetry.live.site-a-plc", subjectFor(TopicTelemetryLive, "site.a plc"))
	assert.Equal(t, "telemetry.live._", subjectFor(TopicTelemetryLive, ""))
	assert.Equal(t, TopicTelemetryLive, topicOf("telemetry.live.plc-01"))
}
