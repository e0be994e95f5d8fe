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
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrShortMessage is returned when a frame is truncated.
var ErrShortMessage = errors.New("queue: short message")

// Envelope is the wire format of every queue message: a length-prefixed
// JSON document carrying the routing key and the typed payload.
type Envelope struct {
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode frames v as an envelope: 4-byte big-endian length followed by the
// JSON document.
func Encode(topic, key string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", topic, err)
	}
	env := Envelope{Topic: topic, Key: key, CreatedAt: time.Now().UTC(), Payload: payload}
	doc, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(doc))
	binary.BigEndian.PutUint32(out[:4], uint32(len(doc)))
	copy(out[4:], doc)
	return out, nil
}

// Decode unframes one envelope. The payload stays raw; use
// DecodePayload to materialize it.
func Decode(data []byte) (Envelope, error) {
	if len(data) < 4 {
		return Envelope{}, ErrShortMessage
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) < n {
		return Envelope{}, fmt.Errorf("%w: declared %d, have %d", ErrShortMessage, n, len(data)-4)
	}
	var env Envelope
	if err := json.Unmarshal(data[4:4+n], &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into out.
func DecodePayload(env Envelope, out any) error {
	return json.Unmarshal(env.Payload, out)
}
