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
// Package queue is the durable-queue gateway. Producers publish
// length-prefixed JSON envelopes asynchronously and flush on demand;
// consumers pull one message at a time and ack explicitly. A message that
// fails to decode is logged, acked and skipped so a poison payload can
// never wedge a subscription.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
)

// ErrFlushTimeout is returned when pending publishes do not settle in time.
var ErrFlushTimeout = errors.New("queue: flush timeout")

// PublishResult reports the outcome of one async publish.
type PublishResult struct {
	Success      bool
	Subject      string
	Offset       uint64
	ErrorMessage string
}

// Conn owns the broker connection shared by producers and consumers.
type Conn struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials the broker and ensures the streams exist.
func Connect(url string) (*Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("flywheel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(4096))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	c := &Conn{nc: nc, js: js}
	if err := c.ensureStreams(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) ensureStreams() error {
	for name, subjects := range streams {
		_, err := c.js.StreamInfo(name)
		if err == nil {
			continue
		}
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info %s: %w", name, err)
		}
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  subjects,
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("add stream %s: %w", name, err)
		}
	}
	return nil
}

// Close drains the connection.
func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// Publish encodes v and sends it asynchronously. The returned channel
// receives exactly one result once the broker acks or rejects the message.
func (c *Conn) Publish(topic, key string, v any) (<-chan PublishResult, error) {
	subject := subjectFor(topic, key)
	data, err := Encode(topic, key, v)
	if err != nil {
		return nil, err
	}
	fut, err := c.js.PublishAsync(subject, data)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", subject, err)
	}
	out := make(chan PublishResult, 1)
	go func() {
		select {
		case ack := <-fut.Ok():
			out <- PublishResult{Success: true, Subject: subject, Offset: ack.Sequence}
		case err := <-fut.Err():
			out <- PublishResult{Success: false, Subject: subject, ErrorMessage: err.Error()}
		}
	}()
	return out, nil
}

// Flush blocks until every outstanding publish is settled or the timeout
// elapses.
func (c *Conn) Flush(timeout time.Duration) error {
	select {
	case <-c.js.PublishAsyncComplete():
		return nil
	case <-time.After(timeout):
		return ErrFlushTimeout
	}
}

// Message is one delivered envelope with its position and ack handle.
type Message struct {
	Envelope Envelope
	Subject  string
	Offset   uint64
	ack      func() error
	nak      func() error
}

// NewMessage builds a detached message with no-op acks; used by tests.
func NewMessage(env Envelope, subject string, offset uint64) *Message {
	return &Message{Envelope: env, Subject: subject, Offset: offset}
}

// Ack commits the message.
func (m *Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Nak requests redelivery.
func (m *Message) Nak() error {
	if m.nak == nil {
		return nil
	}
	return m.nak()
}

// Consumer is a durable pull subscription on one topic family.
type Consumer struct {
	sub     *nats.Subscription
	durable string
}

// Subscribe creates (or resumes) a durable pull consumer covering the topic
// and all its partition keys.
func (c *Conn) Subscribe(topic, durable string) (*Consumer, error) {
	sub, err := c.js.PullSubscribe(topic+".>", durable,
		nats.AckExplicit(),
		nats.MaxAckPending(1024),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &Consumer{sub: sub, durable: durable}, nil
}

// Next returns the next decodable message. Frames that fail to decode are
// acked and skipped. Blocks until a message arrives or ctx is done.
func (s *Consumer) Next(ctx context.Context) (*Message, error) {
	for {
		msgs, err := s.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, ctx.Err()
			}
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", s.durable, err)
		}
		if len(msgs) == 0 {
			continue
		}
		raw := msgs[0]
		env, err := Decode(raw.Data)
		if err != nil {
			log.Warn("skipping undecodable message",
				zap.String("subject", raw.Subject),
				zap.String("durable", s.durable),
				zap.Error(err))
			_ = raw.Ack()
			continue
		}
		var offset uint64
		if meta, err := raw.Metadata(); err == nil {
			offset = meta.Sequence.Stream
		}
		return &Message{
			Envelope: env,
			Subject:  raw.Subject,
			Offset:   offset,
			ack:      func() error { return raw.Ack() },
			nak:      func() error { return raw.Nak() },
		}, nil
	}
}

// Unsubscribe tears down the subscription but keeps the durable state so a
// restart resumes from the last committed offset.
func (s *Consumer) Unsubscribe() error {
	return s.sub.Drain()
}
