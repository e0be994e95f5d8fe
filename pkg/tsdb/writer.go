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
package tsdb

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
)

// EncodeBatch renders a batch as line protocol. Rows keep batch order.
// When a row collides with an earlier row of the same tag and timestamp,
// its timestamp is shifted by (row index × 1 µs) so the store's
// (tag, timestamp) uniqueness invariant holds deterministically: re-encoding
// the same batch yields byte-identical output.
func EncodeBatch(table string, batch *model.Batch) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)

	seen := make(map[string]struct{}, len(batch.Points))
	for i, p := range batch.Points {
		ts := p.Timestamp
		if _, dup := seen[p.Key()]; dup {
			ts = ts.Add(time.Duration(i) * time.Microsecond)
		}
		seen[p.Key()] = struct{}{}

		enc.StartLine(table)
		enc.AddTag("seq", strconv.FormatInt(p.SeqID, 10))
		enc.AddField("value", lineprotocol.MustNewValue(p.Value))
		enc.AddField("quality", lineprotocol.MustNewValue(int64(p.Quality)))
		if p.SourceTag != "" {
			enc.AddField("source_tag", lineprotocol.MustNewValue(p.SourceTag))
		}
		enc.EndLine(ts)
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	return enc.Bytes(), nil
}

// writeILP sends one encoded payload over a fresh TCP connection. The
// ingest protocol is fire-and-forget; an error only surfaces as a failed
// dial or write within the deadline.
func (c *Client) writeILP(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.cfg.ILPAddr)
	if err != nil {
		return fmt.Errorf("dial ilp %s: %w", c.cfg.ILPAddr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write ilp: %w", err)
	}
	return nil
}

// Append implements Gateway. Transient write errors are retried in-place
// with a short linear backoff before surfacing.
func (c *Client) Append(ctx context.Context, batch *model.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	payload, err := EncodeBatch(c.cfg.Table, batch)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = c.writeILP(ctx, payload); lastErr == nil {
			return nil
		}
		log.Debug("ilp write failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("batch", batch.ID),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("append batch %s after %d attempts: %w", batch.ID, writeAttempts, lastErr)
}

const writeAttempts = 3
