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
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/teradata-labs/flywheel/pkg/model"
)

// UpsertCluster creates or refreshes a cluster. The deterministic ID makes
// re-detection of an identical member set a content refresh, which is the
// designed idempotency mechanism.
func (s *Store) UpsertCluster(ctx context.Context, c model.Cluster) error {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clusters (id, members, cohesion, proactive, active, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			members = excluded.members,
			cohesion = excluded.cohesion,
			proactive = excluded.proactive,
			active = excluded.active,
			detected_at = excluded.detected_at`,
		c.ID, string(members), c.Cohesion, c.Proactive, c.Active, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("upsert cluster %s: %w", c.ID, err)
	}
	return nil
}

// GetCluster loads one cluster.
func (s *Store) GetCluster(ctx context.Context, id string) (model.Cluster, error) {
	var r clusterRow
	if err := s.db.GetContext(ctx, &r, `SELECT * FROM clusters WHERE id = ?`, id); err != nil {
		return model.Cluster{}, notFound(err)
	}
	return r.toModel()
}

// ListActiveClusters returns all active clusters; proactiveOnly restricts to
// the proactive kind when set.
func (s *Store) ListActiveClusters(ctx context.Context) ([]model.Cluster, error) {
	var rows []clusterRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM clusters WHERE active = 1 ORDER BY detected_at DESC`); err != nil {
		return nil, err
	}
	return toClusters(rows)
}

// DeactivateStaleClusters marks previously-active behavioral clusters not in
// keep inactive once their last detection is older than cutoff. Returns the
// number of clusters deactivated.
func (s *Store) DeactivateStaleClusters(ctx context.Context, keep []string, cutoff time.Time) (int64, error) {
	query := `UPDATE clusters SET active = 0 WHERE active = 1 AND proactive = 0 AND detected_at < ?`
	args := []any{cutoff.UTC()}
	if len(keep) > 0 {
		in, inArgs, err := sqlx.In(`id NOT IN (?)`, keep)
		if err != nil {
			return 0, err
		}
		query += ` AND ` + in
		args = append(args, inArgs...)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale clusters: %w", err)
	}
	return res.RowsAffected()
}

// PurgeInactiveClusters deletes inactive clusters older than cutoff that no
// pending or approved suggestion still references.
func (s *Store) PurgeInactiveClusters(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM clusters
		WHERE active = 0 AND detected_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM suggestions sg
			WHERE sg.cluster_id = clusters.id AND sg.state IN ('pending', 'approved')
		  )`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type clusterRow struct {
	ID          string    `db:"id"`
	MembersJSON string    `db:"members"`
	Cohesion    float64   `db:"cohesion"`
	Proactive   bool      `db:"proactive"`
	Active      bool      `db:"active"`
	DetectedAt  time.Time `db:"detected_at"`
}

func (r clusterRow) toModel() (model.Cluster, error) {
	var members []int64
	if err := json.Unmarshal([]byte(r.MembersJSON), &members); err != nil {
		return model.Cluster{}, fmt.Errorf("cluster %s members: %w", r.ID, err)
	}
	return model.Cluster{
		ID:         r.ID,
		Members:    members,
		Cohesion:   r.Cohesion,
		Proactive:  r.Proactive,
		Active:     r.Active,
		DetectedAt: r.DetectedAt,
	}, nil
}

func toClusters(rows []clusterRow) ([]model.Cluster, error) {
	out := make([]model.Cluster, len(rows))
	for i, r := range rows {
		c, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
