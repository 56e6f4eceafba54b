// README: Plan stores persist routed clusters and link each request to its plan.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

type PlanStore interface {
	SavePlans(ctx context.Context, runID string, plans []PlanRecord) error
	ListPlans(ctx context.Context, runID string) ([]PlanRecord, error)
}

type PGPlanStore struct {
	db *pgxpool.Pool
}

func NewPGPlanStore(db *pgxpool.Pool) *PGPlanStore {
	return &PGPlanStore{db: db}
}

// SavePlans writes all plans of a run and their request links in one
// transaction.
func (s *PGPlanStore) SavePlans(ctx context.Context, runID string, plans []PlanRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range plans {
		var planID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO dispatch_plan (
				run_id, cluster_id, start_time, status, route_polyline,
				distance_m, duration_s, passenger_count, is_fallback, partial
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			runID, p.ClusterID, p.StartTime, p.Status, p.RoutePolyline,
			p.DistanceM, p.DurationS, p.PassengerCount, p.IsFallback, p.Partial,
		).Scan(&planID)
		if err != nil {
			return fmt.Errorf("insert plan for cluster %d: %w", p.ClusterID, err)
		}

		batch := &pgx.Batch{}
		for _, id := range p.RequestIDs {
			batch.Queue(`INSERT INTO request_dispatch_link (request_id, plan_id) VALUES ($1, $2)`, string(id), planID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("link requests to cluster %d: %w", p.ClusterID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PGPlanStore) ListPlans(ctx context.Context, runID string) ([]PlanRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.cluster_id, p.start_time, p.status, p.route_polyline,
		       p.distance_m, p.duration_s, p.passenger_count, p.is_fallback, p.partial,
		       coalesce(array_agg(l.request_id ORDER BY l.id) FILTER (WHERE l.request_id IS NOT NULL), '{}')
		FROM dispatch_plan p
		LEFT JOIN request_dispatch_link l ON l.plan_id = p.id
		WHERE p.run_id = $1
		GROUP BY p.id
		ORDER BY p.cluster_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		var p PlanRecord
		var start *time.Time
		var ids []string
		if err := rows.Scan(
			&p.ClusterID, &start, &p.Status, &p.RoutePolyline,
			&p.DistanceM, &p.DurationS, &p.PassengerCount, &p.IsFallback, &p.Partial,
			&ids,
		); err != nil {
			return nil, err
		}
		if start != nil {
			p.StartTime = *start
		}
		for _, id := range ids {
			p.RequestIDs = append(p.RequestIDs, types.ID(id))
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dispatch_plan (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	cluster_id INTEGER NOT NULL,
	start_time TEXT,
	status TEXT NOT NULL DEFAULT 'planned',
	route_polyline TEXT NOT NULL DEFAULT '',
	distance_m REAL NOT NULL DEFAULT 0,
	duration_s REAL NOT NULL DEFAULT 0,
	passenger_count INTEGER NOT NULL DEFAULT 0,
	is_fallback INTEGER NOT NULL DEFAULT 0,
	partial INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (run_id, cluster_id)
);

CREATE TABLE IF NOT EXISTS request_dispatch_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL UNIQUE,
	plan_id INTEGER NOT NULL REFERENCES dispatch_plan(id) ON DELETE CASCADE
);
`

// SQLitePlanStore is the single-node plan store.
type SQLitePlanStore struct {
	db *sql.DB
}

func OpenSQLitePlanStore(path string) (*SQLitePlanStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewSQLitePlanStore(db)
}

// NewSQLitePlanStore prepares db and creates the plan tables if missing.
func NewSQLitePlanStore(db *sql.DB) (*SQLitePlanStore, error) {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLitePlanStore{db: db}, nil
}

func (s *SQLitePlanStore) Close() error { return s.db.Close() }

func (s *SQLitePlanStore) SavePlans(ctx context.Context, runID string, plans []PlanRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range plans {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO dispatch_plan (
				run_id, cluster_id, start_time, status, route_polyline,
				distance_m, duration_s, passenger_count, is_fallback, partial
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, p.ClusterID, formatTime(p.StartTime), p.Status, p.RoutePolyline,
			p.DistanceM, p.DurationS, p.PassengerCount, p.IsFallback, p.Partial,
		)
		if err != nil {
			return fmt.Errorf("insert plan for cluster %d: %w", p.ClusterID, err)
		}
		planID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, id := range p.RequestIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO request_dispatch_link (request_id, plan_id) VALUES (?, ?)`,
				string(id), planID,
			); err != nil {
				return fmt.Errorf("link request %s: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLitePlanStore) ListPlans(ctx context.Context, runID string) ([]PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cluster_id, start_time, status, route_polyline,
		       distance_m, duration_s, passenger_count, is_fallback, partial
		FROM dispatch_plan
		WHERE run_id = ?
		ORDER BY cluster_id`, runID)
	if err != nil {
		return nil, err
	}

	var (
		out     []PlanRecord
		planIDs []int64
	)
	for rows.Next() {
		var p PlanRecord
		var id int64
		var start sql.NullString
		if err := rows.Scan(
			&id, &p.ClusterID, &start, &p.Status, &p.RoutePolyline,
			&p.DistanceM, &p.DurationS, &p.PassengerCount, &p.IsFallback, &p.Partial,
		); err != nil {
			rows.Close()
			return nil, err
		}
		if start.Valid && start.String != "" {
			if p.StartTime, err = time.Parse(time.RFC3339Nano, start.String); err != nil {
				rows.Close()
				return nil, fmt.Errorf("parse start_time of plan %d: %w", id, err)
			}
		}
		out = append(out, p)
		planIDs = append(planIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, planID := range planIDs {
		ids, err := s.linkedRequests(ctx, planID)
		if err != nil {
			return nil, err
		}
		out[i].RequestIDs = ids
	}
	return out, nil
}

// IsLinked reports whether the request already belongs to a stored plan.
func (s *SQLitePlanStore) IsLinked(ctx context.Context, requestID types.ID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_dispatch_link WHERE request_id = ?`, string(requestID),
	).Scan(&n)
	return n > 0, err
}

func (s *SQLitePlanStore) linkedRequests(ctx context.Context, planID int64) ([]types.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id FROM request_dispatch_link WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
