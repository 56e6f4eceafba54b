// README: user_request store backed by PostgreSQL.
package request

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *Request) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_request (
			id, origin_lat, origin_lng, dest_lat, dest_lng,
			departure_time, people_count, status, status_version, submit_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(r.ID),
		r.Origin.Lat, r.Origin.Lng,
		r.Destination.Lat, r.Destination.Lng,
		r.DepartureTime,
		r.PeopleCount,
		string(r.Status),
		r.StatusVersion,
		r.SubmitTime,
	)
	return err
}

const selectColumns = `
	SELECT ur.id, ur.origin_lat, ur.origin_lng, ur.dest_lat, ur.dest_lng,
	       ur.departure_time, ur.people_count, ur.status, ur.status_version,
	       ur.cluster_id, ur.submit_time
	FROM user_request ur`

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE ur.id = $1`, string(id))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListPendingUnlinked returns pending requests that no dispatch plan
// references yet, earliest departure first.
func (s *Store) ListPendingUnlinked(ctx context.Context, limit int) ([]*Request, error) {
	rows, err := s.db.Query(ctx, selectColumns+`
		LEFT JOIN request_dispatch_link rdl ON rdl.request_id = ur.id
		WHERE ur.status = 'pending' AND rdl.id IS NULL
		ORDER BY ur.departure_time
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus moves every listed request still in from to to and reports how
// many rows changed.
func (s *Store) UpdateStatus(ctx context.Context, ids []types.ID, from, to Status, clusterID *int) (int64, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE user_request
		SET status = $1,
		    status_version = status_version + 1,
		    cluster_id = COALESCE($2, cluster_id)
		WHERE id = ANY($3) AND status = $4`,
		string(to),
		clusterID,
		raw,
		string(from),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID,
		&r.Origin.Lat, &r.Origin.Lng,
		&r.Destination.Lat, &r.Destination.Lng,
		&r.DepartureTime,
		&r.PeopleCount,
		&r.Status,
		&r.StatusVersion,
		&r.ClusterID,
		&r.SubmitTime,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
