// README: Request service validates intake and applies lifecycle transitions.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("request not found")
	ErrConflict     = errors.New("request state conflict")
	ErrBadRequest   = errors.New("bad request")
)

// Repository is the persistence the service needs. *Store implements it.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id types.ID) (*Request, error)
	ListPendingUnlinked(ctx context.Context, limit int) ([]*Request, error)
	UpdateStatus(ctx context.Context, ids []types.ID, from, to Status, clusterID *int) (int64, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type CreateCommand struct {
	ID            types.ID
	Origin        types.Point
	Destination   types.Point
	DepartureTime time.Time
	PeopleCount   int
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Request, error) {
	if !cmd.Origin.Valid() || !cmd.Destination.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}
	if cmd.DepartureTime.IsZero() {
		return nil, fmt.Errorf("%w: departure_time is required", ErrBadRequest)
	}
	if cmd.PeopleCount == 0 {
		cmd.PeopleCount = 1
	}
	if cmd.PeopleCount < 1 {
		return nil, fmt.Errorf("%w: people_count must be at least 1", ErrBadRequest)
	}
	if cmd.ID == "" {
		cmd.ID = types.ID(uuid.NewString())
	}

	r := &Request{
		ID:            cmd.ID,
		Origin:        cmd.Origin,
		Destination:   cmd.Destination,
		DepartureTime: cmd.DepartureTime,
		PeopleCount:   cmd.PeopleCount,
		Status:        StatusPending,
		SubmitTime:    s.now(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]*Request, error) {
	return s.repo.ListPendingUnlinked(ctx, limit)
}

// PendingTrips returns pending, unlinked requests as pipeline input.
func (s *Service) PendingTrips(ctx context.Context, limit int) ([]clustering.TripRequest, error) {
	rows, err := s.repo.ListPendingUnlinked(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]clustering.TripRequest, len(rows))
	for i, r := range rows {
		out[i] = r.TripRequest()
	}
	return out, nil
}

func (s *Service) MarkDispatched(ctx context.Context, ids []types.ID, clusterID int) error {
	return s.transition(ctx, ids, StatusPending, StatusDispatched, &clusterID)
}

func (s *Service) MarkExpired(ctx context.Context, ids []types.ID) error {
	return s.transition(ctx, ids, StatusPending, StatusExpired, nil)
}

func (s *Service) Cancel(ctx context.Context, id types.ID) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, []types.ID{id}, r.Status, StatusCancelled, nil)
}

// transition applies from -> to to every id. Rows that already left from are
// reported as ErrConflict.
func (s *Service) transition(ctx context.Context, ids []types.ID, from, to Status, clusterID *int) error {
	if len(ids) == 0 {
		return nil
	}
	if !CanTransition(from, to) {
		return ErrInvalidState
	}
	n, err := s.repo.UpdateStatus(ctx, ids, from, to, clusterID)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d requests moved to %s", ErrConflict, n, len(ids), to)
	}
	return nil
}
