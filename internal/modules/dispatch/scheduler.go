package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// RequestSource supplies pending requests and records their outcome.
type RequestSource interface {
	PendingTrips(ctx context.Context, limit int) ([]clustering.TripRequest, error)
	MarkDispatched(ctx context.Context, ids []types.ID, clusterID int) error
	MarkExpired(ctx context.Context, ids []types.ID) error
}

// DispatchCache remembers dispatched requests and the latest run.
type DispatchCache interface {
	SaveLatest(ctx context.Context, env *Envelope) error
	MarkDispatched(ctx context.Context, ids []types.ID) error
	FilterUndispatched(ctx context.Context, ids []types.ID) ([]types.ID, error)
}

type SchedulerConfig struct {
	Interval   time.Duration
	BatchLimit int
}

type Scheduler struct {
	orch      *Orchestrator
	source    RequestSource
	plans     PlanStore
	cache     DispatchCache
	publisher Publisher
	cfg       SchedulerConfig
	log       *zap.Logger
}

func NewScheduler(orch *Orchestrator, source RequestSource, plans PlanStore, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		orch:      orch,
		source:    source,
		plans:     plans,
		publisher: NopPublisher{},
		cfg:       cfg,
		log:       log,
	}
}

func (s *Scheduler) WithCache(c DispatchCache) *Scheduler {
	cp := *s
	cp.cache = c
	return &cp
}

func (s *Scheduler) WithPublisher(p Publisher) *Scheduler {
	cp := *s
	if p == nil {
		p = NopPublisher{}
	}
	cp.publisher = p
	return &cp
}

// Run processes pending requests immediately and then on every tick until ctx
// is done. A failing tick is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("dispatch scheduler started", zap.Duration("interval", s.cfg.Interval))
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("dispatch scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("dispatch tick failed", zap.Error(err))
	}
}

// RunOnce performs a single dispatch pass. It returns a nil envelope when
// nothing is pending.
func (s *Scheduler) RunOnce(ctx context.Context) (*Envelope, error) {
	reqs, err := s.source.PendingTrips(ctx, s.cfg.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	reqs = s.dropDispatched(ctx, reqs)
	if len(reqs) == 0 {
		s.log.Info("no pending requests")
		return nil, nil
	}
	s.log.Info("dispatching pending requests", zap.Int("count", len(reqs)))

	env := s.orch.RunRequests(ctx, reqs)
	if s.cache != nil {
		if err := s.cache.SaveLatest(ctx, env); err != nil {
			s.log.Warn("failed to cache envelope", zap.String("run_id", env.RunID), zap.Error(err))
		}
	}
	if len(env.ExpiredIDs) > 0 {
		if err := s.source.MarkExpired(ctx, env.ExpiredIDs); err != nil {
			s.log.Warn("failed to mark expired requests", zap.Error(err))
		}
	}
	if !env.Success {
		return env, fmt.Errorf("run %s: %s: %w", env.RunID, env.ErrorCode, env.Err())
	}

	plans := ToPlanRecords(env)
	if err := s.plans.SavePlans(ctx, env.RunID, plans); err != nil {
		return env, fmt.Errorf("save plans: %w", err)
	}
	var dispatched []types.ID
	for _, p := range plans {
		if err := s.source.MarkDispatched(ctx, p.RequestIDs, p.ClusterID); err != nil {
			s.log.Warn("failed to mark requests dispatched",
				zap.Int("cluster_id", p.ClusterID),
				zap.Error(err),
			)
		}
		dispatched = append(dispatched, p.RequestIDs...)
	}
	if s.cache != nil {
		if err := s.cache.MarkDispatched(ctx, dispatched); err != nil {
			s.log.Warn("failed to cache dispatched ids", zap.Error(err))
		}
	}
	if err := s.publisher.PublishPlans(ctx, env.RunID, plans); err != nil {
		s.log.Warn("failed to publish plans", zap.String("run_id", env.RunID), zap.Error(err))
	}

	s.log.Info("dispatch run stored",
		zap.String("run_id", env.RunID),
		zap.Int("plans", len(plans)),
		zap.Int("requests", len(dispatched)),
	)
	return env, nil
}

func (s *Scheduler) dropDispatched(ctx context.Context, reqs []clustering.TripRequest) []clustering.TripRequest {
	if s.cache == nil || len(reqs) == 0 {
		return reqs
	}
	ids := make([]types.ID, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	keep, err := s.cache.FilterUndispatched(ctx, ids)
	if err != nil {
		s.log.Warn("dispatched-set lookup failed, using store state only", zap.Error(err))
		return reqs
	}
	allowed := make(map[types.ID]struct{}, len(keep))
	for _, id := range keep {
		allowed[id] = struct{}{}
	}
	out := reqs[:0:0]
	for _, r := range reqs {
		if _, ok := allowed[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}
