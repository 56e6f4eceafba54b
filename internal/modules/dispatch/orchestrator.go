// README: Orchestrator is the batch entry point. Every call returns a well-formed envelope.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// ClusterPlanner routes one cluster.
type ClusterPlanner interface {
	PlanCluster(ctx context.Context, c *clustering.Cluster) (*routing.ClusterRoute, error)
}

type Orchestrator struct {
	clusterer *clustering.Clusterer
	planner   ClusterPlanner
	validator *Validator
	workers   int
	observer  Observer
	log       *zap.Logger
	now       func() time.Time
	newRunID  func() string
}

// NewOrchestrator wires the pipeline. workers bounds concurrent cluster
// routing.
func NewOrchestrator(clusterer *clustering.Clusterer, planner ClusterPlanner, workers int, log *zap.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		clusterer: clusterer,
		planner:   planner,
		validator: NewValidator(),
		workers:   workers,
		observer:  NopObserver{},
		log:       log,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// WithObserver returns a copy reporting pipeline events to obs, including
// clustering stage timings.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	cp := *o
	if obs == nil {
		obs = NopObserver{}
	}
	cp.observer = obs
	cp.clusterer = o.clusterer.WithObserver(obs)
	return &cp
}

// Run validates raw records and processes the batch. A single invalid record
// fails the whole batch.
func (o *Orchestrator) Run(ctx context.Context, records []Record) *Envelope {
	start := time.Now()
	env := o.newEnvelope(len(records))
	if len(records) == 0 {
		return o.fail(env, start, CodeEmptyBatch, ErrEmptyBatch)
	}
	reqs, err := o.validator.Batch(records)
	if err != nil {
		return o.fail(env, start, CodeInvalidInput, err)
	}
	return o.process(ctx, env, start, reqs)
}

// RunRequests processes already-typed requests, such as rows loaded from the
// request store.
func (o *Orchestrator) RunRequests(ctx context.Context, reqs []clustering.TripRequest) *Envelope {
	start := time.Now()
	env := o.newEnvelope(len(reqs))
	if len(reqs) == 0 {
		return o.fail(env, start, CodeEmptyBatch, ErrEmptyBatch)
	}
	return o.process(ctx, env, start, reqs)
}

func (o *Orchestrator) process(ctx context.Context, env *Envelope, start time.Time, reqs []clustering.TripRequest) *Envelope {
	res, err := o.clusterer.Run(ctx, reqs, clustering.NewIDCounter(0))
	if err != nil {
		return o.fail(env, start, codeFor(ctx, err), err)
	}

	env.Clusters = res.Clusters
	env.Annotations = res.Annotations
	env.NoisePoints = res.NoiseCount()
	env.ExpiredIDs = idsOf(res.Expired)
	env.DiscardedIDs = idsOf(res.Discarded)

	valid := res.ValidClusterIDs()
	env.ValidClusters = len(valid)
	for _, id := range valid {
		o.observer.ClusterFormed(id, res.Clusters[id].Size)
	}
	if len(valid) == 0 {
		return o.fail(env, start, CodeNoClusters, ErrNoClusters)
	}

	env.Routes, env.RouteFailures = o.planAll(ctx, res.Clusters, valid)
	if len(env.Routes) == 0 {
		if ctx.Err() != nil {
			return o.fail(env, start, CodeCancelled, ctx.Err())
		}
		return o.fail(env, start, CodeNoRoutes, ErrNoRoutes)
	}

	env.Success = true
	return o.finish(env, start)
}

// planAll routes every valid cluster on a bounded pool. A failing cluster is
// recorded and never cancels its siblings.
func (o *Orchestrator) planAll(ctx context.Context, clusters map[int]*clustering.Cluster, ids []int) (map[int]*routing.ClusterRoute, []RouteFailure) {
	var (
		mu       sync.Mutex
		routes   = make(map[int]*routing.ClusterRoute, len(ids))
		failures []RouteFailure
		g        errgroup.Group
	)
	g.SetLimit(o.workers)
	for _, id := range ids {
		c := clusters[id]
		g.Go(func() error {
			route, err := o.planner.PlanCluster(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.log.Warn("cluster dropped from routes",
					zap.Int("cluster_id", id),
					zap.Error(err),
				)
				failures = append(failures, RouteFailure{ClusterID: id, Error: err.Error()})
				o.observer.RouteBuilt(id, routing.StatusFailed)
				return nil
			}
			routes[id] = route
			o.observer.RouteBuilt(id, route.Status())
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failures, func(i, j int) bool { return failures[i].ClusterID < failures[j].ClusterID })
	return routes, failures
}

func (o *Orchestrator) newEnvelope(total int) *Envelope {
	return &Envelope{
		RunID:         o.newRunID(),
		TotalRequests: total,
		Clusters:      map[int]*clustering.Cluster{},
		Routes:        map[int]*routing.ClusterRoute{},
	}
}

func (o *Orchestrator) fail(env *Envelope, start time.Time, code string, err error) *Envelope {
	env.Success = false
	env.ErrorCode = code
	env.Error = err.Error()
	env.err = err
	var ve *clustering.ValidationError
	if errors.As(err, &ve) {
		env.ValidationError = ve
	}
	return o.finish(env, start)
}

func (o *Orchestrator) finish(env *Envelope, start time.Time) *Envelope {
	env.ProcessingTime = time.Since(start).Seconds()
	env.Timestamp = o.now()
	o.observer.BatchFinished(env)
	return env
}

func codeFor(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, clustering.ErrInvalidRequest):
		return CodeInvalidInput
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

func idsOf(reqs []clustering.TripRequest) []types.ID {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]types.ID, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}
