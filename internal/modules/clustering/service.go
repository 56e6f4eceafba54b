// README: Clusterer runs preprocessing, temporal grouping, spatial clustering and aggregation.
package clustering

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	StagePreprocess = "preprocess"
	StageGroup      = "time_window"
	StageCluster    = "spatial_cluster"
	StageAggregate  = "aggregate"
)

// StageObserver receives per-stage timings.
type StageObserver interface {
	StageCompleted(stage string, took time.Duration, count int)
}

// Result is the clustering output of one batch.
type Result struct {
	Total     int
	Kept      []TripRequest
	Expired   []TripRequest
	Discarded []TripRequest
	Groups    int
	Labels    map[types.ID]int
	// Clusters includes the NoiseID bucket when any request is noise.
	Clusters    map[int]*Cluster
	Annotations map[types.ID]Annotation
}

// ValidClusterIDs returns the non-noise cluster ids in ascending order.
func (r *Result) ValidClusterIDs() []int {
	ids := make([]int, 0, len(r.Clusters))
	for id := range r.Clusters {
		if id != NoiseID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func (r *Result) NoiseCount() int {
	if n, ok := r.Clusters[NoiseID]; ok {
		return n.Size
	}
	return 0
}

type Clusterer struct {
	params   Params
	strategy Strategy
	workers  int
	log      *zap.Logger
	observer StageObserver
}

func NewClusterer(params Params, strategy Strategy, workers int, log *zap.Logger) *Clusterer {
	params = params.withDefaults()
	if strategy == nil {
		strategy = CliqueStrategy{ThresholdKm: params.SpatialThresholdKm, MinSamples: params.MinSamples}
	}
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Clusterer{params: params, strategy: strategy, workers: workers, log: log}
}

// WithObserver returns a copy reporting stage timings to o.
func (c *Clusterer) WithObserver(o StageObserver) *Clusterer {
	cp := *c
	cp.observer = o
	return &cp
}

func (c *Clusterer) Params() Params { return c.params }

func (c *Clusterer) Strategy() Strategy { return c.strategy }

// Run clusters a batch. Temporal groups are clustered concurrently; cluster
// ids are reserved from ids in group order once every group finishes, so the
// labelling does not depend on scheduling.
func (c *Clusterer) Run(ctx context.Context, reqs []TripRequest, ids *IDCounter) (*Result, error) {
	if ids == nil {
		ids = NewIDCounter(0)
	}
	res := &Result{Total: len(reqs), Labels: make(map[types.ID]int)}

	start := time.Now()
	pre, err := Preprocess(reqs, c.params.ExpiryWindow)
	if err != nil {
		return nil, err
	}
	res.Kept, res.Expired = pre.Kept, pre.Expired
	for _, r := range pre.Expired {
		c.log.Info("request expired",
			zap.String("request_id", string(r.ID)),
			zap.Time("departure_time", r.DepartureTime),
			zap.Time("baseline", pre.Baseline),
		)
	}
	c.stage(StagePreprocess, start, len(pre.Kept))

	start = time.Now()
	groups, discarded := GroupByTimeWindow(pre.Kept, c.params.TimeWindow, c.params.MinSamples)
	res.Groups, res.Discarded = len(groups), discarded
	c.stage(StageGroup, start, len(groups))

	start = time.Now()
	local := make([][][]int, len(groups))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local[i] = c.strategy.ClusterGroup(groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var clustered []TripRequest
	formed := 0
	for gi, group := range groups {
		base := ids.Reserve(len(local[gi]))
		for k, members := range local[gi] {
			for _, idx := range members {
				res.Labels[group[idx].ID] = base + k
			}
		}
		for _, r := range group {
			if _, ok := res.Labels[r.ID]; !ok {
				res.Labels[r.ID] = NoiseID
			}
		}
		formed += len(local[gi])
		clustered = append(clustered, group...)
	}
	c.stage(StageCluster, start, formed)

	start = time.Now()
	res.Clusters, res.Annotations = Aggregate(clustered, res.Labels)
	c.stage(StageAggregate, start, len(res.Clusters))

	c.log.Info("clustering finished",
		zap.String("strategy", c.strategy.Name()),
		zap.Int("total", res.Total),
		zap.Int("expired", len(res.Expired)),
		zap.Int("groups", res.Groups),
		zap.Int("discarded", len(res.Discarded)),
		zap.Int("clusters", formed),
		zap.Int("noise", res.NoiseCount()),
	)
	return res, nil
}

func (c *Clusterer) stage(name string, start time.Time, count int) {
	if c.observer != nil {
		c.observer.StageCompleted(name, time.Since(start), count)
	}
}
