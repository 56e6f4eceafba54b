package routing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// Planner builds the two legs of a cluster route.
type Planner struct {
	composer *Composer
	log      *zap.Logger
}

func NewPlanner(composer *Composer, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{composer: composer, log: log}
}

// PlanCluster routes a cluster. The pickup leg starts at the origin centroid
// and ends at the pivot, the member visited last in nearest-neighbour order;
// the dropoff leg runs from the pivot's origin to its destination through the
// other members' destinations. A dropoff failure is retried once in member
// order and then yields a partial route. A pickup failure fails the cluster.
func (p *Planner) PlanCluster(ctx context.Context, c *clustering.Cluster) (*ClusterRoute, error) {
	if c == nil || len(c.Members) == 0 {
		return nil, ErrEmptyCluster
	}
	members := c.Members

	origins := make([]types.Point, len(members))
	for i, m := range members {
		origins[i] = m.Origin
	}
	var anchor types.Point
	if c.HasStats() {
		anchor = c.CenterOrigin
	} else {
		anchor = geo.Centroid(origins)
	}

	order := NearestNeighborOrder(anchor, origins)
	pivotIdx := order[len(order)-1]
	pivot := members[pivotIdx]

	pickupStops := make([]types.Point, 0, len(order)-1)
	for _, idx := range order[:len(order)-1] {
		pickupStops = append(pickupStops, origins[idx])
	}
	pickup := p.composer.Compose(ctx, anchor, pivot.Origin, pickupStops)
	if !pickup.OK() {
		p.log.Error("pickup leg failed",
			zap.Int("cluster_id", c.ID),
			zap.Error(pickup.Err),
		)
		return nil, fmt.Errorf("cluster %d pickup: %w", c.ID, pickup.Err)
	}

	route := &ClusterRoute{
		ClusterID:      c.ID,
		Pickup:         pickup.Leg,
		PassengerCount: c.TotalPassengers,
		DepartureTime:  c.TimeRange.Start,
		PivotID:        pivot.ID,
		Trips:          members,
	}
	if route.PassengerCount == 0 {
		for _, m := range members {
			route.PassengerCount += m.Passengers()
		}
	}

	var dropStops []types.Point
	for i, m := range members {
		if i != pivotIdx {
			dropStops = append(dropStops, m.Destination)
		}
	}
	dropoff := p.composer.Compose(ctx, pivot.Origin, pivot.Destination, Sequence(pivot.Origin, dropStops))
	if !dropoff.OK() && ctx.Err() == nil {
		p.log.Warn("dropoff leg failed, retrying in member order",
			zap.Int("cluster_id", c.ID),
			zap.Error(dropoff.Err),
		)
		dropoff = p.composer.Compose(ctx, pivot.Origin, pivot.Destination, dropStops)
	}

	if dropoff.OK() {
		route.Dropoff = dropoff.Leg
	} else {
		p.log.Warn("returning pickup-only route",
			zap.Int("cluster_id", c.ID),
			zap.Error(dropoff.Err),
		)
		route.Partial = true
	}

	route.TotalDistanceM = route.Pickup.DistanceM
	route.TotalDurationS = route.Pickup.DurationS
	if route.Dropoff != nil {
		route.TotalDistanceM += route.Dropoff.DistanceM
		route.TotalDurationS += route.Dropoff.DurationS
	}

	p.log.Info("cluster routed",
		zap.Int("cluster_id", c.ID),
		zap.String("status", string(route.Status())),
		zap.Bool("partial", route.Partial),
		zap.Float64("distance_m", route.TotalDistanceM),
		zap.Float64("duration_s", route.TotalDurationS),
	)
	return route, nil
}
