package clustering

import (
	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// Aggregate buckets requests by their label and computes centroids, time
// range, passenger totals and spreads for every non-noise cluster. Requests
// without a label are treated as noise. The result is a pure function of
// membership and input order.
func Aggregate(requests []TripRequest, labels map[types.ID]int) (map[int]*Cluster, map[types.ID]Annotation) {
	clusters := make(map[int]*Cluster)
	annotations := make(map[types.ID]Annotation, len(requests))
	if len(requests) == 0 {
		return clusters, annotations
	}

	for _, r := range requests {
		id, ok := labels[r.ID]
		if !ok {
			id = NoiseID
		}
		c := clusters[id]
		if c == nil {
			c = &Cluster{ID: id}
			clusters[id] = c
		}
		c.Members = append(c.Members, r)
		c.Size++
	}

	for id, c := range clusters {
		if id == NoiseID {
			continue
		}
		enrich(c)
	}

	for _, c := range clusters {
		for _, m := range c.Members {
			annotations[m.ID] = Annotation{
				ClusterID:         c.ID,
				CenterOrigin:      c.CenterOrigin,
				CenterDestination: c.CenterDestination,
			}
		}
	}
	return clusters, annotations
}

func enrich(c *Cluster) {
	origins := make([]types.Point, len(c.Members))
	dests := make([]types.Point, len(c.Members))
	for i, m := range c.Members {
		origins[i] = m.Origin
		dests[i] = m.Destination
		c.TotalPassengers += m.Passengers()
		if i == 0 || m.DepartureTime.Before(c.TimeRange.Start) {
			c.TimeRange.Start = m.DepartureTime
		}
		if i == 0 || m.DepartureTime.After(c.TimeRange.End) {
			c.TimeRange.End = m.DepartureTime
		}
	}
	c.CenterOrigin = geo.Centroid(origins)
	c.CenterDestination = geo.Centroid(dests)
	c.MaxOriginSpreadKm = geo.MaxPairwiseKm(origins)
	c.MaxDestinationSpreadKm = geo.MaxPairwiseKm(dests)
}
