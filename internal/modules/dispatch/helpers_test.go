package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

var (
	baseTime = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	originA  = types.Point{Lat: 31.2304, Lng: 121.4737}
	destA    = types.Point{Lat: 31.1443, Lng: 121.8083}
	// Ten kilometres north of A on both ends.
	originB = types.Point{Lat: 31.3202, Lng: 121.4737}
	destB   = types.Point{Lat: 31.2341, Lng: 121.8083}
)

func north(p types.Point, metres float64) types.Point {
	return types.Point{Lat: p.Lat + metres/111320.0, Lng: p.Lng}
}

func trip(id string, origin, dest types.Point, offset time.Duration) clustering.TripRequest {
	return clustering.TripRequest{
		ID:             types.ID(id),
		Origin:         origin,
		Destination:    dest,
		DepartureTime:  baseTime.Add(offset),
		PassengerCount: 1,
	}
}

func ptr[T any](v T) *T { return &v }

func record(id string, origin, dest types.Point, offset time.Duration) Record {
	return Record{
		ID:             id,
		Origin:         Location{Lat: ptr(origin.Lat), Lng: ptr(origin.Lng)},
		Destination:    Location{Lat: ptr(dest.Lat), Lng: ptr(dest.Lng)},
		DepartureTime:  baseTime.Add(offset).Format(time.RFC3339),
		PassengerCount: ptr(1),
	}
}

// twoPairs returns two spatially separate pairs in one time window; the A
// pair departs first and becomes cluster 0.
func twoPairs() []clustering.TripRequest {
	return []clustering.TripRequest{
		trip("a1", originA, destA, 0),
		trip("a2", north(originA, 150), north(destA, 150), time.Minute),
		trip("b1", originB, destB, 2*time.Minute),
		trip("b2", north(originB, 150), north(destB, 150), 3*time.Minute),
	}
}

var errPlanner = errors.New("planner down")

// fakePlanner builds a straight two-leg route per cluster and fails the
// cluster ids listed in fail.
type fakePlanner struct {
	fail  map[int]bool
	delay time.Duration

	mu      sync.Mutex
	active  int
	peak    int
	planned []int
}

func (p *fakePlanner) PlanCluster(ctx context.Context, c *clustering.Cluster) (*routing.ClusterRoute, error) {
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.planned = append(p.planned, c.ID)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.fail[c.ID] {
		return nil, errPlanner
	}
	pivot := c.Members[len(c.Members)-1]
	pickup := []types.Point{c.CenterOrigin, pivot.Origin}
	dropoff := []types.Point{pivot.Origin, pivot.Destination}
	r := &routing.ClusterRoute{
		ClusterID:      c.ID,
		Pickup:         &routing.RouteLeg{Origin: pickup[0], Destination: pickup[1], Polyline: pickup, DistanceM: geo.PathLengthKm(pickup) * 1000, DurationS: 60},
		Dropoff:        &routing.RouteLeg{Origin: dropoff[0], Destination: dropoff[1], Polyline: dropoff, DistanceM: geo.PathLengthKm(dropoff) * 1000, DurationS: 600},
		PassengerCount: c.TotalPassengers,
		DepartureTime:  c.TimeRange.Start,
		PivotID:        pivot.ID,
		Trips:          c.Members,
	}
	r.TotalDistanceM = r.Pickup.DistanceM + r.Dropoff.DistanceM
	r.TotalDurationS = r.Pickup.DurationS + r.Dropoff.DurationS
	return r, nil
}

type recordingObserver struct {
	NopObserver
	mu       sync.Mutex
	stages   []string
	formed   []int
	built    map[int]routing.Status
	finished []*Envelope
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{built: map[int]routing.Status{}}
}

func (o *recordingObserver) StageCompleted(stage string, _ time.Duration, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ClusterFormed(id, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.formed = append(o.formed, id)
}

func (o *recordingObserver) RouteBuilt(id int, s routing.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.built[id] = s
}

func (o *recordingObserver) BatchFinished(env *Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, env)
}

func newTestOrchestrator(p ClusterPlanner, workers int) *Orchestrator {
	c := clustering.NewClusterer(clustering.DefaultParams(), nil, 2, nil)
	o := NewOrchestrator(c, p, workers, nil)
	o.now = func() time.Time { return baseTime }
	return o
}

// lineProvider answers every request with the straight requested path.
type lineProvider struct {
	err error
}

func (p lineProvider) Name() string { return "line" }

func (p lineProvider) PlanRoute(_ context.Context, origin, destination types.Point, waypoints []types.Point) (*routing.ProviderRoute, error) {
	if p.err != nil {
		return nil, p.err
	}
	path := append([]types.Point{origin}, waypoints...)
	path = append(path, destination)
	d := geo.PathLengthKm(path) * 1000
	return &routing.ProviderRoute{DistanceM: d, DurationS: d / 10, Polyline: path}, nil
}
