package routing

import (
	"context"
	"sync"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

type call struct {
	origin      types.Point
	destination types.Point
	waypoints   []types.Point
}

// path is the point sequence a call asks the provider to follow.
func (c call) path() []types.Point {
	out := append([]types.Point{c.origin}, c.waypoints...)
	return append(out, c.destination)
}

type respondFunc func(ctx context.Context, n int, c call) (*ProviderRoute, error)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   []call
	respond respondFunc
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*ProviderRoute, error) {
	p.mu.Lock()
	n := len(p.calls)
	c := call{origin: origin, destination: destination, waypoints: append([]types.Point(nil), waypoints...)}
	p.calls = append(p.calls, c)
	respond := p.respond
	p.mu.Unlock()

	if respond == nil {
		return straightRoute(c), nil
	}
	return respond(ctx, n, c)
}

func (p *scriptedProvider) recorded() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

// straightRoute answers with the requested path at 36 km/h and one toll unit
// per call.
func straightRoute(c call) *ProviderRoute {
	line := c.path()
	d := geo.PathLengthKm(line) * 1000
	return &ProviderRoute{
		DistanceM: d,
		DurationS: d / 10,
		Polyline:  line,
		TollCost:  1,
		Steps:     []Step{{Instruction: "follow", DistanceM: d, DurationS: d / 10}},
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Status
	tries  []int
}

func (o *recordingObserver) ProviderCall(outcome Status, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, outcome)
	o.tries = append(o.tries, attempts)
}

// newTestAdapter returns an adapter whose backoff sleeps are recorded
// instead of slept.
func newTestAdapter(p Provider, retryLimit int) (*Adapter, *[]time.Duration) {
	a := NewAdapter(p, AdapterConfig{Timeout: time.Second, RetryLimit: retryLimit, BackoffBase: 100 * time.Millisecond}, nil)
	var slept []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return a, &slept
}

var (
	pA = types.Point{Lat: 31.2304, Lng: 121.4737}
	pB = types.Point{Lat: 31.2400, Lng: 121.4800}
	pC = types.Point{Lat: 31.2500, Lng: 121.4900}
	pD = types.Point{Lat: 31.2600, Lng: 121.5000}
)

// line returns n points stepping north-east from start.
func line(start types.Point, n int) []types.Point {
	out := make([]types.Point, n)
	for i := range out {
		out[i] = types.Point{Lat: start.Lat + float64(i+1)*0.002, Lng: start.Lng + float64(i+1)*0.001}
	}
	return out
}
