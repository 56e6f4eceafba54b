package maps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

type fakeDirections struct {
	req    *maps.DirectionsRequest
	routes []maps.Route
	err    error
}

func (f *fakeDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.req = r
	return f.routes, nil, f.err
}

func TestGoogleProvider_SumsLegs(t *testing.T) {
	overview := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	fake := &fakeDirections{routes: []maps.Route{{
		OverviewPolyline: maps.Polyline{Points: overview},
		Legs: []*maps.Leg{
			{Distance: maps.Distance{Meters: 1000}, Duration: 2 * time.Minute,
				Steps: []*maps.Step{{HTMLInstructions: "Head <b>north</b>", Distance: maps.Distance{Meters: 1000}, Duration: 2 * time.Minute}}},
			{Distance: maps.Distance{Meters: 500}, Duration: time.Minute},
		},
	}}}
	p := &GoogleProvider{client: fake}

	route, err := p.PlanRoute(context.Background(),
		types.Point{Lat: 38.5, Lng: -120.2}, types.Point{Lat: 43.252, Lng: -126.453},
		[]types.Point{{Lat: 40.7, Lng: -120.95}})
	require.NoError(t, err)

	assert.Equal(t, "38.500000,-120.200000", fake.req.Origin)
	assert.Equal(t, []string{"40.700000,-120.950000"}, fake.req.Waypoints)
	assert.Equal(t, maps.TravelModeDriving, fake.req.Mode)
	assert.Equal(t, 1500.0, route.DistanceM)
	assert.Equal(t, 180.0, route.DurationS)
	require.Len(t, route.Polyline, 3)
	assert.InDelta(t, 40.7, route.Polyline[1].Lat, 1e-6)
	require.Len(t, route.Steps, 1)
	assert.Equal(t, "Head <b>north</b>", route.Steps[0].Instruction)
}

func TestGoogleProvider_NoRoutes(t *testing.T) {
	p := &GoogleProvider{client: &fakeDirections{}}
	_, err := p.PlanRoute(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 2, Lng: 2}, nil)
	assert.Equal(t, routing.KindMalformed, routing.Classify(err))
}

func TestGoogleProvider_ClassifiesStatus(t *testing.T) {
	cases := map[string]routing.ErrorKind{
		"maps: OVER_QUERY_LIMIT - slow down":   routing.KindRateLimited,
		"maps: REQUEST_DENIED - key invalid":   routing.KindAuth,
		"maps: OVER_DAILY_LIMIT - billing":     routing.KindQuota,
		"maps: MAX_WAYPOINTS_EXCEEDED - 26":    routing.KindRejected,
		"dial tcp: lookup maps.googleapis.com": routing.KindTransport,
	}
	for msg, want := range cases {
		p := &GoogleProvider{client: &fakeDirections{err: errors.New(msg)}}
		_, err := p.PlanRoute(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 2, Lng: 2}, nil)
		assert.Equal(t, want, routing.Classify(err), msg)
	}
}

func TestStraightProvider(t *testing.T) {
	route, err := StraightProvider{}.PlanRoute(context.Background(),
		types.Point{Lat: 31, Lng: 121}, types.Point{Lat: 31.1, Lng: 121}, nil)
	require.NoError(t, err)
	assert.NoError(t, routing.ValidateRoute(route))
	assert.InDelta(t, 11119.5, route.DistanceM, 1)
}

func TestNew(t *testing.T) {
	p, err := New("osrm", Config{})
	require.NoError(t, err)
	assert.Equal(t, "osrm", p.Name())

	p, err = New("", Config{})
	require.NoError(t, err)
	assert.Equal(t, "straight", p.Name())

	_, err = New("here", Config{})
	assert.Error(t, err)
}
