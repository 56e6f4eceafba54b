// README: Route providers backing the routing adapter: Google Directions, AMap, OSRM and straight-line.
package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// directionsClient is the part of *maps.Client GoogleProvider needs.
type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleProvider plans routes with the Google Directions API.
type GoogleProvider struct {
	client   directionsClient
	language string
	region   string
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client, language: "zh-CN"}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

// PlanRoute asks for a driving route through the waypoints in the given order.
func (p *GoogleProvider) PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*routing.ProviderRoute, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
		Language:    p.language,
		Region:      p.region,
	}
	for _, w := range waypoints {
		r.Waypoints = append(r.Waypoints, latLng(w))
	}

	routes, _, err := p.client.Directions(ctx, r)
	if err != nil {
		return nil, classifyGoogle(err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, routing.NewProviderError(routing.KindMalformed, "", "no route found")
	}

	route := routes[0]
	out := &routing.ProviderRoute{}
	for _, leg := range route.Legs {
		out.DistanceM += float64(leg.Distance.Meters)
		out.DurationS += leg.Duration.Seconds()
		for _, s := range leg.Steps {
			step := routing.Step{
				Instruction: s.HTMLInstructions,
				DistanceM:   float64(s.Distance.Meters),
				DurationS:   s.Duration.Seconds(),
			}
			if pts, err := s.Polyline.Decode(); err == nil {
				step.Polyline = toPoints(pts)
			}
			out.Steps = append(out.Steps, step)
		}
	}

	pts, err := route.OverviewPolyline.Decode()
	if err != nil {
		return nil, routing.NewProviderError(routing.KindMalformed, "", fmt.Sprintf("overview polyline: %v", err))
	}
	out.Polyline = toPoints(pts)
	if route.Fare != nil {
		out.TollCost = route.Fare.Value
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func toPoints(pts []maps.LatLng) []types.Point {
	out := make([]types.Point, len(pts))
	for i, ll := range pts {
		out[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return out
}

// classifyGoogle maps the status codes embedded in client errors.
func classifyGoogle(err error) error {
	msg := err.Error()
	var kind routing.ErrorKind
	code := ""
	switch {
	case strings.Contains(msg, "OVER_QUERY_LIMIT"):
		kind, code = routing.KindRateLimited, "OVER_QUERY_LIMIT"
	case strings.Contains(msg, "OVER_DAILY_LIMIT"):
		kind, code = routing.KindQuota, "OVER_DAILY_LIMIT"
	case strings.Contains(msg, "REQUEST_DENIED"):
		kind, code = routing.KindAuth, "REQUEST_DENIED"
	case strings.Contains(msg, "INVALID_REQUEST"), strings.Contains(msg, "MAX_WAYPOINTS_EXCEEDED"),
		strings.Contains(msg, "NOT_FOUND"), strings.Contains(msg, "ZERO_RESULTS"):
		kind = routing.KindRejected
	case strings.Contains(msg, "UNKNOWN_ERROR"):
		kind, code = routing.KindTransport, "UNKNOWN_ERROR"
	default:
		return err
	}
	return routing.NewProviderError(kind, code, msg)
}
