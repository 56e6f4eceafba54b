// README: Routing builds pickup and dropoff legs for a cluster on top of an external route provider.
package routing

import (
	"context"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	// MaxProviderWaypoints is the provider-side cap on intermediate points per request.
	MaxProviderWaypoints = 16
	// FallbackSpeedKmh is the assumed average speed of a synthetic route.
	FallbackSpeedKmh = 50.0
)

// Status tags how a leg was produced.
type Status string

const (
	StatusRouted   Status = "routed"
	StatusFallback Status = "fallback"
	StatusFailed   Status = "failed"
)

type Step struct {
	Instruction string        `json:"instruction"`
	DistanceM   float64       `json:"distance_m"`
	DurationS   float64       `json:"duration_s"`
	Polyline    []types.Point `json:"polyline,omitempty"`
}

// ProviderRoute is the raw answer of a route provider for one request.
type ProviderRoute struct {
	DistanceM     float64       `json:"distance_m"`
	DurationS     float64       `json:"duration_s"`
	Polyline      []types.Point `json:"polyline"`
	TollDistanceM float64       `json:"toll_distance_m"`
	TollCost      float64       `json:"toll_cost"`
	Steps         []Step        `json:"steps,omitempty"`
}

// Provider is an external routing service. Implementations return a
// *ProviderError to classify failures; any other error counts as transport.
type Provider interface {
	Name() string
	PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*ProviderRoute, error)
}

// RouteLeg is one directed multi-stop leg.
type RouteLeg struct {
	Origin         types.Point   `json:"origin"`
	Destination    types.Point   `json:"destination"`
	Waypoints      []types.Point `json:"waypoints"`
	Polyline       []types.Point `json:"polyline"`
	DistanceM      float64       `json:"distance_m"`
	DurationS      float64       `json:"duration_s"`
	AvgSpeedKmh    float64       `json:"avg_speed_kmh"`
	TollDistanceM  float64       `json:"toll_distance_m"`
	TollCost       float64       `json:"toll_cost"`
	Steps          []Step        `json:"steps,omitempty"`
	IsFallback     bool          `json:"is_fallback"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Segments       int           `json:"segments"`
}

// LegResult carries a leg together with how it was obtained. Leg is nil when
// Status is StatusFailed.
type LegResult struct {
	Status   Status
	Leg      *RouteLeg
	Attempts int
	Err      error
}

func (r LegResult) OK() bool { return r.Status != StatusFailed && r.Leg != nil }

// ClusterRoute is the terminal route record of one cluster. Dropoff is nil
// when Partial is set.
type ClusterRoute struct {
	ClusterID      int                      `json:"cluster_id"`
	Pickup         *RouteLeg                `json:"pickup_route"`
	Dropoff        *RouteLeg                `json:"dropoff_route"`
	Partial        bool                     `json:"partial"`
	TotalDistanceM float64                  `json:"total_distance"`
	TotalDurationS float64                  `json:"total_duration"`
	PassengerCount int                      `json:"passenger_count"`
	DepartureTime  time.Time                `json:"departure_time"`
	PivotID        types.ID                 `json:"pivot_id"`
	Trips          []clustering.TripRequest `json:"trips"`
}

// Status reports StatusFallback when any built leg is synthetic.
func (r *ClusterRoute) Status() Status {
	if r.Pickup != nil && r.Pickup.IsFallback {
		return StatusFallback
	}
	if r.Dropoff != nil && r.Dropoff.IsFallback {
		return StatusFallback
	}
	return StatusRouted
}

// Polyline returns the pickup geometry followed by the dropoff geometry.
func (r *ClusterRoute) Polyline() []types.Point {
	var out []types.Point
	if r.Pickup != nil {
		out = append(out, r.Pickup.Polyline...)
	}
	if r.Dropoff != nil {
		out = appendJoined(out, r.Dropoff.Polyline)
	}
	return out
}

// appendJoined appends next to line, skipping next's first point when it
// repeats the last point of line.
func appendJoined(line, next []types.Point) []types.Point {
	if len(line) > 0 && len(next) > 0 && line[len(line)-1] == next[0] {
		next = next[1:]
	}
	return append(line, next...)
}
