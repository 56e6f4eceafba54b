// README: Trip requests, clustering parameters and the canonical cluster record.
package clustering

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

// NoiseID labels requests that did not qualify for any finalized cluster.
const NoiseID = -1

var (
	ErrInvalidRequest  = errors.New("invalid trip request")
	ErrUnknownStrategy = errors.New("unknown clustering strategy")
)

// TripRequest is immutable once accepted by the pipeline. Stages attach derived
// data through Annotations keyed by ID instead of mutating the request.
type TripRequest struct {
	ID             types.ID    `json:"id"`
	Origin         types.Point `json:"origin"`
	Destination    types.Point `json:"destination"`
	DepartureTime  time.Time   `json:"departure_time"`
	PassengerCount int         `json:"passenger_count"`
}

// Passengers returns the party size, defaulting to 1.
func (r TripRequest) Passengers() int {
	if r.PassengerCount < 1 {
		return 1
	}
	return r.PassengerCount
}

// Params holds caller-supplied clustering settings.
type Params struct {
	SpatialThresholdKm float64
	TimeWindow         time.Duration
	MinSamples         int
	// MaxClusterRadiusKm is only consulted by the density strategy.
	MaxClusterRadiusKm float64
	MaxPointsPerRoute  int
	ExpiryWindow       time.Duration
}

const (
	defaultSpatialThresholdKm = 1.0
	defaultTimeWindow         = 30 * time.Minute
	defaultMinSamples         = 2
	defaultMaxPointsPerRoute  = 8
	defaultExpiryWindow       = 24 * time.Hour
)

func DefaultParams() Params {
	return Params{
		SpatialThresholdKm: defaultSpatialThresholdKm,
		TimeWindow:         defaultTimeWindow,
		MinSamples:         defaultMinSamples,
		MaxClusterRadiusKm: 2 * defaultSpatialThresholdKm,
		MaxPointsPerRoute:  defaultMaxPointsPerRoute,
		ExpiryWindow:       defaultExpiryWindow,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.SpatialThresholdKm <= 0 {
		p.SpatialThresholdKm = d.SpatialThresholdKm
	}
	if p.TimeWindow <= 0 {
		p.TimeWindow = d.TimeWindow
	}
	if p.MinSamples < 1 {
		p.MinSamples = d.MinSamples
	}
	if p.MaxClusterRadiusKm <= 0 {
		p.MaxClusterRadiusKm = 2 * p.SpatialThresholdKm
	}
	if p.MaxPointsPerRoute < 1 {
		p.MaxPointsPerRoute = d.MaxPointsPerRoute
	}
	if p.ExpiryWindow <= 0 {
		p.ExpiryWindow = d.ExpiryWindow
	}
	return p
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Cluster is created by the clusterer and enriched by Aggregate. The noise
// bucket (ID == NoiseID) only carries Size and Members.
type Cluster struct {
	ID                     int           `json:"cluster_id"`
	Size                   int           `json:"size"`
	Members                []TripRequest `json:"trips"`
	CenterOrigin           types.Point   `json:"center_origin"`
	CenterDestination      types.Point   `json:"center_destination"`
	TimeRange              TimeRange     `json:"time_range"`
	TotalPassengers        int           `json:"total_passengers"`
	MaxOriginSpreadKm      float64       `json:"max_origin_spread_km"`
	MaxDestinationSpreadKm float64       `json:"max_destination_spread_km"`
}

func (c *Cluster) IsNoise() bool { return c.ID == NoiseID }

// HasStats reports whether Aggregate computed the centroids, time range and
// totals. Enriched clusters always count at least one passenger.
func (c *Cluster) HasStats() bool { return !c.IsNoise() && c.TotalPassengers > 0 }

// RequestIDs lists member ids in member order.
func (c *Cluster) RequestIDs() []types.ID {
	ids := make([]types.ID, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// Annotation is the per-request derived data produced by clustering.
type Annotation struct {
	ClusterID         int         `json:"cluster_id"`
	CenterOrigin      types.Point `json:"center_origin"`
	CenterDestination types.Point `json:"center_destination"`
}

// FieldError names one failing field of one request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError identifies the offending record of a batch.
type ValidationError struct {
	Index     int          `json:"index"`
	RequestID string       `json:"request_id"`
	Fields    []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	id := e.RequestID
	if id == "" {
		id = "<missing>"
	}
	return fmt.Sprintf("record %d (id=%s): %s", e.Index, id, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }
