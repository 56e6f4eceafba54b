// README: Dispatch runs a batch of trip requests through clustering and routing and assembles the result envelope.
package dispatch

import (
	"errors"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

var (
	ErrEmptyBatch = errors.New("empty batch")
	ErrNoClusters = errors.New("no clusters formed")
	ErrNoRoutes   = errors.New("no cluster could be routed")
)

// Error codes carried by failed envelopes.
const (
	CodeEmptyBatch   = "empty_batch"
	CodeInvalidInput = "invalid_input"
	CodeNoClusters   = "no_clusters"
	CodeNoRoutes     = "no_routes"
	CodeCancelled    = "cancelled"
	CodeInternal     = "internal"
)

// Location is an inbound coordinate. Pointers distinguish a missing value
// from zero.
type Location struct {
	Lat *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

// Record is one inbound trip request as submitted by a client.
type Record struct {
	ID             string   `json:"id" validate:"required"`
	Origin         Location `json:"origin"`
	Destination    Location `json:"destination"`
	DepartureTime  string   `json:"departure_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	PassengerCount *int     `json:"passenger_count,omitempty" validate:"omitempty,min=1"`
}

type RouteFailure struct {
	ClusterID int    `json:"cluster_id"`
	Error     string `json:"error"`
}

// Envelope is the result of one batch run. A failed envelope carries an error
// code and whatever was computed before the failure.
type Envelope struct {
	RunID           string                             `json:"run_id"`
	Success         bool                               `json:"success"`
	Error           string                             `json:"error,omitempty"`
	ErrorCode       string                             `json:"error_code,omitempty"`
	ValidationError *clustering.ValidationError        `json:"validation_error,omitempty"`
	ProcessingTime  float64                            `json:"processing_time"`
	TotalRequests   int                                `json:"total_requests"`
	ValidClusters   int                                `json:"valid_clusters"`
	NoisePoints     int                                `json:"noise_points"`
	ExpiredIDs      []types.ID                         `json:"expired_ids,omitempty"`
	DiscardedIDs    []types.ID                         `json:"discarded_ids,omitempty"`
	Clusters        map[int]*clustering.Cluster        `json:"clusters"`
	Routes          map[int]*routing.ClusterRoute      `json:"routes"`
	RouteFailures   []RouteFailure                     `json:"route_failures,omitempty"`
	Annotations     map[types.ID]clustering.Annotation `json:"-"`
	Timestamp       time.Time                          `json:"timestamp"`

	err error
}

// Err returns the failure cause of an unsuccessful envelope.
func (e *Envelope) Err() error { return e.err }

// RoutedRequestIDs lists the ids of every request that belongs to a routed
// cluster.
func (e *Envelope) RoutedRequestIDs() []types.ID {
	var ids []types.ID
	for _, id := range sortedRouteIDs(e.Routes) {
		for _, t := range e.Routes[id].Trips {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
