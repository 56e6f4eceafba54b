// README: Trip request intake records and status definitions.
package request

import (
	"time"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Request is one row of user_request.
type Request struct {
	ID            types.ID    `json:"id"`
	Origin        types.Point `json:"origin"`
	Destination   types.Point `json:"destination"`
	DepartureTime time.Time   `json:"departure_time"`
	PeopleCount   int         `json:"people_count"`
	Status        Status      `json:"status"`
	StatusVersion int         `json:"status_version"`
	ClusterID     *int        `json:"cluster_id,omitempty"`
	SubmitTime    time.Time   `json:"submit_time"`
}

// TripRequest converts the row into the pipeline input.
func (r *Request) TripRequest() clustering.TripRequest {
	return clustering.TripRequest{
		ID:             r.ID,
		Origin:         r.Origin,
		Destination:    r.Destination,
		DepartureTime:  r.DepartureTime,
		PassengerCount: r.PeopleCount,
	}
}

// AllowedTransitions is the request lifecycle. Every state after pending is
// terminal.
var AllowedTransitions = map[Status][]Status{
	StatusNone:    {StatusPending},
	StatusPending: {StatusDispatched, StatusExpired, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
