package dispatch

import (
	"sort"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const PlanStatusPlanned = "planned"

// PlanRecord is the storage shape of one routed cluster.
type PlanRecord struct {
	ClusterID      int        `json:"cluster_id"`
	StartTime      time.Time  `json:"start_time"`
	Status         string     `json:"status"`
	RoutePolyline  string     `json:"route_polyline"`
	DistanceM      float64    `json:"distance_m"`
	DurationS      float64    `json:"duration_s"`
	PassengerCount int        `json:"passenger_count"`
	IsFallback     bool       `json:"is_fallback"`
	Partial        bool       `json:"partial"`
	RequestIDs     []types.ID `json:"request_ids"`
}

// ToPlanRecords maps the routed clusters of a successful envelope into plan
// records ordered by cluster id.
func ToPlanRecords(env *Envelope) []PlanRecord {
	if env == nil || !env.Success {
		return nil
	}
	ids := sortedRouteIDs(env.Routes)
	out := make([]PlanRecord, 0, len(ids))
	for _, id := range ids {
		r := env.Routes[id]
		rec := PlanRecord{
			ClusterID:      id,
			StartTime:      r.DepartureTime,
			Status:         PlanStatusPlanned,
			RoutePolyline:  geo.EncodePolyline(r.Polyline()),
			DistanceM:      r.TotalDistanceM,
			DurationS:      r.TotalDurationS,
			PassengerCount: r.PassengerCount,
			IsFallback:     r.Status() == routing.StatusFallback,
			Partial:        r.Partial,
		}
		for _, t := range r.Trips {
			rec.RequestIDs = append(rec.RequestIDs, t.ID)
		}
		out = append(out, rec)
	}
	return out
}

type VizPoint struct {
	ID          types.ID    `json:"id"`
	Origin      types.Point `json:"origin"`
	Destination types.Point `json:"destination"`
	Passengers  int         `json:"passengers"`
}

type VizCluster struct {
	ID                int         `json:"id"`
	Size              int         `json:"size"`
	CenterOrigin      types.Point `json:"center_origin"`
	CenterDestination types.Point `json:"center_destination"`
	Points            []VizPoint  `json:"points"`
}

type VizRoute struct {
	ClusterID      int           `json:"cluster_id"`
	Pickup         []types.Point `json:"pickup"`
	Dropoff        []types.Point `json:"dropoff"`
	PickupEncoded  string        `json:"pickup_encoded"`
	DropoffEncoded string        `json:"dropoff_encoded,omitempty"`
	IsFallback     bool          `json:"is_fallback"`
	Partial        bool          `json:"partial"`
	TotalDistanceM float64       `json:"total_distance"`
	TotalDurationS float64       `json:"total_duration"`
}

// Visualization is the display shape of an envelope.
type Visualization struct {
	RunID       string       `json:"run_id"`
	Clusters    []VizCluster `json:"clusters"`
	Routes      []VizRoute   `json:"routes"`
	NoisePoints []VizPoint   `json:"noise_points"`
}

func ToVisualization(env *Envelope) *Visualization {
	v := &Visualization{Clusters: []VizCluster{}, Routes: []VizRoute{}, NoisePoints: []VizPoint{}}
	if env == nil {
		return v
	}
	v.RunID = env.RunID

	ids := make([]int, 0, len(env.Clusters))
	for id := range env.Clusters {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := env.Clusters[id]
		if c.IsNoise() {
			v.NoisePoints = append(v.NoisePoints, vizPoints(c.Members)...)
			continue
		}
		v.Clusters = append(v.Clusters, VizCluster{
			ID:                id,
			Size:              c.Size,
			CenterOrigin:      c.CenterOrigin,
			CenterDestination: c.CenterDestination,
			Points:            vizPoints(c.Members),
		})
	}

	for _, id := range sortedRouteIDs(env.Routes) {
		r := env.Routes[id]
		vr := VizRoute{
			ClusterID:      id,
			IsFallback:     r.Status() == routing.StatusFallback,
			Partial:        r.Partial,
			TotalDistanceM: r.TotalDistanceM,
			TotalDurationS: r.TotalDurationS,
		}
		if r.Pickup != nil {
			vr.Pickup = r.Pickup.Polyline
			vr.PickupEncoded = geo.EncodePolyline(r.Pickup.Polyline)
		}
		if r.Dropoff != nil {
			vr.Dropoff = r.Dropoff.Polyline
			vr.DropoffEncoded = geo.EncodePolyline(r.Dropoff.Polyline)
		}
		v.Routes = append(v.Routes, vr)
	}
	return v
}

func vizPoints(members []clustering.TripRequest) []VizPoint {
	out := make([]VizPoint, len(members))
	for i, m := range members {
		out[i] = VizPoint{ID: m.ID, Origin: m.Origin, Destination: m.Destination, Passengers: m.Passengers()}
	}
	return out
}

func sortedRouteIDs(routes map[int]*routing.ClusterRoute) []int {
	ids := make([]int, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
