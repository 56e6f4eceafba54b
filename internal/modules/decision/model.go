// README: Departure decision engine: decides whether a routed cluster should leave now or keep waiting.
package decision

import (
	"errors"
	"time"
)

var (
	ErrInvalidCapacity = errors.New("vehicle capacity must be positive")
	ErrNoiseCluster    = errors.New("noise bucket is not a dispatchable cluster")
)

const (
	ActionDepart = "depart"
	ActionWait   = "wait"
)

// Thresholds are the decision rule parameters, echoed in every Decision.
type Thresholds struct {
	MinPassengers    int     `json:"min_passengers"`
	MaxWaitMinutes   int     `json:"max_wait_minutes"`
	MinOccupancyRate float64 `json:"min_occupancy_rate"`
	ProfitCutoff     float64 `json:"profitability_cutoff"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPassengers:    5,
		MaxWaitMinutes:   30,
		MinOccupancyRate: 0.6,
		ProfitCutoff:     0.8,
	}
}

// Economics drives the profitability score.
type Economics struct {
	RevenuePerPassengerKm float64
	CostPerKm             float64
	PeakFactor            float64
	// PeakWindows are inclusive [start, end] hours of day.
	PeakWindows [][2]int
}

func DefaultEconomics() Economics {
	return Economics{
		RevenuePerPassengerKm: 1.0,
		CostPerKm:             0.5,
		PeakFactor:            1.5,
		PeakWindows:           [][2]int{{7, 9}, {17, 19}},
	}
}

type Metrics struct {
	PassengerCount int     `json:"passenger_count"`
	Capacity       int     `json:"vehicle_capacity"`
	OccupancyRate  float64 `json:"occupancy_rate"`
	WaitMinutes    int     `json:"wait_time"`
	Profitability  float64 `json:"profitability"`
	PeakHour       bool    `json:"peak_hour"`
	RouteKm        float64 `json:"route_km"`
}

type Decision struct {
	ClusterID    int        `json:"cluster_id"`
	ShouldDepart bool       `json:"should_depart"`
	Action       string     `json:"action"`
	Reason       string     `json:"reason"`
	Metrics      Metrics    `json:"metrics"`
	Thresholds   Thresholds `json:"thresholds"`
	EvaluatedAt  time.Time  `json:"evaluated_at"`
}
