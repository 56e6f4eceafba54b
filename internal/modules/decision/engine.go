package decision

import (
	"fmt"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
)

// Engine evaluates departure readiness. It holds no state besides its
// parameters and clock.
type Engine struct {
	thresholds Thresholds
	economics  Economics
	now        func() time.Time
}

func NewEngine(t Thresholds, e Economics) *Engine {
	return &Engine{thresholds: t, economics: e, now: time.Now}
}

// WithClock returns a copy that reads the current time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Evaluate decides for one cluster. Departure requires the passenger minimum
// and then any of: occupancy at or above the minimum rate, wait time at or
// above the maximum, profitability above the cutoff. route may be nil. The
// noise bucket is rejected with ErrNoiseCluster.
func (e *Engine) Evaluate(c *clustering.Cluster, capacity int, route *routing.ClusterRoute) (*Decision, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if c == nil {
		return nil, fmt.Errorf("decision: nil cluster")
	}
	if c.IsNoise() {
		return nil, ErrNoiseCluster
	}

	now := e.now()
	m := Metrics{
		PassengerCount: passengers(c, route),
		Capacity:       capacity,
		WaitMinutes:    int(now.Sub(c.TimeRange.Start).Minutes()),
		PeakHour:       e.isPeak(now.Hour()),
	}
	m.OccupancyRate = float64(m.PassengerCount) / float64(capacity)
	if route != nil {
		m.RouteKm = route.TotalDistanceM / 1000
	}
	m.Profitability = e.profitability(m.PassengerCount, m.PeakHour)

	d := &Decision{
		ClusterID:   c.ID,
		Metrics:     m,
		Thresholds:  e.thresholds,
		EvaluatedAt: now,
	}
	t := e.thresholds
	switch {
	case m.PassengerCount < t.MinPassengers:
		d.Reason = fmt.Sprintf("passenger count %d below minimum %d", m.PassengerCount, t.MinPassengers)
	case m.OccupancyRate >= t.MinOccupancyRate:
		d.ShouldDepart = true
		d.Reason = fmt.Sprintf("passenger count %d meets minimum %d and occupancy %.2f meets minimum %.2f",
			m.PassengerCount, t.MinPassengers, m.OccupancyRate, t.MinOccupancyRate)
	case m.WaitMinutes >= t.MaxWaitMinutes:
		d.ShouldDepart = true
		d.Reason = fmt.Sprintf("waited %d min, at or beyond the %d min limit", m.WaitMinutes, t.MaxWaitMinutes)
	case m.Profitability > t.ProfitCutoff:
		d.ShouldDepart = true
		d.Reason = fmt.Sprintf("profitability %.2f above cutoff %.2f", m.Profitability, t.ProfitCutoff)
	default:
		d.Reason = fmt.Sprintf("occupancy %.2f below %.2f, wait %d min below %d min and profitability %.2f not above %.2f",
			m.OccupancyRate, t.MinOccupancyRate, m.WaitMinutes, t.MaxWaitMinutes, m.Profitability, t.ProfitCutoff)
	}
	d.Action = ActionWait
	if d.ShouldDepart {
		d.Action = ActionDepart
	}
	return d, nil
}

// profitability is the per-km margin of carrying n passengers, weighted by the
// peak factor.
func (e *Engine) profitability(n int, peak bool) float64 {
	revenue := float64(n) * e.economics.RevenuePerPassengerKm
	if revenue <= 0 {
		return 0
	}
	margin := (revenue - e.economics.CostPerKm) / revenue
	if peak {
		margin *= e.economics.PeakFactor
	}
	return margin
}

func (e *Engine) isPeak(hour int) bool {
	for _, w := range e.economics.PeakWindows {
		if hour >= w[0] && hour <= w[1] {
			return true
		}
	}
	return false
}

func passengers(c *clustering.Cluster, route *routing.ClusterRoute) int {
	if c.TotalPassengers > 0 {
		return c.TotalPassengers
	}
	if route != nil && route.PassengerCount > 0 {
		return route.PassengerCount
	}
	n := 0
	for _, m := range c.Members {
		n += m.Passengers()
	}
	return n
}
