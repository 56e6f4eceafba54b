package decision

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

var noon = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func clusterWith(passengers int, firstRequest time.Time) *clustering.Cluster {
	return &clustering.Cluster{
		ID:              3,
		Size:            passengers,
		TotalPassengers: passengers,
		TimeRange:       clustering.TimeRange{Start: firstRequest, End: firstRequest.Add(5 * time.Minute)},
	}
}

func engineAt(now time.Time, t Thresholds) *Engine {
	return NewEngine(t, DefaultEconomics()).WithClock(func() time.Time { return now })
}

func TestEvaluate_DepartsOnOccupancy(t *testing.T) {
	e := engineAt(noon, DefaultThresholds())
	route := &routing.ClusterRoute{ClusterID: 3, TotalDistanceM: 12500, PassengerCount: 6}

	d, err := e.Evaluate(clusterWith(6, noon.Add(-10*time.Minute)), 10, route)
	require.NoError(t, err)
	assert.True(t, d.ShouldDepart)
	assert.Equal(t, ActionDepart, d.Action)
	assert.Equal(t, 0.6, d.Metrics.OccupancyRate)
	assert.Equal(t, 10, d.Metrics.WaitMinutes)
	assert.Equal(t, 12.5, d.Metrics.RouteKm)
	assert.Contains(t, d.Reason, "passenger count 6 meets minimum 5")
	assert.Contains(t, d.Reason, "occupancy 0.60")
	assert.Equal(t, DefaultThresholds(), d.Thresholds)
	assert.Equal(t, noon, d.EvaluatedAt)
}

func TestEvaluate_BelowMinimumPassengersWaits(t *testing.T) {
	e := engineAt(noon, DefaultThresholds())
	d, err := e.Evaluate(clusterWith(4, noon.Add(-2*time.Hour)), 4, nil)
	require.NoError(t, err)
	assert.False(t, d.ShouldDepart)
	assert.Equal(t, ActionWait, d.Action)
	assert.Equal(t, 1.0, d.Metrics.OccupancyRate)
	assert.Contains(t, d.Reason, "below minimum 5")
}

func TestEvaluate_WaitThreshold(t *testing.T) {
	th := DefaultThresholds()
	th.ProfitCutoff = 2
	e := engineAt(noon, th)

	d, err := e.Evaluate(clusterWith(5, noon.Add(-30*time.Minute-20*time.Second)), 20, nil)
	require.NoError(t, err)
	assert.True(t, d.ShouldDepart)
	assert.Equal(t, 30, d.Metrics.WaitMinutes)
	assert.Contains(t, d.Reason, "waited 30 min")

	d, err = e.Evaluate(clusterWith(5, noon.Add(-29*time.Minute-59*time.Second)), 20, nil)
	require.NoError(t, err)
	assert.False(t, d.ShouldDepart)
	assert.Equal(t, 29, d.Metrics.WaitMinutes)
}

func TestEvaluate_Profitability(t *testing.T) {
	th := Thresholds{MinPassengers: 1, MaxWaitMinutes: 60, MinOccupancyRate: 0.9, ProfitCutoff: 0.8}
	cases := []struct {
		passengers int
		at         time.Time
		want       float64
		depart     bool
	}{
		{1, noon, 0.5, false},
		{2, noon, 0.75, false},
		{2, time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC), 1.125, true},
		{2, time.Date(2024, 5, 6, 19, 59, 0, 0, time.UTC), 1.125, true},
		{2, time.Date(2024, 5, 6, 20, 0, 0, 0, time.UTC), 0.75, false},
		{5, noon, 0.9, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d@%s", tc.passengers, tc.at.Format("15:04")), func(t *testing.T) {
			d, err := engineAt(tc.at, th).Evaluate(clusterWith(tc.passengers, tc.at), 10, nil)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, d.Metrics.Profitability, 1e-9)
			assert.Equal(t, tc.depart, d.ShouldDepart)
		})
	}
}

func TestEvaluate_InvalidCapacity(t *testing.T) {
	e := engineAt(noon, DefaultThresholds())
	_, err := e.Evaluate(clusterWith(6, noon), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestEvaluate_RejectsNoiseBucket(t *testing.T) {
	noise := &clustering.Cluster{ID: clustering.NoiseID, Size: 5}
	for i := 0; i < 5; i++ {
		noise.Members = append(noise.Members, clustering.TripRequest{ID: types.ID(fmt.Sprintf("n%d", i))})
	}
	d, err := engineAt(noon, DefaultThresholds()).Evaluate(noise, 10, nil)
	assert.ErrorIs(t, err, ErrNoiseCluster)
	assert.Nil(t, d)
}

func TestEvaluate_PassengersFromMembers(t *testing.T) {
	c := &clustering.Cluster{
		ID:        1,
		TimeRange: clustering.TimeRange{Start: noon},
		Members: []clustering.TripRequest{
			{ID: "a", PassengerCount: 2},
			{ID: "b"},
		},
	}
	d, err := engineAt(noon, DefaultThresholds()).Evaluate(c, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Metrics.PassengerCount)
}

func TestExplain(t *testing.T) {
	e := engineAt(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC), DefaultThresholds())
	d, err := e.Evaluate(clusterWith(6, time.Date(2024, 5, 6, 7, 45, 0, 0, time.UTC)), 10, nil)
	require.NoError(t, err)

	text := Explain(d)
	assert.Contains(t, text, "Decision: depart now")
	assert.Contains(t, text, "- passengers: 6 (minimum 5)")
	assert.Contains(t, text, "- occupancy: 60% of 10 seats (minimum 60%)")
	assert.Contains(t, text, "- wait time: 15 min (limit 30 min)")
	assert.Contains(t, text, "peak hour")
}
