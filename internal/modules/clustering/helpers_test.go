package clustering

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

// metresToLat converts a north-south offset to degrees of latitude.
func metresToLat(m float64) float64 { return m / 111320.0 }

var baseTime = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func trip(id string, origin, dest types.Point, offset time.Duration) TripRequest {
	return TripRequest{
		ID:             types.ID(id),
		Origin:         origin,
		Destination:    dest,
		DepartureTime:  baseTime.Add(offset),
		PassengerCount: 1,
	}
}

var (
	originA = types.Point{Lat: 31.2304, Lng: 121.4737}
	destA   = types.Point{Lat: 31.1443, Lng: 121.8083}
)

func north(p types.Point, metres float64) types.Point {
	return types.Point{Lat: p.Lat + metresToLat(metres), Lng: p.Lng}
}

// randomBatch scatters n requests within a few kilometres of originA/destA
// over two hours.
func randomBatch(rng *rand.Rand, n int) []TripRequest {
	out := make([]TripRequest, n)
	for i := range out {
		o := types.Point{Lat: originA.Lat + (rng.Float64()-0.5)*0.04, Lng: originA.Lng + (rng.Float64()-0.5)*0.04}
		d := types.Point{Lat: destA.Lat + (rng.Float64()-0.5)*0.04, Lng: destA.Lng + (rng.Float64()-0.5)*0.04}
		out[i] = trip(fmt.Sprintf("r%03d", i), o, d, time.Duration(rng.Intn(120))*time.Minute)
		out[i].PassengerCount = 1 + rng.Intn(3)
	}
	return out
}
