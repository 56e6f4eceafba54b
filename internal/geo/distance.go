// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// HaversineMeters is HaversineKm scaled to metres.
func HaversineMeters(a, b types.Point) float64 {
	return HaversineKm(a, b) * 1000
}

// PathLengthKm sums the great-circle length of consecutive segments.
func PathLengthKm(path []types.Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineKm(path[i-1], path[i])
	}
	return total
}

// Centroid is the arithmetic mean of the given coordinates.
// It returns the zero point for an empty slice.
func Centroid(points []types.Point) types.Point {
	if len(points) == 0 {
		return types.Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return types.Point{Lat: lat / n, Lng: lng / n}
}

// MaxPairwiseKm is the largest haversine distance over all pairs.
func MaxPairwiseKm(points []types.Point) float64 {
	var maxKm float64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if d := HaversineKm(points[i], points[j]); d > maxKm {
				maxKm = d
			}
		}
	}
	return maxKm
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
