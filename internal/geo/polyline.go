package geo

import (
	"fmt"

	"github.com/twpayne/go-polyline"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

// EncodePolyline encodes points with the precision-5 polyline algorithm.
func EncodePolyline(points []types.Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline is the inverse of EncodePolyline.
func DecodePolyline(encoded string) ([]types.Point, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	points := make([]types.Point, len(coords))
	for i, c := range coords {
		points[i] = types.Point{Lat: c[0], Lng: c[1]}
	}
	return points, nil
}
