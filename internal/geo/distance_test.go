package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 39.9087, Lng: 116.3975},
			b:         types.Point{Lat: 39.9087, Lng: 116.3975},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Tiananmen to Beijing West Station (~6.6km)",
			a:         types.Point{Lat: 39.9087, Lng: 116.3975},
			b:         types.Point{Lat: 39.8949, Lng: 116.3218},
			wantKm:    6.6,
			tolerance: 1.0,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	assert.InDelta(t, HaversineKm(a, b), HaversineKm(b, a), 1e-9)
}

func TestPathLengthKm_SumsSegments(t *testing.T) {
	path := []types.Point{
		{Lat: 31.2304, Lng: 121.4737},
		{Lat: 31.2404, Lng: 121.4837},
		{Lat: 31.2504, Lng: 121.4737},
	}
	want := HaversineKm(path[0], path[1]) + HaversineKm(path[1], path[2])
	assert.InDelta(t, want, PathLengthKm(path), 1e-9)
	assert.Zero(t, PathLengthKm(path[:1]))
	assert.Zero(t, PathLengthKm(nil))
}

func TestCentroid(t *testing.T) {
	c := Centroid([]types.Point{{Lat: 10, Lng: 20}, {Lat: 20, Lng: 40}})
	assert.Equal(t, types.Point{Lat: 15, Lng: 30}, c)
	assert.Equal(t, types.Point{}, Centroid(nil))
}

func TestMaxPairwiseKm(t *testing.T) {
	pts := []types.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0, Lng: 0.03}}
	assert.InDelta(t, HaversineKm(pts[0], pts[2]), MaxPairwiseKm(pts), 1e-9)
	assert.Zero(t, MaxPairwiseKm(pts[:1]))
}

func TestPolyline_RoundTrip(t *testing.T) {
	pts := []types.Point{
		{Lat: 38.5, Lng: -120.2},
		{Lat: 40.7, Lng: -120.95},
		{Lat: 43.252, Lng: -126.453},
	}
	encoded := EncodePolyline(pts)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)

	decoded, err := DecodePolyline(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(pts))
	for i := range pts {
		assert.InDelta(t, pts[i].Lat, decoded[i].Lat, 1e-5)
		assert.InDelta(t, pts[i].Lng, decoded[i].Lng, 1e-5)
	}
}

func TestDecodePolyline_Empty(t *testing.T) {
	pts, err := DecodePolyline("")
	require.NoError(t, err)
	assert.Empty(t, pts)
}
