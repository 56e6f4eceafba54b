package routing

import (
	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// NearestNeighborOrder returns the indices of stops in greedy visiting order
// from anchor: each step moves to the closest unvisited stop, ties going to
// the lower index. With at most one stop the order is the identity.
func NearestNeighborOrder(anchor types.Point, stops []types.Point) []int {
	order := make([]int, len(stops))
	for i := range order {
		order[i] = i
	}
	if len(stops) < 2 {
		return order
	}

	visited := make([]bool, len(stops))
	current := anchor
	for k := range order {
		best, bestD := -1, 0.0
		for j, s := range stops {
			if visited[j] {
				continue
			}
			if d := geo.HaversineKm(current, s); best < 0 || d < bestD {
				best, bestD = j, d
			}
		}
		visited[best] = true
		order[k] = best
		current = stops[best]
	}
	return order
}

// Sequence returns stops reordered by NearestNeighborOrder. The anchor is not
// part of the result.
func Sequence(anchor types.Point, stops []types.Point) []types.Point {
	order := NearestNeighborOrder(anchor, stops)
	out := make([]types.Point, len(order))
	for i, idx := range order {
		out[i] = stops[idx]
	}
	return out
}
