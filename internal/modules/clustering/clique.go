package clustering

import "github.com/zeizeiwaii/Datastar/internal/geo"

// PairDistanceKm averages the origin and destination haversine distances.
func PairDistanceKm(a, b TripRequest) float64 {
	return (geo.HaversineKm(a.Origin, b.Origin) + geo.HaversineKm(a.Destination, b.Destination)) / 2
}

// DistanceMatrix is the symmetric PairDistanceKm matrix of a group.
func DistanceMatrix(group []TripRequest) [][]float64 {
	n := len(group)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := PairDistanceKm(group[i], group[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// CliqueStrategy is greedy complete-linkage clustering: a candidate joins a
// cluster only if it is within ThresholdKm of every current member.
type CliqueStrategy struct {
	ThresholdKm float64
	MinSamples  int
}

func (s CliqueStrategy) Name() string { return StrategyClique }

func (s CliqueStrategy) ClusterGroup(group []TripRequest) [][]int {
	n := len(group)
	if n == 0 {
		return nil
	}
	m := DistanceMatrix(group)
	assigned := make([]bool, n)

	var clusters [][]int
	for seed := 0; seed < n; seed++ {
		if assigned[seed] {
			continue
		}
		candidate := []int{seed}
		for j := seed + 1; j < n; j++ {
			if assigned[j] {
				continue
			}
			if withinAll(m, candidate, j, s.ThresholdKm) {
				candidate = append(candidate, j)
			}
		}
		if len(candidate) < s.MinSamples {
			continue
		}
		for _, idx := range candidate {
			assigned[idx] = true
		}
		clusters = append(clusters, candidate)
	}
	return clusters
}

func withinAll(m [][]float64, members []int, j int, threshold float64) bool {
	for _, k := range members {
		if m[j][k] > threshold {
			return false
		}
	}
	return true
}
