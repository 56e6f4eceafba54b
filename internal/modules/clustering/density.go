package clustering

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tidwall/rtree"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	kmPerDegreeLat = 111.32
	earthRadiusKm  = 6371.0
	kmeansMaxIter  = 25
)

// DensityStrategy is the alternate pipeline: a density pass over origins, a
// second density pass over destinations inside each origin cluster, splitting
// of clusters larger than MaxPoints, then a radius check that bisects (or
// demotes to noise) clusters with a member farther than MaxRadiusKm from a
// centroid. It is not the default.
type DensityStrategy struct {
	EpsKm       float64
	MinSamples  int
	MaxPoints   int
	MaxRadiusKm float64
}

func (s DensityStrategy) Name() string { return StrategyDensity }

func (s DensityStrategy) ClusterGroup(group []TripRequest) [][]int {
	if len(group) == 0 {
		return nil
	}
	origins := make([]types.Point, len(group))
	for i, r := range group {
		origins[i] = r.Origin
	}

	var refined [][]int
	for _, oc := range dbscan(origins, s.EpsKm, s.MinSamples) {
		dests := make([]types.Point, len(oc))
		for i, idx := range oc {
			dests[i] = group[idx].Destination
		}
		for _, dc := range dbscan(dests, s.EpsKm, s.MinSamples) {
			members := make([]int, len(dc))
			for i, local := range dc {
				members[i] = oc[local]
			}
			sort.Ints(members)
			refined = append(refined, members)
		}
	}

	var sized [][]int
	for _, c := range refined {
		if s.MaxPoints > 0 && len(c) > s.MaxPoints {
			k := int(math.Ceil(float64(len(c)) / float64(s.MaxPoints)))
			sized = append(sized, s.keepLarge(kmeansSplit(group, c, k))...)
			continue
		}
		sized = append(sized, c)
	}

	var out [][]int
	for _, c := range sized {
		if s.withinRadius(group, c) {
			out = append(out, c)
			continue
		}
		if len(c) > 2 {
			out = append(out, s.keepLarge(kmeansSplit(group, c, 2))...)
		}
	}
	return out
}

func (s DensityStrategy) keepLarge(clusters [][]int) [][]int {
	kept := clusters[:0]
	for _, c := range clusters {
		if len(c) >= s.MinSamples {
			kept = append(kept, c)
		}
	}
	return kept
}

// withinRadius checks every member origin and destination against a spherical
// cap of MaxRadiusKm around the matching centroid.
func (s DensityStrategy) withinRadius(group []TripRequest, members []int) bool {
	if s.MaxRadiusKm <= 0 || len(members) < 2 {
		return true
	}
	origins := make([]types.Point, len(members))
	dests := make([]types.Point, len(members))
	for i, idx := range members {
		origins[i] = group[idx].Origin
		dests[i] = group[idx].Destination
	}
	originCap := capAround(geo.Centroid(origins), s.MaxRadiusKm)
	destCap := capAround(geo.Centroid(dests), s.MaxRadiusKm)
	for i := range members {
		if !originCap.ContainsPoint(toS2(origins[i])) || !destCap.ContainsPoint(toS2(dests[i])) {
			return false
		}
	}
	return true
}

func capAround(center types.Point, radiusKm float64) s2.Cap {
	return s2.CapFromCenterAngle(toS2(center), s1.Angle(radiusKm/earthRadiusKm))
}

func toS2(p types.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
}

// dbscan returns clusters of point indices in discovery order. minSamples
// counts the point itself.
func dbscan(points []types.Point, epsKm float64, minSamples int) [][]int {
	const (
		unvisited = -2
		noise     = -1
	)
	var tr rtree.RTreeG[int]
	for i, p := range points {
		tr.Insert([2]float64{p.Lng, p.Lat}, [2]float64{p.Lng, p.Lat}, i)
	}
	region := func(i int) []int {
		p := points[i]
		dLat := epsKm / kmPerDegreeLat
		cosLat := math.Cos(p.Lat * math.Pi / 180)
		dLng := 180.0
		if cosLat > 1e-9 {
			dLng = math.Min(180, epsKm/(kmPerDegreeLat*cosLat))
		}
		var out []int
		tr.Search([2]float64{p.Lng - dLng, p.Lat - dLat}, [2]float64{p.Lng + dLng, p.Lat + dLat},
			func(_, _ [2]float64, j int) bool {
				if geo.HaversineKm(p, points[j]) <= epsKm {
					out = append(out, j)
				}
				return true
			})
		sort.Ints(out)
		return out
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	var clusters [][]int
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbours := region(i)
		if len(neighbours) < minSamples {
			labels[i] = noise
			continue
		}
		id := len(clusters)
		labels[i] = id
		members := []int{i}
		queue := append([]int(nil), neighbours...)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if labels[q] == noise {
				labels[q] = id
				members = append(members, q)
				continue
			}
			if labels[q] != unvisited {
				continue
			}
			labels[q] = id
			members = append(members, q)
			if next := region(q); len(next) >= minSamples {
				queue = append(queue, next...)
			}
		}
		sort.Ints(members)
		clusters = append(clusters, members)
	}
	return clusters
}

// kmeansSplit partitions members into k groups on (origin, destination)
// features. Seeds are chosen by farthest-point traversal from the first member
// so the split is deterministic.
func kmeansSplit(group []TripRequest, members []int, k int) [][]int {
	if k <= 1 {
		return [][]int{append([]int(nil), members...)}
	}
	if len(members) <= k {
		out := make([][]int, len(members))
		for i, m := range members {
			out[i] = []int{m}
		}
		return out
	}
	feature := func(idx int) [4]float64 {
		r := group[idx]
		return [4]float64{r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng}
	}
	dist := func(a, b [4]float64) float64 {
		var s float64
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
		return s
	}

	centers := [][4]float64{feature(members[0])}
	for len(centers) < k {
		best, bestD := members[0], -1.0
		for _, m := range members {
			f := feature(m)
			nearest := math.Inf(1)
			for _, c := range centers {
				nearest = math.Min(nearest, dist(f, c))
			}
			if nearest > bestD {
				best, bestD = m, nearest
			}
		}
		centers = append(centers, feature(best))
	}

	assign := make([]int, len(members))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := iter == 0
		for i, m := range members {
			f := feature(m)
			bestC, bestD := 0, math.Inf(1)
			for c, center := range centers {
				if d := dist(f, center); d < bestD {
					bestC, bestD = c, d
				}
			}
			if assign[i] != bestC {
				assign[i] = bestC
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][4]float64, k)
		counts := make([]int, k)
		for i, m := range members {
			f := feature(m)
			for d := range f {
				sums[assign[i]][d] += f[d]
			}
			counts[assign[i]]++
		}
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			for d := range centers[c] {
				centers[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	out := make([][]int, k)
	for i, m := range members {
		out[assign[i]] = append(out[assign[i]], m)
	}
	nonEmpty := out[:0]
	for _, c := range out {
		if len(c) > 0 {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return nonEmpty
}
