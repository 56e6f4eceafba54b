package clustering

import "fmt"

const (
	StrategyClique  = "clique"
	StrategyDensity = "density"
)

// Strategy clusters a single temporal group. It returns the member indices of
// each finalized cluster in formation order; indices absent from every set
// are noise. Results must depend only on the group's order.
type Strategy interface {
	Name() string
	ClusterGroup(group []TripRequest) [][]int
}

// NewStrategy builds the named strategy from params. An empty name selects
// the clique strategy.
func NewStrategy(name string, p Params) (Strategy, error) {
	p = p.withDefaults()
	switch name {
	case "", StrategyClique:
		return CliqueStrategy{ThresholdKm: p.SpatialThresholdKm, MinSamples: p.MinSamples}, nil
	case StrategyDensity:
		return DensityStrategy{
			EpsKm:       p.SpatialThresholdKm,
			MinSamples:  p.MinSamples,
			MaxPoints:   p.MaxPointsPerRoute,
			MaxRadiusKm: p.MaxClusterRadiusKm,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
