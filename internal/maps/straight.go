package maps

import (
	"context"
	"fmt"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// StraightProvider answers every request with the straight-line route the
// adapter would synthesize. Used for offline runs and benchmarks.
type StraightProvider struct{}

func (StraightProvider) Name() string { return "straight" }

func (StraightProvider) PlanRoute(_ context.Context, origin, destination types.Point, waypoints []types.Point) (*routing.ProviderRoute, error) {
	leg, err := routing.Fallback(origin, destination, waypoints, "")
	if err != nil {
		return nil, routing.NewProviderError(routing.KindRejected, "", err.Error())
	}
	return &routing.ProviderRoute{
		DistanceM: leg.DistanceM,
		DurationS: leg.DurationS,
		Polyline:  leg.Polyline,
		Steps:     leg.Steps,
	}, nil
}

// New returns the provider selected by name.
func New(name string, cfg Config) (routing.Provider, error) {
	switch name {
	case "amap":
		return NewAMapProvider(cfg.AMapKey), nil
	case "google":
		g, err := NewGoogleProvider(cfg.GoogleKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "osrm":
		return NewOSRMProvider(cfg.OSRMURL), nil
	case "", "straight":
		return StraightProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown route provider %q", name)
	}
}

// Config holds provider credentials and endpoints.
type Config struct {
	AMapKey   string
	GoogleKey string
	OSRMURL   string
}
