package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// Observer receives one event per adapter call.
type Observer interface {
	ProviderCall(outcome Status, attempts int)
}

type AdapterConfig struct {
	Timeout       time.Duration
	RetryLimit    int
	BackoffBase   time.Duration
	RatePerSecond float64
}

func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Timeout:     15 * time.Second,
		RetryLimit:  3,
		BackoffBase: time.Second,
	}
}

// Adapter wraps a Provider with per-call timeouts, linear backoff on
// transient failures, geometry validation and straight-line fallback.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	limiter  *rate.Limiter
	log      *zap.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAdapter(provider Provider, cfg AdapterConfig, log *zap.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAdapterConfig().Timeout
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Adapter{provider: provider, cfg: cfg, log: log, sleep: sleepCtx}
	if cfg.RatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return a
}

// WithObserver returns a copy of the adapter that reports every call to o.
func (a *Adapter) WithObserver(o Observer) *Adapter {
	cp := *a
	cp.observer = o
	return &cp
}

func (a *Adapter) ProviderName() string { return a.provider.Name() }

// PlanLeg routes origin -> waypoints -> destination. Transient failures are
// retried up to RetryLimit times; exhausted retries and invalid geometry yield
// a fallback leg. Invalid geometry and malformed responses fall back on the
// attempt that produced them without a retry. Permanent provider errors,
// oversized requests and a cancelled parent context yield StatusFailed.
func (a *Adapter) PlanLeg(ctx context.Context, origin, destination types.Point, waypoints []types.Point) LegResult {
	res := a.planLeg(ctx, origin, destination, waypoints)
	if a.observer != nil {
		a.observer.ProviderCall(res.Status, res.Attempts)
	}
	return res
}

func (a *Adapter) planLeg(ctx context.Context, origin, destination types.Point, waypoints []types.Point) LegResult {
	if len(waypoints) > MaxProviderWaypoints {
		return LegResult{
			Status: StatusFailed,
			Err:    fmt.Errorf("%w: %d > %d", ErrTooManyWaypoints, len(waypoints), MaxProviderWaypoints),
		}
	}

	maxAttempts := 1 + a.cfg.RetryLimit
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return LegResult{Status: StatusFailed, Attempts: attempt, Err: err}
			}
		}

		route, err := a.call(ctx, origin, destination, waypoints)
		if err == nil {
			if verr := ValidateRoute(route); verr != nil {
				a.log.Warn("provider returned invalid geometry",
					zap.String("provider", a.provider.Name()),
					zap.Error(verr),
				)
				return a.fallback(origin, destination, waypoints, attempt, "invalid geometry: "+verr.Error())
			}
			return LegResult{Status: StatusRouted, Leg: legFromProvider(origin, destination, waypoints, route), Attempts: attempt}
		}
		if ctx.Err() != nil {
			return LegResult{Status: StatusFailed, Attempts: attempt, Err: ctx.Err()}
		}

		lastErr = err
		kind := Classify(err)
		if kind == KindMalformed {
			return a.fallback(origin, destination, waypoints, attempt, "malformed response: "+err.Error())
		}
		if !kind.Transient() {
			a.log.Error("provider rejected request",
				zap.String("provider", a.provider.Name()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			return LegResult{Status: StatusFailed, Attempts: attempt, Err: err}
		}
		if attempt == maxAttempts {
			break
		}

		wait := a.cfg.BackoffBase * time.Duration(attempt)
		a.log.Info("retrying provider call",
			zap.String("provider", a.provider.Name()),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Int("retry_limit", a.cfg.RetryLimit),
			zap.Duration("backoff", wait),
		)
		if err := a.sleep(ctx, wait); err != nil {
			return LegResult{Status: StatusFailed, Attempts: attempt, Err: err}
		}
	}
	return a.fallback(origin, destination, waypoints, attempt,
		fmt.Sprintf("provider unavailable after %d attempts: %v", attempt, lastErr))
}

func (a *Adapter) call(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*ProviderRoute, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	route, err := a.provider.PlanRoute(callCtx, origin, destination, waypoints)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &ProviderError{Kind: KindTimeout, Message: err.Error()}
	}
	return route, err
}

func (a *Adapter) fallback(origin, destination types.Point, waypoints []types.Point, attempts int, reason string) LegResult {
	leg, err := Fallback(origin, destination, waypoints, reason)
	if err != nil {
		return LegResult{Status: StatusFailed, Attempts: attempts, Err: err}
	}
	a.log.Warn("using straight-line fallback route",
		zap.String("provider", a.provider.Name()),
		zap.String("reason", reason),
		zap.Float64("distance_m", leg.DistanceM),
	)
	return LegResult{Status: StatusFallback, Leg: leg, Attempts: attempts}
}

// Fallback synthesizes a straight-line leg through origin, the waypoints in
// the given order and destination at FallbackSpeedKmh.
func Fallback(origin, destination types.Point, waypoints []types.Point, reason string) (*RouteLeg, error) {
	line := make([]types.Point, 0, len(waypoints)+2)
	line = append(line, origin)
	line = append(line, waypoints...)
	line = append(line, destination)
	for i, p := range line {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: point %d (%v) out of range", ErrInvalidGeometry, i, p)
		}
	}

	leg := &RouteLeg{
		Origin:         origin,
		Destination:    destination,
		Waypoints:      append([]types.Point(nil), waypoints...),
		Polyline:       line,
		AvgSpeedKmh:    FallbackSpeedKmh,
		IsFallback:     true,
		FallbackReason: reason,
		Segments:       1,
	}
	for i := 0; i+1 < len(line); i++ {
		d := geo.HaversineMeters(line[i], line[i+1])
		t := fallbackDuration(d)
		leg.DistanceM += d
		leg.DurationS += t
		leg.Steps = append(leg.Steps, Step{
			Instruction: fallbackInstruction(i, len(line)-1),
			DistanceM:   d,
			DurationS:   t,
			Polyline:    []types.Point{line[i], line[i+1]},
		})
	}
	return leg, nil
}

func fallbackDuration(metres float64) float64 {
	return metres / 1000 / FallbackSpeedKmh * 3600
}

func fallbackInstruction(i, last int) string {
	from := fmt.Sprintf("waypoint %d", i)
	if i == 0 {
		from = "origin"
	}
	to := fmt.Sprintf("waypoint %d", i+1)
	if i+1 == last {
		to = "destination"
	}
	return fmt.Sprintf("drive from %s to %s", from, to)
}

// ValidateRoute rejects provider answers whose geometry is unusable.
func ValidateRoute(r *ProviderRoute) error {
	if r == nil {
		return fmt.Errorf("%w: empty response", ErrInvalidGeometry)
	}
	if len(r.Polyline) < 2 {
		return fmt.Errorf("%w: %d points", ErrInvalidGeometry, len(r.Polyline))
	}
	for i, p := range r.Polyline {
		if !p.Valid() {
			return fmt.Errorf("%w: point %d (%v) out of range", ErrInvalidGeometry, i, p)
		}
	}
	if !finiteNonNegative(r.DistanceM) || !finiteNonNegative(r.DurationS) {
		return fmt.Errorf("%w: distance %v duration %v", ErrInvalidGeometry, r.DistanceM, r.DurationS)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func legFromProvider(origin, destination types.Point, waypoints []types.Point, r *ProviderRoute) *RouteLeg {
	leg := &RouteLeg{
		Origin:        origin,
		Destination:   destination,
		Waypoints:     append([]types.Point(nil), waypoints...),
		Polyline:      r.Polyline,
		DistanceM:     r.DistanceM,
		DurationS:     r.DurationS,
		TollDistanceM: r.TollDistanceM,
		TollCost:      r.TollCost,
		Steps:         r.Steps,
		Segments:      1,
	}
	leg.AvgSpeedKmh = avgSpeed(leg.DistanceM, leg.DurationS)
	return leg
}

func avgSpeed(metres, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return (metres / 1000) / (seconds / 3600)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
