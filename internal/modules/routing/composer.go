package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

// LegPlanner plans a single provider-sized leg.
type LegPlanner interface {
	PlanLeg(ctx context.Context, origin, destination types.Point, waypoints []types.Point) LegResult
}

// Composer chains provider calls for legs with more waypoints than one
// request may carry.
type Composer struct {
	planner LegPlanner
	chunk   int
}

// NewComposer splits legs into chunks of min(maxPointsPerRoute, 16) waypoints.
func NewComposer(planner LegPlanner, maxPointsPerRoute int) *Composer {
	chunk := MaxProviderWaypoints
	if maxPointsPerRoute > 0 && maxPointsPerRoute < chunk {
		chunk = maxPointsPerRoute
	}
	return &Composer{planner: planner, chunk: chunk}
}

func (c *Composer) ChunkSize() int { return c.chunk }

// Compose builds one continuous leg origin -> waypoints -> destination. Segment
// k starts where segment k-1 ended, carries the rest of its chunk as waypoints
// and ends at the first waypoint of the next chunk, or at destination for the
// last chunk. A failed segment fails the whole leg.
func (c *Composer) Compose(ctx context.Context, origin, destination types.Point, waypoints []types.Point) LegResult {
	if len(waypoints) <= c.chunk {
		res := c.planner.PlanLeg(ctx, origin, destination, waypoints)
		if !res.OK() {
			return LegResult{Status: StatusFailed, Attempts: res.Attempts, Err: fmt.Errorf("%w: %w", ErrLegFailed, res.Err)}
		}
		return res
	}

	chunks := splitChunks(waypoints, c.chunk)
	leg := &RouteLeg{
		Origin:      origin,
		Destination: destination,
		Waypoints:   append([]types.Point(nil), waypoints...),
		Segments:    len(chunks),
	}
	var (
		attempts int
		reasons  []string
	)
	for k, chunk := range chunks {
		from, via := origin, chunk
		if k > 0 {
			from, via = chunk[0], chunk[1:]
		}
		to := destination
		if k+1 < len(chunks) {
			to = chunks[k+1][0]
		}

		res := c.planner.PlanLeg(ctx, from, to, via)
		attempts += res.Attempts
		if !res.OK() {
			return LegResult{
				Status:   StatusFailed,
				Attempts: attempts,
				Err:      fmt.Errorf("%w: segment %d of %d: %w", ErrLegFailed, k+1, len(chunks), res.Err),
			}
		}

		seg := res.Leg
		leg.DistanceM += seg.DistanceM
		leg.DurationS += seg.DurationS
		leg.TollDistanceM += seg.TollDistanceM
		leg.TollCost += seg.TollCost
		leg.Steps = append(leg.Steps, seg.Steps...)
		leg.Polyline = appendJoined(leg.Polyline, seg.Polyline)
		if seg.IsFallback {
			leg.IsFallback = true
			reasons = append(reasons, fmt.Sprintf("segment %d: %s", k+1, seg.FallbackReason))
		}
	}
	leg.AvgSpeedKmh = avgSpeed(leg.DistanceM, leg.DurationS)
	leg.FallbackReason = strings.Join(reasons, "; ")

	status := StatusRouted
	if leg.IsFallback {
		status = StatusFallback
	}
	return LegResult{Status: status, Leg: leg, Attempts: attempts}
}

func splitChunks(points []types.Point, size int) [][]types.Point {
	var out [][]types.Point
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		out = append(out, points[start:end])
	}
	return out
}
