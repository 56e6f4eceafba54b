package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const defaultOSRMURL = "https://router.project-osrm.org"

// OSRMProvider plans routes with an OSRM route service.
type OSRMProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRMProvider(baseURL string) *OSRMProvider {
	if baseURL == "" {
		baseURL = defaultOSRMURL
	}
	return &OSRMProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *OSRMProvider) Name() string { return "osrm" }

type osrmStep struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
	Name     string  `json:"name"`
	Maneuver struct {
		Type     string `json:"type"`
		Modifier string `json:"modifier"`
	} `json:"maneuver"`
}

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
		Legs     []struct {
			Steps []osrmStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func (p *OSRMProvider) PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*routing.ProviderRoute, error) {
	coords := make([]string, 0, len(waypoints)+2)
	coords = append(coords, lngLat(origin))
	for _, w := range waypoints {
		coords = append(coords, lngLat(w))
	}
	coords = append(coords, lngLat(destination))
	queryURL := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=polyline&steps=true",
		p.baseURL, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build osrm request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var or osrmRouteResponse
	decodeErr := json.Unmarshal(body, &or)

	if resp.StatusCode != http.StatusOK {
		// OSRM answers 400 with a code for unroutable input.
		if decodeErr == nil && or.Code != "" && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, routing.NewProviderError(routing.KindRejected, or.Code, or.Message)
		}
		return nil, httpStatusError(resp.StatusCode, string(body))
	}
	if decodeErr != nil {
		return nil, routing.NewProviderError(routing.KindMalformed, "", fmt.Sprintf("decode osrm response: %v", decodeErr))
	}
	if or.Code != "Ok" {
		return nil, routing.NewProviderError(routing.KindRejected, or.Code, or.Message)
	}
	if len(or.Routes) == 0 {
		return nil, routing.NewProviderError(routing.KindMalformed, or.Code, "response has no routes")
	}

	r := or.Routes[0]
	line, err := geo.DecodePolyline(r.Geometry)
	if err != nil {
		return nil, routing.NewProviderError(routing.KindMalformed, or.Code, err.Error())
	}
	out := &routing.ProviderRoute{
		DistanceM: r.Distance,
		DurationS: r.Duration,
		Polyline:  line,
	}
	for _, leg := range r.Legs {
		for _, s := range leg.Steps {
			pts, err := geo.DecodePolyline(s.Geometry)
			if err != nil {
				return nil, routing.NewProviderError(routing.KindMalformed, or.Code, err.Error())
			}
			out.Steps = append(out.Steps, routing.Step{
				Instruction: osrmInstruction(s),
				DistanceM:   s.Distance,
				DurationS:   s.Duration,
				Polyline:    pts,
			})
		}
	}
	return out, nil
}

func osrmInstruction(s osrmStep) string {
	parts := []string{s.Maneuver.Type}
	if s.Maneuver.Modifier != "" {
		parts = append(parts, s.Maneuver.Modifier)
	}
	if s.Name != "" {
		parts = append(parts, "onto "+s.Name)
	}
	return strings.Join(parts, " ")
}
