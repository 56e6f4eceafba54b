package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	amapBaseURL = "https://restapi.amap.com/v3"
	// amapStrategy asks for the recommended driving route.
	amapStrategy = "10"
)

// AMapProvider plans routes with the AMap v3 driving direction API.
type AMapProvider struct {
	key        string
	baseURL    string
	httpClient *http.Client
}

func NewAMapProvider(key string) *AMapProvider {
	return &AMapProvider{
		key:     key,
		baseURL: amapBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *AMapProvider) Name() string { return "amap" }

// amapNumber accepts the quoted numbers AMap returns, and the empty array it
// sends in place of a missing value.
type amapNumber float64

func (n *amapNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("[]")) || bytes.Equal(b, []byte(`""`)) || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("amap number %q: %w", s, err)
	}
	*n = amapNumber(v)
	return nil
}

type amapStep struct {
	Instruction  string     `json:"instruction"`
	Distance     amapNumber `json:"distance"`
	Duration     amapNumber `json:"duration"`
	Polyline     string     `json:"polyline"`
	Tolls        amapNumber `json:"tolls"`
	TollDistance amapNumber `json:"toll_distance"`
}

type amapPath struct {
	Distance     amapNumber `json:"distance"`
	Duration     amapNumber `json:"duration"`
	Tolls        amapNumber `json:"tolls"`
	TollDistance amapNumber `json:"toll_distance"`
	Steps        []amapStep `json:"steps"`
}

type amapResponse struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	InfoCode string `json:"infocode"`
	Route    *struct {
		Paths []amapPath `json:"paths"`
	} `json:"route"`
}

func (p *AMapProvider) PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*routing.ProviderRoute, error) {
	q := url.Values{}
	q.Set("key", p.key)
	q.Set("origin", lngLat(origin))
	q.Set("destination", lngLat(destination))
	q.Set("strategy", amapStrategy)
	q.Set("extensions", "all")
	if len(waypoints) > 0 {
		parts := make([]string, len(waypoints))
		for i, w := range waypoints {
			parts[i] = lngLat(w)
		}
		q.Set("waypoints", strings.Join(parts, ";"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/direction/driving?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build amap request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, httpStatusError(resp.StatusCode, string(body))
	}

	var ar amapResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, routing.NewProviderError(routing.KindMalformed, "", fmt.Sprintf("decode amap response: %v", err))
	}
	if ar.Status != "1" {
		return nil, classifyAMap(ar.InfoCode, ar.Info)
	}
	if ar.Route == nil || len(ar.Route.Paths) == 0 {
		return nil, routing.NewProviderError(routing.KindMalformed, ar.InfoCode, "response has no paths")
	}

	path := ar.Route.Paths[0]
	if len(path.Steps) == 0 {
		return nil, routing.NewProviderError(routing.KindMalformed, ar.InfoCode, "path has no steps")
	}
	out := &routing.ProviderRoute{
		DistanceM:     float64(path.Distance),
		DurationS:     float64(path.Duration),
		TollDistanceM: float64(path.TollDistance),
		TollCost:      float64(path.Tolls),
	}
	for i, s := range path.Steps {
		pts, err := parseAMapPolyline(s.Polyline)
		if err != nil {
			return nil, routing.NewProviderError(routing.KindMalformed, ar.InfoCode, fmt.Sprintf("step %d: %v", i, err))
		}
		out.Steps = append(out.Steps, routing.Step{
			Instruction: s.Instruction,
			DistanceM:   float64(s.Distance),
			DurationS:   float64(s.Duration),
			Polyline:    pts,
		})
		for _, pt := range pts {
			if n := len(out.Polyline); n > 0 && out.Polyline[n-1] == pt {
				continue
			}
			out.Polyline = append(out.Polyline, pt)
		}
	}
	return out, nil
}

// classifyAMap maps AMap infocodes to error kinds.
func classifyAMap(code, info string) error {
	kind := routing.KindRejected
	switch code {
	case "10004", "10008", "10020":
		kind = routing.KindRateLimited
	case "10001", "10009", "20800":
		kind = routing.KindAuth
	case "10003":
		kind = routing.KindQuota
	}
	return routing.NewProviderError(kind, code, info)
}

// parseAMapPolyline reads "lng,lat;lng,lat;..." strings.
func parseAMapPolyline(s string) ([]types.Point, error) {
	var out []types.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		lngStr, latStr, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("bad coordinate %q", pair)
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude %q: %w", lngStr, err)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude %q: %w", latStr, err)
		}
		out = append(out, types.Point{Lat: lat, Lng: lng})
	}
	return out, nil
}

func lngLat(p types.Point) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

// httpStatusError classifies a non-200 answer from an HTTP provider.
func httpStatusError(status int, body string) error {
	msg := fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(body))
	code := strconv.Itoa(status)
	switch {
	case status == http.StatusTooManyRequests:
		return routing.NewProviderError(routing.KindRateLimited, code, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return routing.NewProviderError(routing.KindAuth, code, msg)
	case status >= 500:
		return routing.NewProviderError(routing.KindTransport, code, msg)
	default:
		return routing.NewProviderError(routing.KindRejected, code, msg)
	}
}
