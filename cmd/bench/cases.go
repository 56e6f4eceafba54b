// README: Benchmark cases for the in-process pipeline and, when configured, a live API and its stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zeizeiwaii/Datastar/internal/maps"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/dispatch"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	orch  *dispatch.Orchestrator
	stats *dispatch.Counters
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	if err := r.buildPipeline(); err != nil {
		fmt.Printf("%-7s pipeline setup - %v\n", statusFail, err)
		return append(results, Result{Name: "pipeline setup", Status: statusFail, Note: err.Error()})
	}

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) buildPipeline() error {
	provider, err := maps.New(r.cfg.Provider, maps.Config{
		AMapKey:   envOrDefault("DATASTAR_ROUTING_AMAP_KEY", ""),
		GoogleKey: envOrDefault("DATASTAR_ROUTING_GOOGLE_KEY", ""),
		OSRMURL:   envOrDefault("DATASTAR_ROUTING_OSRM_URL", ""),
	})
	if err != nil {
		return err
	}
	r.stats = dispatch.NewCounters()
	adapter := routing.NewAdapter(provider, routing.DefaultAdapterConfig(), nil).WithObserver(r.stats)
	planner := routing.NewPlanner(routing.NewComposer(adapter, clustering.DefaultParams().MaxPointsPerRoute), nil)
	clusterer := clustering.NewClusterer(clustering.DefaultParams(), nil, 4, nil)
	r.orch = dispatch.NewOrchestrator(clusterer, planner, 4, nil).WithObserver(r.stats)
	return nil
}

var benchBase = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func tripAt(id string, origin, dest types.Point, offset time.Duration) clustering.TripRequest {
	return clustering.TripRequest{
		ID:             types.ID(id),
		Origin:         origin,
		Destination:    dest,
		DepartureTime:  benchBase.Add(offset),
		PassengerCount: 1,
	}
}

// syntheticBatch scatters n requests around two hubs over two hours.
func syntheticBatch(rng *rand.Rand, n int) []clustering.TripRequest {
	hubs := [][2]types.Point{
		{{Lat: 31.2304, Lng: 121.4737}, {Lat: 31.1443, Lng: 121.8083}},
		{{Lat: 31.2989, Lng: 121.5011}, {Lat: 31.1979, Lng: 121.3363}},
	}
	out := make([]clustering.TripRequest, n)
	for i := range out {
		h := hubs[rng.Intn(len(hubs))]
		o := types.Point{Lat: h[0].Lat + (rng.Float64()-0.5)*0.03, Lng: h[0].Lng + (rng.Float64()-0.5)*0.03}
		d := types.Point{Lat: h[1].Lat + (rng.Float64()-0.5)*0.03, Lng: h[1].Lng + (rng.Float64()-0.5)*0.03}
		out[i] = tripAt(fmt.Sprintf("r%05d", i), o, d, time.Duration(rng.Intn(120))*time.Minute)
		out[i].PassengerCount = 1 + rng.Intn(3)
	}
	return out
}

func (r *Runner) cases() []TestCase {
	origin := types.Point{Lat: 31.2304, Lng: 121.4737}
	dest := types.Point{Lat: 31.1443, Lng: 121.8083}
	shift := func(p types.Point, lat float64) types.Point { return types.Point{Lat: p.Lat + lat, Lng: p.Lng} }

	return []TestCase{
		{
			Name: "Env: Postgres schema",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				for _, table := range []string{"user_request", "dispatch_plan", "request_dispatch_link"} {
					var exists bool
					if err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table " + table}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Pipeline: two separate pairs",
			Run: func(ctx context.Context, r *Runner) Result {
				env, took := r.timedRun(ctx, []clustering.TripRequest{
					tripAt("a1", origin, dest, 0),
					tripAt("a2", shift(origin, 0.001), shift(dest, 0.001), time.Minute),
					tripAt("b1", shift(origin, 0.09), shift(dest, 0.09), 2*time.Minute),
					tripAt("b2", shift(origin, 0.091), shift(dest, 0.091), 3*time.Minute),
				})
				if !env.Success || env.ValidClusters != 2 || len(env.Routes) != 2 {
					return Result{Status: statusFail, Latency: took, Note: summary(env)}
				}
				return Result{Status: statusPass, Latency: took}
			},
		},
		{
			Name: "Pipeline: empty batch",
			Run: func(ctx context.Context, r *Runner) Result {
				env, took := r.timedRun(ctx, nil)
				if env.Success || env.ErrorCode != dispatch.CodeEmptyBatch {
					return Result{Status: statusFail, Latency: took, Note: summary(env)}
				}
				return Result{Status: statusPass, Latency: took}
			},
		},
		{
			Name: "Pipeline: 24h expiry",
			Run: func(ctx context.Context, r *Runner) Result {
				env, took := r.timedRun(ctx, []clustering.TripRequest{
					tripAt("a1", origin, dest, 0),
					tripAt("a2", shift(origin, 0.001), dest, time.Minute),
					tripAt("late", origin, dest, 25*time.Hour),
				})
				if !env.Success || len(env.ExpiredIDs) != 1 || env.ExpiredIDs[0] != "late" {
					return Result{Status: statusFail, Latency: took, Note: summary(env)}
				}
				return Result{Status: statusPass, Latency: took}
			},
		},
		{
			Name: fmt.Sprintf("Pipeline: synthetic batch of %d", r.cfg.BatchSize),
			Run: func(ctx context.Context, r *Runner) Result {
				reqs := syntheticBatch(rand.New(rand.NewSource(r.cfg.Seed)), r.cfg.BatchSize)
				env, took := r.timedRun(ctx, reqs)
				if !env.Success {
					return Result{Status: statusFail, Latency: took, Note: summary(env)}
				}
				return Result{Status: statusPass, Latency: took, Note: summary(env)}
			},
		},
		{
			Name: "Perf: batch throughput",
			Run:  batchThroughput,
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.BaseURL == "" {
					return Result{Status: statusSkip, Note: "base url not configured"}
				}
				return r.httpCheck(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil, http.StatusOK)
			},
		},
		{
			Name: "API: plan batch",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.BaseURL == "" {
					return Result{Status: statusSkip, Note: "base url not configured"}
				}
				reqs := syntheticBatch(rand.New(rand.NewSource(r.cfg.Seed)), 40)
				return r.httpCheck(ctx, http.MethodPost, r.cfg.BaseURL+"/api/dispatch/plan",
					map[string]any{"requests": toRecords(reqs)},
					http.StatusOK, http.StatusUnprocessableEntity)
			},
		},
	}
}

func (r *Runner) timedRun(ctx context.Context, reqs []clustering.TripRequest) (*dispatch.Envelope, time.Duration) {
	start := time.Now()
	env := r.orch.RunRequests(ctx, reqs)
	return env, time.Since(start)
}

func summary(env *dispatch.Envelope) string {
	s := fmt.Sprintf("clusters=%d noise=%d routes=%d failures=%d",
		env.ValidClusters, env.NoisePoints, len(env.Routes), len(env.RouteFailures))
	if !env.Success {
		s += " code=" + env.ErrorCode
	}
	return s
}

func batchThroughput(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var batches, requests, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(r.cfg.Seed + int64(worker)))
			for time.Now().Before(end) && ctx.Err() == nil {
				env := r.orch.RunRequests(ctx, syntheticBatch(rng, r.cfg.BatchSize))
				batches.Add(1)
				requests.Add(int64(env.TotalRequests))
				if !env.Success {
					failed.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	if batches.Load() == 0 {
		return Result{Status: statusFail, Note: "no batches completed"}
	}
	secs := r.cfg.Duration.Seconds()
	snap := r.stats.Snapshot()
	return Result{Status: statusPass, Note: fmt.Sprintf("batches/s=%.2f requests/s=%.0f failed=%d fallback_rate=%.3f",
		float64(batches.Load())/secs, float64(requests.Load())/secs, failed.Load(), snap.FallbackRate)}
}

func toRecords(reqs []clustering.TripRequest) []map[string]any {
	out := make([]map[string]any, len(reqs))
	for i, q := range reqs {
		out[i] = map[string]any{
			"id":              string(q.ID),
			"origin":          q.Origin,
			"destination":     q.Destination,
			"departure_time":  q.DepartureTime.Format(time.RFC3339),
			"passenger_count": q.PassengerCount,
		}
	}
	return out
}

func (r *Runner) httpCheck(ctx context.Context, method, url string, body any, okStatuses ...int) Result {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := time.Since(start)

	for _, s := range okStatuses {
		if resp.StatusCode == s {
			return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		}
	}
	return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
}
