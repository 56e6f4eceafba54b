package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
)

// Observer receives structured pipeline events. Implementations must be safe
// for concurrent use; routing events arrive from several goroutines.
type Observer interface {
	StageCompleted(stage string, took time.Duration, count int)
	ClusterFormed(clusterID, size int)
	ProviderCall(outcome routing.Status, attempts int)
	RouteBuilt(clusterID int, status routing.Status)
	BatchFinished(env *Envelope)
}

type NopObserver struct{}

func (NopObserver) StageCompleted(string, time.Duration, int) {}
func (NopObserver) ClusterFormed(int, int) {}
func (NopObserver) ProviderCall(routing.Status, int) {}
func (NopObserver) RouteBuilt(int, routing.Status) {}
func (NopObserver) BatchFinished(*Envelope) {}

// LogObserver writes every event as a debug or info line.
type LogObserver struct {
	log *zap.Logger
}

func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) StageCompleted(stage string, took time.Duration, count int) {
	o.log.Debug("stage completed",
		zap.String("stage", stage),
		zap.Duration("took", took),
		zap.Int("count", count),
	)
}

func (o *LogObserver) ClusterFormed(clusterID, size int) {
	o.log.Debug("cluster formed", zap.Int("cluster_id", clusterID), zap.Int("size", size))
}

func (o *LogObserver) ProviderCall(outcome routing.Status, attempts int) {
	o.log.Debug("provider call", zap.String("outcome", string(outcome)), zap.Int("attempts", attempts))
}

func (o *LogObserver) RouteBuilt(clusterID int, status routing.Status) {
	o.log.Debug("route built", zap.Int("cluster_id", clusterID), zap.String("status", string(status)))
}

func (o *LogObserver) BatchFinished(env *Envelope) {
	fields := []zap.Field{
		zap.String("run_id", env.RunID),
		zap.Bool("success", env.Success),
		zap.Float64("processing_time", env.ProcessingTime),
		zap.Int("total_requests", env.TotalRequests),
		zap.Int("valid_clusters", env.ValidClusters),
		zap.Int("noise_points", env.NoisePoints),
		zap.Int("routes", len(env.Routes)),
	}
	if !env.Success {
		o.log.Warn("batch failed", append(fields, zap.String("error_code", env.ErrorCode), zap.String("error", env.Error))...)
		return
	}
	o.log.Info("batch finished", fields...)
}

// Counters accumulates event totals across runs.
type Counters struct {
	batches         atomic.Int64
	failedBatches   atomic.Int64
	clusters        atomic.Int64
	providerCalls   atomic.Int64
	providerRetries atomic.Int64
	fallbacks       atomic.Int64
	providerFailed  atomic.Int64
	routes          atomic.Int64
	partialRoutes   atomic.Int64

	mu     sync.Mutex
	stages map[string]StageStat
}

type StageStat struct {
	Runs  int64         `json:"runs"`
	Total time.Duration `json:"total_ns"`
	Last  time.Duration `json:"last_ns"`
}

// CountersSnapshot is a point-in-time copy of Counters.
type CountersSnapshot struct {
	Batches         int64                `json:"batches"`
	FailedBatches   int64                `json:"failed_batches"`
	Clusters        int64                `json:"clusters"`
	ProviderCalls   int64                `json:"provider_calls"`
	ProviderRetries int64                `json:"provider_retries"`
	Fallbacks       int64                `json:"fallbacks"`
	ProviderFailed  int64                `json:"provider_failed"`
	Routes          int64                `json:"routes"`
	PartialRoutes   int64                `json:"partial_routes"`
	FallbackRate    float64              `json:"fallback_rate"`
	Stages          map[string]StageStat `json:"stages"`
}

func NewCounters() *Counters {
	return &Counters{stages: make(map[string]StageStat)}
}

func (c *Counters) StageCompleted(stage string, took time.Duration, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stages[stage]
	s.Runs++
	s.Total += took
	s.Last = took
	c.stages[stage] = s
}

func (c *Counters) ClusterFormed(int, int) { c.clusters.Add(1) }

func (c *Counters) ProviderCall(outcome routing.Status, attempts int) {
	c.providerCalls.Add(1)
	if attempts > 1 {
		c.providerRetries.Add(int64(attempts - 1))
	}
	switch outcome {
	case routing.StatusFallback:
		c.fallbacks.Add(1)
	case routing.StatusFailed:
		c.providerFailed.Add(1)
	}
}

func (c *Counters) RouteBuilt(int, routing.Status) { c.routes.Add(1) }

func (c *Counters) BatchFinished(env *Envelope) {
	c.batches.Add(1)
	if !env.Success {
		c.failedBatches.Add(1)
	}
	for _, r := range env.Routes {
		if r.Partial {
			c.partialRoutes.Add(1)
		}
	}
}

func (c *Counters) Snapshot() CountersSnapshot {
	s := CountersSnapshot{
		Batches:         c.batches.Load(),
		FailedBatches:   c.failedBatches.Load(),
		Clusters:        c.clusters.Load(),
		ProviderCalls:   c.providerCalls.Load(),
		ProviderRetries: c.providerRetries.Load(),
		Fallbacks:       c.fallbacks.Load(),
		ProviderFailed:  c.providerFailed.Load(),
		Routes:          c.routes.Load(),
		PartialRoutes:   c.partialRoutes.Load(),
		Stages:          make(map[string]StageStat),
	}
	if s.ProviderCalls > 0 {
		s.FallbackRate = float64(s.Fallbacks) / float64(s.ProviderCalls)
	}
	c.mu.Lock()
	for k, v := range c.stages {
		s.Stages[k] = v
	}
	c.mu.Unlock()
	return s
}

// MultiObserver fans every event out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) StageCompleted(stage string, took time.Duration, count int) {
	for _, o := range m {
		o.StageCompleted(stage, took, count)
	}
}

func (m MultiObserver) ClusterFormed(clusterID, size int) {
	for _, o := range m {
		o.ClusterFormed(clusterID, size)
	}
}

func (m MultiObserver) ProviderCall(outcome routing.Status, attempts int) {
	for _, o := range m {
		o.ProviderCall(outcome, attempts)
	}
}

func (m MultiObserver) RouteBuilt(clusterID int, status routing.Status) {
	for _, o := range m {
		o.RouteBuilt(clusterID, status)
	}
}

func (m MultiObserver) BatchFinished(env *Envelope) {
	for _, o := range m {
		o.BatchFinished(env)
	}
}
