// README: Dispatch handlers: batch planning, departure decisions, latest run and metrics.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/ai"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/decision"
	"github.com/zeizeiwaii/Datastar/internal/modules/dispatch"
)

const briefTimeout = 10 * time.Second

// RunStore keeps the most recent envelope. *dispatch.RunCache implements it.
type RunStore interface {
	SaveLatest(ctx context.Context, env *dispatch.Envelope) error
	Latest(ctx context.Context) (*dispatch.Envelope, bool, error)
}

// BatchRunner runs one pass over pending requests. *dispatch.Scheduler
// implements it.
type BatchRunner interface {
	RunOnce(ctx context.Context) (*dispatch.Envelope, error)
}

type DispatchDeps struct {
	Orchestrator    *dispatch.Orchestrator
	Decisions       *decision.Engine
	VehicleCapacity int
	Runs            RunStore
	Metrics         *dispatch.Counters
	Runner          BatchRunner
	Briefer         ai.Briefer
	Log             *zap.Logger
}

type DispatchHandler struct {
	orch     *dispatch.Orchestrator
	engine   *decision.Engine
	capacity int
	runs     RunStore
	metrics  *dispatch.Counters
	runner   BatchRunner
	briefer  ai.Briefer
	log      *zap.Logger
}

func NewDispatchHandler(deps DispatchDeps) *DispatchHandler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &DispatchHandler{
		orch:     deps.Orchestrator,
		engine:   deps.Decisions,
		capacity: deps.VehicleCapacity,
		runs:     deps.Runs,
		metrics:  deps.Metrics,
		runner:   deps.Runner,
		briefer:  deps.Briefer,
		log:      log,
	}
}

type planReq struct {
	Requests []dispatch.Record `json:"requests"`
}

// Plan handles POST /api/dispatch/plan. With ?view=viz a successful run is
// returned in visualization form.
func (h *DispatchHandler) Plan(c *gin.Context) {
	var req planReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	env := h.orch.Run(c.Request.Context(), req.Requests)
	if !env.Success {
		writeDispatchError(c, env)
		return
	}
	h.saveLatest(c.Request.Context(), env)
	h.writeEnvelope(c, env)
}

// Trigger handles POST /api/dispatch/runs: one pass over pending requests.
func (h *DispatchHandler) Trigger(c *gin.Context) {
	if h.runner == nil {
		writeError(c, http.StatusNotFound, "scheduler disabled")
		return
	}
	env, err := h.runner.RunOnce(c.Request.Context())
	switch {
	case env != nil && !env.Success:
		writeDispatchError(c, env)
	case err != nil:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	case env == nil:
		writeJSON(c, http.StatusOK, map[string]any{"status": "idle"})
	default:
		h.writeEnvelope(c, env)
	}
}

// Latest handles GET /api/dispatch/runs/latest.
func (h *DispatchHandler) Latest(c *gin.Context) {
	env, ok := h.latest(c)
	if !ok {
		return
	}
	h.writeEnvelope(c, env)
}

type decisionReq struct {
	ClusterID       *int `json:"cluster_id" binding:"required"`
	VehicleCapacity int  `json:"vehicle_capacity"`
}

type decisionResp struct {
	Decision    *decision.Decision `json:"decision"`
	Explanation string             `json:"explanation"`
	Brief       *ai.Brief          `json:"brief,omitempty"`
	BriefError  string             `json:"brief_error,omitempty"`
}

// Decide handles POST /api/dispatch/decision for one cluster of the latest
// run. ?brief=1 adds an operator note when a briefer is configured; briefing
// failures never fail the decision.
func (h *DispatchHandler) Decide(c *gin.Context) {
	var req decisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "missing cluster_id")
		return
	}
	env, ok := h.latest(c)
	if !ok {
		return
	}
	cluster, found := env.Clusters[*req.ClusterID]
	if !found || cluster.IsNoise() {
		writeError(c, http.StatusNotFound, "cluster not in latest run")
		return
	}
	capacity := h.capacity
	if req.VehicleCapacity != 0 {
		capacity = req.VehicleCapacity
	}

	d, err := h.engine.Evaluate(cluster, capacity, env.Routes[cluster.ID])
	if err != nil {
		if errors.Is(err, decision.ErrInvalidCapacity) || errors.Is(err, decision.ErrNoiseCluster) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	resp := decisionResp{Decision: d, Explanation: decision.Explain(d)}
	if c.Query("brief") == "1" && h.briefer != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), briefTimeout)
		defer cancel()
		brief, err := h.briefer.BriefDecision(ctx, d)
		if err != nil {
			h.log.Warn("decision brief failed", zap.Int("cluster_id", d.ClusterID), zap.Error(err))
			resp.BriefError = "brief unavailable"
		} else {
			resp.Brief = brief
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

// DecideAll handles GET /api/dispatch/decisions: every cluster of the latest
// run except the noise bucket, in cluster id order.
func (h *DispatchHandler) DecideAll(c *gin.Context) {
	env, ok := h.latest(c)
	if !ok {
		return
	}
	ids := make([]int, 0, len(env.Clusters))
	for id := range env.Clusters {
		if id != clustering.NoiseID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]*decision.Decision, 0, len(ids))
	for _, id := range ids {
		d, err := h.engine.Evaluate(env.Clusters[id], h.capacity, env.Routes[id])
		if err != nil {
			_ = c.Error(err)
			writeError(c, http.StatusInternalServerError, "internal error")
			return
		}
		out = append(out, d)
	}
	writeJSON(c, http.StatusOK, map[string]any{"run_id": env.RunID, "decisions": out})
}

// Metrics handles GET /api/dispatch/metrics.
func (h *DispatchHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		writeError(c, http.StatusNotFound, "metrics disabled")
		return
	}
	writeJSON(c, http.StatusOK, h.metrics.Snapshot())
}

func (h *DispatchHandler) latest(c *gin.Context) (*dispatch.Envelope, bool) {
	if h.runs == nil {
		writeError(c, http.StatusNotFound, "no dispatch run yet")
		return nil, false
	}
	env, ok, err := h.runs.Latest(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !ok {
		writeError(c, http.StatusNotFound, "no dispatch run yet")
		return nil, false
	}
	return env, true
}

func (h *DispatchHandler) saveLatest(ctx context.Context, env *dispatch.Envelope) {
	if h.runs == nil {
		return
	}
	if err := h.runs.SaveLatest(ctx, env); err != nil {
		h.log.Warn("failed to cache envelope", zap.String("run_id", env.RunID), zap.Error(err))
	}
}

func (h *DispatchHandler) writeEnvelope(c *gin.Context, env *dispatch.Envelope) {
	if c.Query("view") == "viz" {
		writeJSON(c, http.StatusOK, dispatch.ToVisualization(env))
		return
	}
	writeJSON(c, http.StatusOK, env)
}
