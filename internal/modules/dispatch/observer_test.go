package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
)

func TestCounters_Snapshot(t *testing.T) {
	c := NewCounters()
	c.ProviderCall(routing.StatusRouted, 1)
	c.ProviderCall(routing.StatusFallback, 4)
	c.ProviderCall(routing.StatusFailed, 1)
	c.ProviderCall(routing.StatusRouted, 2)
	c.StageCompleted("preprocess", 2*time.Millisecond, 10)
	c.StageCompleted("preprocess", 4*time.Millisecond, 10)
	c.BatchFinished(&Envelope{Success: true, Routes: map[int]*routing.ClusterRoute{
		0: {Partial: true},
		1: {},
	}})
	c.BatchFinished(&Envelope{Success: false})

	s := c.Snapshot()
	assert.EqualValues(t, 4, s.ProviderCalls)
	assert.EqualValues(t, 4, s.ProviderRetries)
	assert.EqualValues(t, 1, s.Fallbacks)
	assert.EqualValues(t, 1, s.ProviderFailed)
	assert.InDelta(t, 0.25, s.FallbackRate, 1e-9)
	assert.EqualValues(t, 2, s.Batches)
	assert.EqualValues(t, 1, s.FailedBatches)
	assert.EqualValues(t, 1, s.PartialRoutes)
	assert.Equal(t, StageStat{Runs: 2, Total: 6 * time.Millisecond, Last: 4 * time.Millisecond}, s.Stages["preprocess"])
}

func TestCounters_Concurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ProviderCall(routing.StatusRouted, 1)
			c.StageCompleted("aggregate", time.Millisecond, 1)
		}()
	}
	wg.Wait()
	s := c.Snapshot()
	assert.EqualValues(t, 50, s.ProviderCalls)
	assert.EqualValues(t, 50, s.Stages["aggregate"].Runs)
	assert.Zero(t, s.FallbackRate)
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewLogObserver(zap.New(core))

	o.RouteBuilt(3, routing.StatusFallback)
	o.BatchFinished(&Envelope{RunID: "r1", Success: true})
	o.BatchFinished(&Envelope{RunID: "r2", ErrorCode: CodeNoClusters, Error: ErrNoClusters.Error()})

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "route built", entries[0].Message)
		assert.Equal(t, int64(3), entries[0].ContextMap()["cluster_id"])
		assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
		assert.Equal(t, CodeNoClusters, entries[2].ContextMap()["error_code"])
	}
}
