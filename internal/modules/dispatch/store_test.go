package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

func samplePlans() []PlanRecord {
	return []PlanRecord{
		{
			ClusterID: 0, StartTime: baseTime, Status: PlanStatusPlanned, RoutePolyline: "_p~iF~ps|U_ulLnnqC",
			DistanceM: 1200, DurationS: 300, PassengerCount: 2, RequestIDs: []types.ID{"a1", "a2"},
		},
		{
			ClusterID: 1, StartTime: baseTime.Add(2 * time.Minute), Status: PlanStatusPlanned,
			DistanceM: 900, DurationS: 200, PassengerCount: 3, IsFallback: true, Partial: true,
			RequestIDs: []types.ID{"b1", "b2"},
		},
	}
}

func TestSQLitePlanStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLitePlanStore(filepath.Join(t.TempDir(), "plans", "dispatch.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SavePlans(ctx, "run-1", samplePlans()))

	got, err := store.ListPlans(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, samplePlans()[0].RequestIDs, got[0].RequestIDs)
	assert.True(t, got[0].StartTime.Equal(baseTime))
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC", got[0].RoutePolyline)
	assert.True(t, got[1].IsFallback)
	assert.True(t, got[1].Partial)
	assert.Equal(t, 3, got[1].PassengerCount)

	linked, err := store.IsLinked(ctx, "b2")
	require.NoError(t, err)
	assert.True(t, linked)
	linked, err = store.IsLinked(ctx, "zz")
	require.NoError(t, err)
	assert.False(t, linked)

	empty, err := store.ListPlans(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLitePlanStore_RequestLinkedOnce(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLitePlanStore(filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SavePlans(ctx, "run-1", samplePlans()[:1]))

	dup := samplePlans()[1]
	dup.RequestIDs = []types.ID{"c1", "a1"}
	assert.Error(t, store.SavePlans(ctx, "run-2", []PlanRecord{dup}))

	// The failed run left nothing behind.
	got, err := store.ListPlans(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, got)
	linked, err := store.IsLinked(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestPGPlanStore(t *testing.T) {
	dsn := os.Getenv("DATASTAR_TEST_DSN")
	if dsn == "" {
		t.Skip("DATASTAR_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	runID := "test-" + time.Now().Format("150405.000000")
	plans := samplePlans()
	for i := range plans {
		for j, id := range plans[i].RequestIDs {
			plans[i].RequestIDs[j] = types.ID(runID + "-" + string(id))
		}
	}
	store := NewPGPlanStore(pool)
	require.NoError(t, store.SavePlans(ctx, runID, plans))

	got, err := store.ListPlans(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, plans[1].RequestIDs, got[1].RequestIDs)
	assert.True(t, got[0].StartTime.Equal(baseTime))
}
