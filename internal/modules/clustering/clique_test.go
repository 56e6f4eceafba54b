package clustering

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

func TestDistanceMatrix_SymmetricAverage(t *testing.T) {
	group := []TripRequest{
		trip("a", originA, destA, 0),
		trip("b", north(originA, 400), north(destA, 200), 0),
	}
	m := DistanceMatrix(group)
	assert.Zero(t, m[0][0])
	assert.Equal(t, m[0][1], m[1][0])
	assert.InDelta(t, 0.3, m[0][1], 0.005)
}

// Scenario A: two requests 200m apart at both ends, five minutes apart.
func TestClique_TwoNearbyRequestsFormOneCluster(t *testing.T) {
	group := []TripRequest{
		trip("a", originA, destA, 0),
		trip("b", north(originA, 200), north(destA, 200), 5*time.Minute),
	}
	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 2}
	clusters := s.ClusterGroup(group)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{0, 1}, clusters[0])
}

// Scenario B: the third request is close to only one member of the clique.
func TestClique_RequiresDistanceToEveryMember(t *testing.T) {
	group := []TripRequest{
		trip("a", originA, destA, 0),
		trip("b", north(originA, 800), north(destA, 800), time.Minute),
		trip("c", north(originA, 1600), north(destA, 1600), 2*time.Minute),
	}
	m := DistanceMatrix(group)
	require.LessOrEqual(t, m[0][1], 1.0)
	require.LessOrEqual(t, m[1][2], 1.0)
	require.Greater(t, m[0][2], 1.0)

	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 2}
	clusters := s.ClusterGroup(group)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{0, 1}, clusters[0])
}

func TestClique_FailedSeedMembersStayAvailable(t *testing.T) {
	// "far" cannot pair with anything; "b" and "c" pair after "far" fails as a seed.
	group := []TripRequest{
		trip("far", north(originA, 5000), north(destA, 5000), 0),
		trip("b", originA, destA, time.Minute),
		trip("c", north(originA, 100), north(destA, 100), 2*time.Minute),
	}
	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 2}
	clusters := s.ClusterGroup(group)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int{1, 2}, clusters[0])
}

func TestClique_MinSamplesOne(t *testing.T) {
	group := []TripRequest{
		trip("a", originA, destA, 0),
		trip("b", north(originA, 5000), north(destA, 5000), time.Minute),
	}
	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 1}
	assert.Equal(t, [][]int{{0}, {1}}, s.ClusterGroup(group))
}

func TestClique_Empty(t *testing.T) {
	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 2}
	assert.Nil(t, s.ClusterGroup(nil))
}

func TestClique_InvariantHoldsOnRandomGroups(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := CliqueStrategy{ThresholdKm: 1.2, MinSamples: 2}
	for round := 0; round < 20; round++ {
		group := randomBatch(rng, 60)
		m := DistanceMatrix(group)
		seen := make(map[int]bool)
		for _, c := range s.ClusterGroup(group) {
			assert.GreaterOrEqual(t, len(c), 2)
			for i, a := range c {
				assert.False(t, seen[a], "member %d assigned twice", a)
				seen[a] = true
				for _, b := range c[i+1:] {
					assert.LessOrEqual(t, m[a][b], 1.2)
				}
			}
		}
	}
}

func TestClique_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	group := randomBatch(rng, 80)
	s := CliqueStrategy{ThresholdKm: 1.0, MinSamples: 2}
	assert.Equal(t, s.ClusterGroup(group), s.ClusterGroup(group))
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, StrategyClique, s.Name())

	s, err = NewStrategy(StrategyDensity, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, StrategyDensity, s.Name())

	_, err = NewStrategy("kmeans", DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestPairDistanceKm_UsesBothEnds(t *testing.T) {
	a := trip("a", originA, destA, 0)
	b := trip("b", originA, north(destA, 2000), 0)
	assert.InDelta(t, 1.0, PairDistanceKm(a, b), 0.01)
	assert.Equal(t, types.ID("a"), a.ID)
}
