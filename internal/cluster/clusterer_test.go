package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemap_DenseAndSorted(t *testing.T) {
	a := Remap([]int{-1, 0, 1, 0, -1})
	assert.Equal(t, []int{1, 2, 3, 2, 1}, a.IDs)
	assert.Equal(t, 3, a.K)
	assert.Equal(t, 1, a.ID(-1))
	assert.Equal(t, 3, a.ID(1))
	assert.Equal(t, 0, a.ID(7))

	b := Remap([]int{5, 2, 5, 9})
	assert.Equal(t, []int{2, 1, 2, 3}, b.IDs)
	assert.Equal(t, 3, b.K)
}

func TestRemap_Empty(t *testing.T) {
	a := Remap(nil)
	assert.Empty(t, a.IDs)
	assert.Zero(t, a.K)
}

func TestParseMethod(t *testing.T) {
	m := ParseMethod("kmeans", 4)
	assert.Equal(t, "kmeans", m.Name())
	assert.Equal(t, 4, m.Clusters())

	assert.Equal(t, "kmeans", ParseMethod(" KMeans ", 2).Name())
	assert.Equal(t, "dbscan", ParseMethod("dbscan", 4).Name())
	assert.Equal(t, "dbscan", ParseMethod("anything", 4).Name())
	assert.Zero(t, DensityBased().Clusters())
}

func twoGroups() [][]float64 {
	return [][]float64{
		{0, 0, 0, 0},
		{0.1, 0, 0, 0},
		{0, 0.1, 0, 0},
		{5, 5, 5, 5},
		{5.1, 5, 5, 5},
	}
}

func TestKMeans_SeparatesGroups(t *testing.T) {
	labels := kmeans(twoGroups(), 2)
	require.Len(t, labels, 5)

	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.NotEqual(t, labels[0], labels[3])
}

func TestKMeans_Deterministic(t *testing.T) {
	points := [][]float64{
		{0.3, -1.2, 0.4, 0.9},
		{1.1, 0.2, -0.7, 0.1},
		{-0.5, 0.8, 1.3, -1.0},
		{0.9, 0.9, 0.1, 0.2},
		{-1.4, -0.3, -0.6, 0.7},
		{0.2, 0.1, 1.0, -0.4},
		{-0.2, -0.9, -1.1, -0.5},
	}
	first := kmeans(points, 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, kmeans(points, 3))
	}
}

func TestKMeans_MoreClustersThanDistinctPoints(t *testing.T) {
	points := [][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}, {-1, -1, -1, -1}}
	a := Remap(kmeans(points, 3))
	assert.Equal(t, 2, a.K)
	assert.Equal(t, a.IDs[0], a.IDs[1])
	assert.NotEqual(t, a.IDs[0], a.IDs[2])
}

func TestDBSCAN_NoiseAndGroups(t *testing.T) {
	points := [][]float64{
		{0, 0, 0, 0},
		{0.2, 0, 0, 0},
		{3, 3, 3, 3},
		{3, 3.3, 3, 3},
		{-4, 4, -4, 4},
	}
	labels := dbscan(points, 0.5, 2)
	assert.Equal(t, []int{0, 0, 1, 1, noiseLabel}, labels)
}

func TestDBSCAN_RadiusIsInclusive(t *testing.T) {
	points := [][]float64{{0, 0, 0, 0}, {0.5, 0, 0, 0}}
	assert.Equal(t, []int{0, 0}, dbscan(points, 0.5, 2))
}

func TestDBSCAN_AllNoise(t *testing.T) {
	points := [][]float64{{0, 0, 0, 0}, {2, 0, 0, 0}, {4, 0, 0, 0}}
	assert.Equal(t, []int{noiseLabel, noiseLabel, noiseLabel}, dbscan(points, 0.5, 2))
}
