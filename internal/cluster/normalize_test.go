package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/model"
)

func TestNormalize_ZeroMeanUnitVariance(t *testing.T) {
	rows := [][]float64{
		{10, 100, 60, 1},
		{20, 300, 1500, 5},
		{30, 200, 800, 9},
		{40, 400, 900, 13},
	}

	out := Normalize(rows)
	require.Len(t, out, len(rows))

	for j := 0; j < numFeatures; j++ {
		var mean, variance float64
		for _, row := range out {
			mean += row[j]
		}
		mean /= float64(len(out))
		for _, row := range out {
			variance += (row[j] - mean) * (row[j] - mean)
		}
		variance /= float64(len(out))

		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, variance, 1e-9, "column %d variance", j)
	}
}

func TestNormalize_ZeroVarianceColumnIsCentered(t *testing.T) {
	rows := [][]float64{
		{10, 5, 60, 0},
		{20, 5, 60, 0},
		{30, 5, 60, 0},
	}

	out := Normalize(rows)
	for _, row := range out {
		for j, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "column %d is not finite", j)
		}
		assert.Zero(t, row[1])
		assert.Zero(t, row[2])
		assert.Zero(t, row[3])
	}
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	rows := [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}}
	Normalize(rows)
	assert.Equal(t, [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}}, rows)
}

func TestFeatures_CoercesInvalidValues(t *testing.T) {
	records := []model.SourceRecord{
		{PacketsPerSecond: math.NaN(), PacketCount: -3, AveragePacketSize: math.Inf(1), UniquePorts: 2},
	}

	rows := Features(records)
	assert.Equal(t, [][]float64{{0, 0, 0, 2}}, rows)
}

func TestAllZero(t *testing.T) {
	assert.True(t, AllZero(nil))
	assert.True(t, AllZero([][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}}))
	assert.False(t, AllZero([][]float64{{0, 0, 0, 0}, {0, 0, 0.5, 0}}))
}
