package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/model"
)

func TestScoreClusters_Formula(t *testing.T) {
	records := []model.SourceRecord{
		{SourceIP: "10.0.0.1", PacketsPerSecond: 100, UniquePorts: 10},
		{SourceIP: "10.0.0.2", PacketsPerSecond: 50, UniquePorts: 0},
		{SourceIP: "10.0.0.3", PacketsPerSecond: 10, UniquePorts: 2},
	}

	stats := ScoreClusters(records, []int{1, 1, 2})
	require.Len(t, stats, 2)

	c1 := stats[1]
	assert.Equal(t, 2, c1.Members)
	assert.InDelta(t, 100, c1.MaxRate, 1e-9)
	assert.InDelta(t, 75, c1.MeanRate, 1e-9)
	assert.InDelta(t, 5, c1.MeanPortDiversity, 1e-9)
	assert.InDelta(t, 0.5+0.15+0.2*2.0/3.0, c1.DangerScore, 1e-9)
	assert.True(t, c1.IsDangerous)
	assert.Equal(t, "High Risk Cluster 1", c1.Name)

	c2 := stats[2]
	assert.InDelta(t, 0.05+0.06+0.2/3.0, c2.DangerScore, 1e-9)
	assert.False(t, c2.IsDangerous)
	assert.Equal(t, "Low Risk Cluster 2", c2.Name)
}

func TestScoreClusters_ZeroNormalizers(t *testing.T) {
	records := []model.SourceRecord{
		{PacketCount: 4},
		{PacketCount: 8},
		{PacketCount: 1},
	}

	stats := ScoreClusters(records, []int{1, 1, 2})
	assert.InDelta(t, 0.2*2.0/3.0, stats[1].DangerScore, 1e-9)
	assert.InDelta(t, 0.2/3.0, stats[2].DangerScore, 1e-9)
}

func TestScoreClusters_Bounds(t *testing.T) {
	records := []model.SourceRecord{
		{PacketsPerSecond: 9000, UniquePorts: 500},
		{PacketsPerSecond: 9000, UniquePorts: 500},
	}
	stats := ScoreClusters(records, []int{1, 1})
	assert.InDelta(t, 1.0, stats[1].DangerScore, 1e-9)
	assert.Equal(t, "Critical Cluster 1", stats[1].Name)
}

func TestScoreClusters_MonotonicInRate(t *testing.T) {
	base := []model.SourceRecord{
		{PacketsPerSecond: 20, UniquePorts: 3},
		{PacketsPerSecond: 40, UniquePorts: 30},
		{PacketsPerSecond: 300, UniquePorts: 1},
		{PacketsPerSecond: 5, UniquePorts: 0},
	}
	ids := []int{1, 1, 2, 3}

	prev := ScoreClusters(base, ids)[1].DangerScore
	for _, rate := range []float64{60, 150, 299, 300, 301, 1000, 5000} {
		records := append([]model.SourceRecord(nil), base...)
		records[0].PacketsPerSecond = rate
		score := ScoreClusters(records, ids)[1].DangerScore
		assert.GreaterOrEqual(t, score, prev, "rate %.0f", rate)
		prev = score
	}
}

func TestClusterName_Tiers(t *testing.T) {
	assert.Equal(t, "Critical Cluster 3", ClusterName(3, 0.81))
	assert.Equal(t, "High Risk Cluster 3", ClusterName(3, 0.8))
	assert.Equal(t, "High Risk Cluster 3", ClusterName(3, 0.61))
	assert.Equal(t, "Medium Risk Cluster 3", ClusterName(3, 0.6))
	assert.Equal(t, "Medium Risk Cluster 3", ClusterName(3, 0.41))
	assert.Equal(t, "Low Risk Cluster 3", ClusterName(3, 0.4))
	assert.Equal(t, "Low Risk Cluster 3", ClusterName(3, 0))
}
