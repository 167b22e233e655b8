package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/model"
)

// sampleSources returns three identical quiet sources, two identical scanners and one flooder.
func sampleSources() []model.SourceRecord {
	quiet := model.SourceRecord{PacketsPerSecond: 10, PacketCount: 10, AveragePacketSize: 100, UniquePorts: 1}
	scanner := model.SourceRecord{PacketsPerSecond: 1000, PacketCount: 500, AveragePacketSize: 60, UniquePorts: 80}
	flooder := model.SourceRecord{PacketsPerSecond: 5000, PacketCount: 50, AveragePacketSize: 1400, UniquePorts: 3}

	out := []model.SourceRecord{quiet, quiet, quiet, scanner, scanner, flooder}
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "172.16.0.9", "172.16.0.10", "192.168.1.66"}
	for i := range out {
		out[i].SourceIP = ips[i]
	}
	return out
}

func TestCluster_FallbackForSingleRecord(t *testing.T) {
	in := []model.SourceRecord{{SourceIP: "10.0.0.1", PacketsPerSecond: 999, UniquePorts: 100}}

	out := Cluster(in, KMeans(3))
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ClusterID)
	assert.False(t, out[0].IsDangerous)
	assert.Zero(t, out[0].DangerScore)
	assert.Equal(t, "Cluster 1", out[0].ClusterName)
	assert.Equal(t, 999.0, out[0].PacketsPerSecond)
}

func TestCluster_FallbackForAllZeroFeatures(t *testing.T) {
	in := []model.SourceRecord{{SourceIP: "a"}, {SourceIP: "b"}, {SourceIP: "c"}}

	for _, m := range []Method{KMeans(2), DensityBased()} {
		out := Cluster(in, m)
		require.Len(t, out, 3)
		for _, r := range out {
			assert.Equal(t, 1, r.ClusterID)
			assert.False(t, r.IsDangerous)
			assert.Zero(t, r.DangerScore)
		}
	}
}

func TestCluster_Empty(t *testing.T) {
	res := Analyze(nil, KMeans(3))
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Summaries())
}

func TestCluster_DensityBasedRemapsNoiseFirst(t *testing.T) {
	res := Analyze(sampleSources(), DensityBased())
	ids := make([]int, len(res.Sources))
	for i, r := range res.Sources {
		ids[i] = r.ClusterID
	}

	// raw labels are 0,0,0,1,1,-1 so noise becomes cluster 1.
	assert.Equal(t, []int{2, 2, 2, 3, 3, 1}, ids)

	assert.Equal(t, "Medium Risk Cluster 1", res.Sources[5].ClusterName)
	assert.InDelta(t, 0.5+0.3*3.0/80.0+0.2/6.0, res.Sources[5].DangerScore, 1e-9)
	assert.Equal(t, "Low Risk Cluster 2", res.Sources[0].ClusterName)
	assert.InDelta(t, 0.5*10.0/5000.0+0.3/80.0+0.1, res.Sources[0].DangerScore, 1e-9)
	assert.Equal(t, "Medium Risk Cluster 3", res.Sources[3].ClusterName)
	assert.InDelta(t, 0.1+0.3+0.2*2.0/6.0, res.Sources[3].DangerScore, 1e-9)
}

func TestCluster_KMeansIDsAreDense(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 10} {
		out := Cluster(sampleSources(), KMeans(k))

		seen := make(map[int]bool)
		for _, r := range out {
			seen[r.ClusterID] = true
		}
		assert.LessOrEqual(t, len(seen), k)
		for id := 1; id <= len(seen); id++ {
			assert.True(t, seen[id], "k=%d: cluster id %d missing", k, id)
		}
	}
}

func TestCluster_KMeansGroupsIdenticalSources(t *testing.T) {
	out := Cluster(sampleSources(), KMeans(3))
	assert.Equal(t, out[0].ClusterID, out[1].ClusterID)
	assert.Equal(t, out[0].ClusterID, out[2].ClusterID)
	assert.Equal(t, out[3].ClusterID, out[4].ClusterID)
	assert.NotEqual(t, out[0].ClusterID, out[3].ClusterID)
	assert.NotEqual(t, out[3].ClusterID, out[5].ClusterID)
	assert.NotEqual(t, out[0].ClusterID, out[5].ClusterID)
}

func TestCluster_Deterministic(t *testing.T) {
	for _, m := range []Method{KMeans(2), KMeans(3), DensityBased()} {
		first := Cluster(sampleSources(), m)
		second := Cluster(sampleSources(), m)
		assert.Equal(t, first, second, m.String())
	}
}

func TestCluster_PreservesOrderAndPassthrough(t *testing.T) {
	in := sampleSources()
	in[2].Extra = map[string]any{"sessionId": 7.0}
	in[2].Protocols = []string{"TCP", "DNS"}
	in[4].TotalBytes = 12345

	out := Cluster(in, KMeans(3))
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].SourceIP, out[i].SourceIP)
		assert.Equal(t, in[i].PacketCount, out[i].PacketCount)
	}
	assert.Equal(t, map[string]any{"sessionId": 7.0}, out[2].Extra)
	assert.Equal(t, []string{"TCP", "DNS"}, out[2].Protocols)
	assert.Equal(t, int64(12345), out[4].TotalBytes)

	out[2].Extra["sessionId"] = 8.0
	assert.Equal(t, 7.0, in[2].Extra["sessionId"])
	assert.Zero(t, in[0].ClusterID)
}

func TestCluster_ScoreBounds(t *testing.T) {
	for _, m := range []Method{KMeans(1), KMeans(3), DensityBased()} {
		for _, r := range Cluster(sampleSources(), m) {
			assert.GreaterOrEqual(t, r.DangerScore, 0.0)
			assert.LessOrEqual(t, r.DangerScore, 1.0)
			assert.Equal(t, r.DangerScore > DangerThreshold, r.IsDangerous)
		}
	}
}

func TestResult_Summaries(t *testing.T) {
	res := Analyze(sampleSources(), DensityBased())
	sums := res.Summaries()
	require.Len(t, sums, 3)

	assert.Equal(t, 1, sums[0].ClusterID)
	assert.Equal(t, 3, sums[1].ClusterID)
	assert.Equal(t, 2, sums[2].ClusterID)

	assert.Equal(t, 3, sums[2].SourceCount)
	assert.InDelta(t, 10, sums[2].AverageSpeed, 1e-9)
	assert.InDelta(t, 5000, sums[0].MaxSpeed, 1e-9)

	assert.Empty(t, res.Dangerous())
	assert.Len(t, res.Members(2), 3)
}

func TestSummarize_MatchesResultSummaries(t *testing.T) {
	res := Analyze(sampleSources(), DensityBased())
	assert.Equal(t, res.Summaries(), Summarize(res.Sources))
	assert.Empty(t, Summarize(nil))
}
